package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type mockWriter struct {
	points []point
}

func (m *mockWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	m.points = append(m.points, point{measurement, tags, fields, ts})
}

func TestRecorderHandleEvent(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		event     unifi.Event
		wantPoint bool
		wantError string
	}{
		{
			name:      "connect",
			event:     unifi.Event{Subsystem: "network", Name: unifi.EventConnect},
			wantPoint: true,
		},
		{
			name:      "error carries message",
			event:     unifi.Event{Subsystem: "access", Name: unifi.EventError, Payload: errors.New("reset")},
			wantPoint: true,
			wantError: "reset",
		},
		{
			name:      "controller reconnect",
			event:     unifi.Event{Subsystem: "controller", Name: unifi.EventReconnect},
			wantPoint: true,
		},
		{
			name:  "subsystem event not recorded",
			event: unifi.Event{Subsystem: "network", Name: "EVT_WU_Connected", Payload: map[string]any{"ssid": "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &mockWriter{}
			r := NewRecorder(w)
			r.now = func() time.Time { return now }

			if err := r.HandleEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}

			if !tt.wantPoint {
				if len(w.points) != 0 {
					t.Errorf("wrote %d points, want 0", len(w.points))
				}
				return
			}
			if len(w.points) != 1 {
				t.Fatalf("wrote %d points, want 1", len(w.points))
			}
			p := w.points[0]
			if p.measurement != Measurement {
				t.Errorf("measurement = %q, want %q", p.measurement, Measurement)
			}
			if p.tags["subsystem"] != tt.event.Subsystem || p.tags["event"] != tt.event.Name {
				t.Errorf("tags = %v", p.tags)
			}
			if !p.ts.Equal(now) {
				t.Errorf("ts = %v, want %v", p.ts, now)
			}
			if got, _ := p.fields["error"].(string); got != tt.wantError {
				t.Errorf("error field = %q, want %q", got, tt.wantError)
			}
		})
	}
}
