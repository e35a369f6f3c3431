package translator

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

type published struct {
	topic   string
	payload []byte
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) PublishDefault(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, published{topic: topic, payload: payload})
	return m.err
}

type mockRegistrar struct {
	added   []unifi.Handler
	removed []unifi.Handler
}

func (m *mockRegistrar) AddHandler(h unifi.Handler) error {
	m.added = append(m.added, h)
	return nil
}

func (m *mockRegistrar) RemoveHandler(h unifi.Handler) error {
	m.removed = append(m.removed, h)
	return nil
}

type mockLogger struct {
	warns []string
}

func (m *mockLogger) Debug(string, ...any) {}
func (m *mockLogger) Warn(msg string, _ ...any) { m.warns = append(m.warns, msg) }

var fixedTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestTranslator(pub Publisher) *Translator {
	tr := New(pub, mqtt.NewTopics("home/unifi"))
	tr.now = func() time.Time { return fixedTime }
	return tr
}

func TestHandleEventPublishes(t *testing.T) {
	tests := []struct {
		name        string
		event       unifi.Event
		wantTopic   string
		wantPayload string
	}{
		{
			name: "network event",
			event: unifi.Event{
				Subsystem: "network",
				Name:      "EVT_WU_Connected",
				Payload:   map[string]any{"ssid": "home"},
			},
			wantTopic:   "home/unifi/network/EVT_WU_Connected",
			wantPayload: `{"ssid":"home"}`,
		},
		{
			name:        "lifecycle event without payload",
			event:       unifi.Event{Subsystem: "controller", Name: "reconnect"},
			wantTopic:   "home/unifi/controller/reconnect",
			wantPayload: "",
		},
		{
			name:        "error payload",
			event:       unifi.Event{Subsystem: "access", Name: "error", Payload: errors.New("stream reset")},
			wantTopic:   "home/unifi/access/error",
			wantPayload: `{"error":"stream reset"}`,
		},
		{
			name:        "dotted event name",
			event:       unifi.Event{Subsystem: "access", Name: "access.logs.add", Payload: map[string]any{}},
			wantTopic:   "home/unifi/access/access.logs.add",
			wantPayload: `{}`,
		},
		{
			name:        "wildcards sanitised",
			event:       unifi.Event{Subsystem: "network", Name: "a/b+c#"},
			wantTopic:   "home/unifi/network/a_b_c_",
			wantPayload: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			tr := newTestTranslator(pub)

			if err := tr.HandleEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("HandleEvent() error = %v", err)
			}
			if len(pub.msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(pub.msgs))
			}
			if pub.msgs[0].topic != tt.wantTopic {
				t.Errorf("topic = %q, want %q", pub.msgs[0].topic, tt.wantTopic)
			}

			var env struct {
				ID        string          `json:"id"`
				Subsystem string          `json:"subsystem"`
				Event     string          `json:"event"`
				Timestamp time.Time       `json:"timestamp"`
				Payload   json.RawMessage `json:"payload"`
			}
			if err := json.Unmarshal(pub.msgs[0].payload, &env); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if _, err := uuid.Parse(env.ID); err != nil {
				t.Errorf("id %q is not a UUID", env.ID)
			}
			if env.Subsystem != tt.event.Subsystem || env.Event != tt.event.Name {
				t.Errorf("envelope names = %s.%s, want %s.%s", env.Subsystem, env.Event, tt.event.Subsystem, tt.event.Name)
			}
			if !env.Timestamp.Equal(fixedTime) {
				t.Errorf("timestamp = %v, want %v", env.Timestamp, fixedTime)
			}
			if string(env.Payload) != tt.wantPayload {
				t.Errorf("payload = %s, want %s", env.Payload, tt.wantPayload)
			}
		})
	}
}

func TestHandleEventSwallowsFailures(t *testing.T) {
	tests := []struct {
		name  string
		pub   *mockPublisher
		event unifi.Event
	}{
		{
			name:  "publish error",
			pub:   &mockPublisher{err: mqtt.ErrNotConnected},
			event: unifi.Event{Subsystem: "network", Name: "EVT_X"},
		},
		{
			name:  "unencodable payload",
			pub:   &mockPublisher{},
			event: unifi.Event{Subsystem: "network", Name: "EVT_X", Payload: math.Inf(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranslator(tt.pub)
			log := &mockLogger{}
			tr.SetLogger(log)

			if err := tr.HandleEvent(context.Background(), tt.event); err != nil {
				t.Errorf("HandleEvent() error = %v, want nil", err)
			}
			if len(log.warns) != 1 {
				t.Errorf("warnings = %d, want 1", len(log.warns))
			}
		})
	}
}

func TestAttachDetach(t *testing.T) {
	tr := newTestTranslator(&mockPublisher{})
	reg := &mockRegistrar{}

	if err := tr.Attach(reg); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := tr.Detach(reg); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if len(reg.added) != 1 || reg.added[0] != unifi.Handler(tr) {
		t.Error("Attach() did not register the translator")
	}
	if len(reg.removed) != 1 || reg.removed[0] != unifi.Handler(tr) {
		t.Error("Detach() did not unregister the translator")
	}
}

func TestAttachToController(t *testing.T) {
	ctrl, err := unifi.New(unifi.Options{Credentials: unifi.Credentials{Host: "unifi.test"}})
	if err != nil {
		t.Fatalf("unifi.New() error = %v", err)
	}
	pub := &mockPublisher{}
	tr := newTestTranslator(pub)

	if err := tr.Attach(ctrl); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := ctrl.Emit(context.Background(), "network", "EVT_AP_Connected", nil); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if err := tr.Detach(ctrl); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if err := ctrl.Emit(context.Background(), "network", "EVT_AP_Connected", nil); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	if len(pub.msgs) != 1 {
		t.Errorf("published %d messages, want 1", len(pub.msgs))
	}
}
