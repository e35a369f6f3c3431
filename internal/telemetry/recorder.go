package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

// Measurement is the InfluxDB measurement lifecycle points are written to.
const Measurement = "unifi_lifecycle"

// PointWriter writes one point. *influxdb.Client satisfies it; writes are
// batched and non-blocking.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Recorder writes one point per lifecycle event. Subsystem event payloads
// are never recorded.
type Recorder struct {
	writer PointWriter
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{writer: w, now: time.Now}
}

// HandleEvent implements unifi.Handler.
func (r *Recorder) HandleEvent(_ context.Context, ev unifi.Event) error {
	if !ev.IsLifecycle() {
		return nil
	}

	tags := map[string]string{
		"subsystem": ev.Subsystem,
		"event":     ev.Name,
	}
	fields := map[string]any{"count": 1}
	if err, ok := ev.Payload.(error); ok {
		fields["error"] = err.Error()
	}

	r.writer.WritePoint(Measurement, tags, fields, r.now())
	return nil
}
