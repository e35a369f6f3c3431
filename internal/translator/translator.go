package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

// Publisher sends a payload to a topic using the broker's default QoS and
// retain settings. *mqtt.Client satisfies it.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

// Registrar is the part of the controller the translator subscribes to.
type Registrar interface {
	AddHandler(h unifi.Handler) error
	RemoveHandler(h unifi.Handler) error
}

// Logger defines the logging interface used by the translator.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Envelope is the JSON document published for each event.
type Envelope struct {
	ID        string    `json:"id"`
	Subsystem string    `json:"subsystem"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Translator republishes controller events on MQTT.
//
// Publish failures are logged and swallowed: a broker outage must not fail
// the controller stream that produced the event.
type Translator struct {
	publisher Publisher
	topics    mqtt.Topics
	now       func() time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Translator publishing under topics.
func New(publisher Publisher, topics mqtt.Topics) *Translator {
	return &Translator{
		publisher: publisher,
		topics:    topics,
		now:       time.Now,
	}
}

// SetLogger sets the logger for the translator.
func (t *Translator) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	defer t.loggerMu.Unlock()
	t.logger = logger
}

// Attach subscribes the translator to r.
func (t *Translator) Attach(r Registrar) error {
	return r.AddHandler(t)
}

// Detach unsubscribes the translator from r.
func (t *Translator) Detach(r Registrar) error {
	return r.RemoveHandler(t)
}

// HandleEvent implements unifi.Handler.
func (t *Translator) HandleEvent(_ context.Context, ev unifi.Event) error {
	topic := t.topics.Event(ev.Subsystem, ev.Name)

	payload, err := t.render(ev)
	if err != nil {
		t.logWarn("event not publishable", "topic", topic, "error", err)
		return nil
	}

	if err := t.publisher.PublishDefault(topic, payload); err != nil {
		t.logWarn("event publish failed", "topic", topic, "error", err)
		return nil
	}

	t.logDebug("emit.receive", "topic", topic)
	return nil
}

func (t *Translator) render(ev unifi.Event) ([]byte, error) {
	env := Envelope{
		ID:        uuid.NewString(),
		Subsystem: ev.Subsystem,
		Event:     ev.Name,
		Timestamp: t.now().UTC(),
		Payload:   ev.Payload,
	}
	if err, ok := ev.Payload.(error); ok {
		env.Payload = map[string]string{"error": err.Error()}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", ev.Subsystem, ev.Name, err)
	}
	return data, nil
}

func (t *Translator) logDebug(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (t *Translator) logWarn(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
