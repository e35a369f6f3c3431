package status

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/unifi-mqtt/internal/unifi"
)

// saveTimeout bounds a single persistence write.
const saveTimeout = 5 * time.Second

// Logger defines the logging interface used by the tracker.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Tracker follows controller lifecycle events and keeps the latest status
// of each subsystem in memory. When a Repository is set every change is
// also persisted; persistence failures are logged and never fail an event.
//
// Thread Safety: all methods are safe for concurrent use.
type Tracker struct {
	repo Repository
	now  func() time.Time

	mu       sync.RWMutex
	statuses map[string]*SubsystemStatus

	logger   Logger
	loggerMu sync.RWMutex
}

// NewTracker creates a Tracker. repo may be nil for memory-only tracking.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{
		repo:     repo,
		now:      time.Now,
		statuses: make(map[string]*SubsystemStatus),
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	defer t.loggerMu.Unlock()
	t.logger = logger
}

// Load seeds the in-memory view from the repository. Counters continue
// from their persisted values; states are reset to unknown because no
// stream is open yet.
func (t *Tracker) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	rows, err := t.repo.List(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range rows {
		row := rows[i]
		row.State = StateUnknown
		t.statuses[row.Subsystem] = &row
	}
	return nil
}

// HandleEvent implements unifi.Handler. Only lifecycle events change state.
func (t *Tracker) HandleEvent(ctx context.Context, ev unifi.Event) error {
	if !ev.IsLifecycle() || ev.Name == unifi.EventLogin {
		return nil
	}

	now := t.now().UTC()

	t.mu.Lock()
	s, ok := t.statuses[ev.Subsystem]
	if !ok {
		s = &SubsystemStatus{Subsystem: ev.Subsystem, State: StateUnknown}
		t.statuses[ev.Subsystem] = s
	}

	switch ev.Name {
	case unifi.EventConnect:
		s.State = StateConnected
		s.ConnectCount++
		s.LastConnectedAt = &now
	case unifi.EventClose:
		s.State = StateClosed
		s.LastClosedAt = &now
	case unifi.EventError:
		s.State = StateErrored
		s.LastErrorAt = &now
		s.LastError = errorText(ev.Payload)
	case unifi.EventReconnect:
		s.State = StateReconnecting
		s.ReconnectCount++
	}
	s.UpdatedAt = now
	snapshot := *s
	t.mu.Unlock()

	if t.repo != nil {
		// Final close events arrive on an already-cancelled context during
		// shutdown; they must still be written.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		if err := t.repo.Save(saveCtx, &snapshot); err != nil {
			t.logWarn("status not persisted", "subsystem", ev.Subsystem, "error", err)
		}
	}
	return nil
}

// Get returns the current status of subsystem.
func (t *Tracker) Get(subsystem string) (SubsystemStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[subsystem]
	if !ok {
		return SubsystemStatus{}, ErrNotFound
	}
	return *s, nil
}

// Snapshot returns every known status ordered by subsystem name.
func (t *Tracker) Snapshot() []SubsystemStatus {
	t.mu.RLock()
	out := make([]SubsystemStatus, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Subsystem < out[j].Subsystem })
	return out
}

func errorText(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

func (t *Tracker) logWarn(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
