package unifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// SessionState is the lifecycle position of a streaming session.
// IDLE → OPEN → {CLOSED | ERRORED}; both end states are terminal.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

const (
	// closeWriteTimeout bounds the best-effort close frame sent on shutdown.
	closeWriteTimeout = time.Second

	// pingWriteTimeout bounds each keepalive ping.
	pingWriteTimeout = 5 * time.Second
)

// session owns one streaming connection for one adapter during one connect
// cycle. It is never reused: the next cycle creates a new session.
type session struct {
	adapter   Adapter
	ctrl      *Controller
	gen       uint64
	heartbeat time.Duration

	// parent is the context of the connect cycle. Handlers and reconnect
	// scheduling use it; ctx is cancelled when this session is closed.
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu      sync.Mutex
	conn    Conn
	closing bool
}

func newSession(parent context.Context, c *Controller, a Adapter, gen uint64) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		adapter:   a,
		ctrl:      c,
		gen:       gen,
		heartbeat: c.heartbeat,
		parent:    parent,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns the current lifecycle position.
func (s *session) State() SessionState {
	return SessionState(s.state.Load())
}

// run opens the connection and reads frames until the connection closes or
// fails. It returns nil on a clean close and the failure otherwise.
func (s *session) run() error {
	defer s.cancel()
	name := s.adapter.Name()

	conn, err := s.ctrl.dialer.DialContext(s.ctx, s.adapter.URL(), nil)
	if err != nil {
		if s.isClosing() {
			s.state.Store(int32(StateClosed))
			return nil
		}
		err = fmt.Errorf("%w: %s: %w", ErrDialFailed, name, err)
		s.state.Store(int32(StateErrored))
		s.ctrl.onSessionOpenFailed(s, err)
		return err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		s.state.Store(int32(StateClosed))
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	s.state.Store(int32(StateOpen))

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-s.ctx.Done():
			s.close()
		case <-stop:
		}
	}()

	s.ctrl.onSessionOpen(s)

	if s.heartbeat > 0 {
		s.extendDeadline(conn)
		conn.SetPongHandler(func(string) error {
			s.extendDeadline(conn)
			return nil
		})
		go s.pingLoop(conn, stop)
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return s.finish(conn, err)
		}
		if s.heartbeat > 0 {
			s.extendDeadline(conn)
		}

		if err := s.dispatch(kind, data); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrClassification, name, err)
			s.ctrl.logDebug("frame rejected", "subsystem", name, "frame", string(data))
			s.state.Store(int32(StateErrored))
			_ = conn.Close()
			s.ctrl.onSessionError(s, err)
			return err
		}
	}
}

// dispatch hands one frame to the adapter. Panics raised by the adapter or
// by handlers are returned as errors.
func (s *session) dispatch(kind int, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch kind {
	case websocket.TextMessage:
		var frame any
		if err := json.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return s.adapter.handleText(s.parent, s, frame)
	case websocket.BinaryMessage:
		return s.adapter.handleBinary(s.parent, s, data)
	}
	return nil
}

// finish classifies the read error that ended the loop.
func (s *session) finish(conn Conn, readErr error) error {
	_ = conn.Close()

	var closeErr *websocket.CloseError
	if s.isClosing() || errors.As(readErr, &closeErr) {
		s.state.Store(int32(StateClosed))
		s.ctrl.onSessionClose(s)
		return nil
	}

	err := fmt.Errorf("%w: %s: %w", ErrTransport, s.adapter.Name(), readErr)
	s.state.Store(int32(StateErrored))
	s.ctrl.onSessionError(s, err)
	return err
}

// close ends the session. A blocked read surfaces as a clean close.
func (s *session) close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}

func (s *session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *session) extendDeadline(conn Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(s.heartbeat * 3 / 2))
}

func (s *session) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteTimeout)); err != nil {
				s.ctrl.logDebug("keepalive ping failed", "subsystem", s.adapter.Name(), "error", err)
				return
			}
		}
	}
}

// emit implements frameSink.
func (s *session) emit(ctx context.Context, event string, payload any) error {
	return s.ctrl.Emit(ctx, s.adapter.Name(), event, payload)
}

// debug implements frameSink.
func (s *session) debug(msg string, keysAndValues ...any) {
	s.ctrl.logDebug(msg, append([]any{"subsystem", s.adapter.Name()}, keysAndValues...)...)
}
