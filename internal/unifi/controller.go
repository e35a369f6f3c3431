package unifi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by New.
const (
	defaultPort              = 443
	defaultSite              = "default"
	defaultReconnectInterval = 5 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Logger defines the logging interface used by the controller.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Credentials identify the controller and the account used to log in.
type Credentials struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Site      string
	VerifyTLS bool
}

// Options configures a Controller.
type Options struct {
	Credentials

	// Subsystems to stream. Defaults to network only.
	Subsystems []string

	// ReconnectInterval is the fixed delay before a reconnect attempt.
	ReconnectInterval time.Duration

	// HeartbeatInterval is the keepalive ping period on every stream.
	// Negative disables keepalives.
	HeartbeatInterval time.Duration

	// ProtectLastUpdateID resumes the protect stream from a known update.
	ProtectLastUpdateID string

	// ReconnectPolicy overrides the fixed delay. Returning backoff.Stop
	// abandons reconnecting until the next Connect.
	ReconnectPolicy backoff.BackOff

	// Dialer and HTTPClient replace the default transports. The client's
	// Jar is replaced by the controller's session jar.
	Dialer     Dialer
	HTTPClient *http.Client

	Logger Logger
}

// Controller owns the authenticated session with a controller, one streaming
// session per subsystem, the reconnect guard and the handler registry.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Controller struct {
	baseURL    string
	creds      Credentials
	adapters   []Adapter
	heartbeat  time.Duration
	dialer     Dialer
	httpClient *http.Client
	jar        *sessionJar

	registry registry

	mu           sync.Mutex
	closed       bool
	reconnecting bool
	generation   uint64
	sessions     []*session
	policy       backoff.BackOff
	done         *closeOnce

	// wg tracks reconnect goroutines.
	wg sync.WaitGroup

	// authMu serialises logins so the cookie jar is never reset mid-login.
	authMu sync.Mutex
	csrf   atomic.Value

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Controller. No network activity happens until Connect.
func New(opts Options) (*Controller, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidOptions)
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidOptions, opts.Port)
	}
	if opts.Site == "" {
		opts.Site = defaultSite
	}
	if len(opts.Subsystems) == 0 {
		opts.Subsystems = []string{SubsystemNetwork}
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.HeartbeatInterval < 0 {
		opts.HeartbeatInterval = 0
	}

	ep := endpoint{
		host:         opts.Host,
		port:         opts.Port,
		site:         opts.Site,
		lastUpdateID: opts.ProtectLastUpdateID,
	}

	seen := make(map[string]bool, len(opts.Subsystems))
	adapters := make([]Adapter, 0, len(opts.Subsystems))
	for _, name := range opts.Subsystems {
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSubsystem, name)
		}
		seen[name] = true

		a, err := newAdapter(name, ep)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	jar := newSessionJar()
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !opts.VerifyTLS, //nolint:gosec // controllers commonly ship self-signed certificates
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient = &http.Client{Transport: transport}
	}
	httpClient.Jar = jar

	dialer := opts.Dialer
	if dialer == nil {
		dialer = newWSDialer(tlsConfig, jar)
	}

	policy := opts.ReconnectPolicy
	if policy == nil {
		policy = backoff.NewConstantBackOff(opts.ReconnectInterval)
	}

	c := &Controller{
		baseURL:    "https://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		creds:      opts.Credentials,
		adapters:   adapters,
		heartbeat:  opts.HeartbeatInterval,
		dialer:     dialer,
		httpClient: httpClient,
		jar:        jar,
		policy:     policy,
		done:       newCloseOnce(),
		logger:     opts.Logger,
	}
	c.csrf.Store("")
	return c, nil
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// Connect logs in and streams every configured subsystem. It blocks until
// every session of this cycle has ended and returns the first session
// failure, or the login failure.
//
// Calling Connect again supersedes the running cycle. Connect after Close
// re-arms the controller.
func (c *Controller) Connect(ctx context.Context) error {
	return c.connect(ctx, false, 0)
}

func (c *Controller) connect(ctx context.Context, reconnect bool, fromGen uint64) error {
	c.mu.Lock()
	if reconnect && (c.closed || c.generation != fromGen) {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.closed {
		c.done = newCloseOnce()
	}
	c.closed = false
	c.reconnecting = false
	c.generation++
	gen := c.generation
	old := c.sessions
	c.sessions = nil
	c.mu.Unlock()

	for _, s := range old {
		s.close()
	}

	if err := c.login(ctx); err != nil {
		c.logError("controller login failed", err, "reconnect", reconnect)
		if reconnect {
			c.scheduleReconnect(ctx, gen)
		}
		return err
	}

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	sessions := make([]*session, 0, len(c.adapters))
	for _, a := range c.adapters {
		sessions = append(sessions, newSession(ctx, c, a, gen))
	}
	c.sessions = sessions
	c.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(s.run)
	}
	return g.Wait()
}

// Close stops all streams and disables reconnecting. It does not wait;
// call Wait afterwards to join background reconnect work.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.done.Close()
	sessions := c.sessions
	c.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	c.logInfo("controller closed")
	return nil
}

// Wait blocks until pending reconnect goroutines have exited.
// Call it only after Close.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// AddHandler registers h. Adding the same handler twice has no effect.
func (c *Controller) AddHandler(h Handler) error {
	return c.registry.add(h)
}

// RemoveHandler unregisters h.
func (c *Controller) RemoveHandler(h Handler) error {
	return c.registry.remove(h)
}

// Emit delivers an event to every handler registered at call time, in
// registration order. The first handler error stops delivery and is returned.
func (c *Controller) Emit(ctx context.Context, subsystem, event string, payload any) error {
	c.logDebug("controller.emit", "subsystem", subsystem, "event", event)

	ev := Event{Subsystem: subsystem, Name: event, Payload: payload}
	for _, h := range c.registry.snapshot() {
		if err := h.HandleEvent(ctx, ev); err != nil {
			return fmt.Errorf("%w: %s.%s: %w", ErrHandlerFailed, subsystem, event, err)
		}
	}
	return nil
}

// emitLifecycle emits a reserved event. Handler failures are logged, not
// propagated: lifecycle transitions have already happened.
func (c *Controller) emitLifecycle(ctx context.Context, subsystem, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("lifecycle handler panicked", fmt.Errorf("panic: %v", r),
				"subsystem", subsystem, "event", event)
		}
	}()
	if err := c.Emit(ctx, subsystem, event, payload); err != nil {
		c.logError("lifecycle handler failed", err, "subsystem", subsystem, "event", event)
	}
}

func (c *Controller) onSessionOpen(s *session) {
	c.mu.Lock()
	// The guard stays set: a sibling stream of this cycle may already
	// have scheduled the reconnect. connect clears it for the next cycle.
	if s.gen == c.generation {
		c.policy.Reset()
	}
	c.mu.Unlock()

	c.logInfo("stream connected", "subsystem", s.adapter.Name())
	c.emitLifecycle(s.parent, s.adapter.Name(), EventConnect, nil)
}

func (c *Controller) onSessionOpenFailed(s *session, err error) {
	c.logError("stream failed to open", err, "subsystem", s.adapter.Name(), "url", s.adapter.URL())
	c.emitLifecycle(s.parent, s.adapter.Name(), EventError, err)
}

func (c *Controller) onSessionClose(s *session) {
	c.logInfo("stream closed", "subsystem", s.adapter.Name())
	c.emitLifecycle(s.parent, s.adapter.Name(), EventClose, nil)
	c.scheduleReconnect(s.parent, s.gen)
}

func (c *Controller) onSessionError(s *session, err error) {
	c.logError("stream failed", err, "subsystem", s.adapter.Name())
	c.emitLifecycle(s.parent, s.adapter.Name(), EventError, err)
	c.scheduleReconnect(s.parent, s.gen)
}

// scheduleReconnect starts one reconnect attempt unless one is already
// pending, the controller is closed, or gen is no longer current. It
// reports whether an attempt was started.
func (c *Controller) scheduleReconnect(ctx context.Context, gen uint64) bool {
	c.mu.Lock()
	if c.reconnecting || c.closed || gen != c.generation || ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	c.reconnecting = true
	delay := c.policy.NextBackOff()
	if delay == backoff.Stop {
		c.reconnecting = false
		c.mu.Unlock()
		c.logWarn("reconnect policy exhausted, staying idle")
		return false
	}
	done := c.done
	c.wg.Add(1)
	c.mu.Unlock()

	go c.reconnect(ctx, gen, delay, done)
	return true
}

func (c *Controller) reconnect(ctx context.Context, gen uint64, delay time.Duration, done *closeOnce) {
	defer c.wg.Done()

	c.logInfo("reconnect scheduled", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		c.clearReconnecting(gen)
		return
	case <-done.Done():
		c.clearReconnecting(gen)
		return
	}

	// A Connect or Close that landed during the delay owns the controller now.
	c.mu.Lock()
	stale := c.closed || c.generation != gen
	if stale && c.generation == gen {
		c.reconnecting = false
	}
	c.mu.Unlock()
	if stale {
		return
	}

	c.emitLifecycle(ctx, SubsystemController, EventReconnect, nil)

	err := c.connect(ctx, true, gen)
	if err != nil && !errors.Is(err, ErrControllerClosed) {
		c.logWarn("reconnect cycle ended", "error", err)
	}
}

func (c *Controller) clearReconnecting(gen uint64) {
	c.mu.Lock()
	if c.generation == gen {
		c.reconnecting = false
	}
	c.mu.Unlock()
}

// Reconnecting reports whether a reconnect attempt is pending.
func (c *Controller) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnecting
}

// Closed reports whether Close has been called since the last Connect.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subsystems returns the configured subsystem names in stream order.
func (c *Controller) Subsystems() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

// SessionStates returns the state of each subsystem's current session.
// Subsystems without a session in this cycle report StateIdle.
func (c *Controller) SessionStates() map[string]SessionState {
	states := make(map[string]SessionState, len(c.adapters))
	for _, a := range c.adapters {
		states[a.Name()] = StateIdle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		states[s.adapter.Name()] = s.State()
	}
	return states
}

// OpenSessions returns how many streams are currently open.
func (c *Controller) OpenSessions() int {
	n := 0
	for _, st := range c.SessionStates() {
		if st == StateOpen {
			n++
		}
	}
	return n
}

// HandlerCount returns the number of registered handlers.
func (c *Controller) HandlerCount() int {
	return c.registry.len()
}

func (c *Controller) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Controller) logError(msg string, err error, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
