package unifi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("use of closed network connection")

type mockFrame struct {
	kind int
	data []byte
	err  error
}

func textFrame(s string) mockFrame { return mockFrame{kind: websocket.TextMessage, data: []byte(s)} }

// mockConn replays scripted frames and then blocks until closed.
type mockConn struct {
	frames    chan mockFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	writes      int
	closeFrames int
	deadlines   int
}

func newMockConn(frames ...mockFrame) *mockConn {
	c := &mockConn{
		frames: make(chan mockFrame, len(frames)),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errConnClosed
	default:
	}

	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.kind, f.data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *mockConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.CloseMessage {
		c.closeFrames++
		return nil
	}
	c.writes++
	return nil
}

func (c *mockConn) SetReadDeadline(time.Time) error {
	c.mu.Lock()
	c.deadlines++
	c.mu.Unlock()
	return nil
}

func (c *mockConn) SetPongHandler(func(string) error) {}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *mockConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *mockConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// mockDialer hands out scripted connections per subsystem. Once a
// subsystem's script is used up it returns connections that stay open.
type mockDialer struct {
	mu      sync.Mutex
	scripts map[string][]*mockConn
	errs    map[string]error
	dials   []string
}

func newMockDialer() *mockDialer {
	return &mockDialer{
		scripts: make(map[string][]*mockConn),
		errs:    make(map[string]error),
	}
}

func (d *mockDialer) script(subsystem string, conns ...*mockConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[subsystem] = append(d.scripts[subsystem], conns...)
}

func (d *mockDialer) fail(subsystem string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[subsystem] = err
}

func (d *mockDialer) DialContext(ctx context.Context, rawURL string, _ http.Header) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, rawURL)

	name := ""
	for _, sub := range Subsystems() {
		if strings.Contains(rawURL, "/proxy/"+sub+"/") {
			name = sub
		}
	}
	if err := d.errs[name]; err != nil {
		return nil, err
	}
	if queue := d.scripts[name]; len(queue) > 0 {
		d.scripts[name] = queue[1:]
		return queue[0], nil
	}
	return newMockConn(), nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// recordingHandler records every event. fail, when set, decides whether
// an event is rejected.
type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	fail   func(Event) error
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	fail := h.fail
	h.mu.Unlock()

	if fail != nil {
		return fail(ev)
	}
	return nil
}

func (h *recordingHandler) snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

func (h *recordingHandler) count(subsystem, name string) int {
	n := 0
	for _, ev := range h.snapshot() {
		if ev.Subsystem == subsystem && ev.Name == name {
			n++
		}
	}
	return n
}

// fakeController serves the REST endpoints a controller exposes.
type fakeController struct {
	srv *httptest.Server

	logins     atomic.Int32
	probes     atomic.Int32
	failLogin  atomic.Bool
	failProbes atomic.Bool

	mu       sync.Mutex
	requests []*http.Request
	bodies   []url.Values
}

const testSessionCookie = "TOKEN"

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	f := &fakeController{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		_ = r.ParseForm()
		f.record(r, r.PostForm)
		if f.failLogin.Load() || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: "session-1", Path: "/"})
		w.Header().Set("X-Csrf-Token", "csrf-1")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/users/self", func(w http.ResponseWriter, r *http.Request) {
		f.probes.Add(1)
		if f.failProbes.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if _, err := r.Cookie(testSessionCookie); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"name":"admin"}]}`))
	})
	mux.HandleFunc("/api/s/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.record(r, r.PostForm)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"meta":{"rc":"ok"}}`))
	})

	f.srv = httptest.NewTLSServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) record(r *http.Request, form url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, form)
}

func (f *fakeController) lastRequest() (*http.Request, url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil, nil
	}
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

func (f *fakeController) credentials(t *testing.T) Credentials {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return Credentials{
		Host:     host,
		Port:     port,
		Username: "admin",
		Password: "secret",
		Site:     "default",
	}
}

const testReconnectInterval = 50 * time.Millisecond

func newTestController(t *testing.T, f *fakeController, d Dialer, subsystems ...string) *Controller {
	t.Helper()
	c, err := New(Options{
		Credentials:       f.credentials(t),
		Subsystems:        subsystems,
		ReconnectInterval: testReconnectInterval,
		HeartbeatInterval: -1,
		Dialer:            d,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// startConnect runs Connect in the background and returns its result channel.
func startConnect(ctx context.Context, c *Controller) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx) }()
	return done
}

func shutdown(t *testing.T, c *Controller, connectDone <-chan error) {
	t.Helper()
	_ = c.Close()
	select {
	case <-connectDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Close")
	}
	c.Wait()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
