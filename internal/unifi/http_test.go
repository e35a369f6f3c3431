package unifi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
)

func TestResolve(t *testing.T) {
	c, err := New(Options{Credentials: Credentials{Host: "unifi", Port: 8443, Site: "branch"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{path: "/api/users/self", want: "https://unifi:8443/api/users/self"},
		{path: "/proxy/network/api/s/branch/stat/sta", want: "https://unifi:8443/proxy/network/api/s/branch/stat/sta"},
		{path: "stat/health", want: "https://unifi:8443/api/s/branch/stat/health"},
		{path: "rest/user/abc", want: "https://unifi:8443/api/s/branch/rest/user/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := c.resolve(tt.path); got != tt.want {
				t.Errorf("resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoginRequest(t *testing.T) {
	fc := newFakeController(t)
	c := newTestController(t, fc, newMockDialer())

	if err := c.login(context.Background()); err != nil {
		t.Fatalf("login() error = %v", err)
	}

	req, form := fc.lastRequest()
	if req == nil {
		t.Fatal("no login request recorded")
	}
	if got := form.Get("username"); got != "admin" {
		t.Errorf("username = %q, want admin", got)
	}
	if got := req.Header.Get("Referer"); got != c.baseURL+"/login" {
		t.Errorf("Referer = %q, want %q", got, c.baseURL+"/login")
	}
	if got := req.Header.Get("User-Agent"); got != UserAgent {
		t.Errorf("User-Agent = %q, want %q", got, UserAgent)
	}
	if got, _ := c.csrf.Load().(string); got != "csrf-1" {
		t.Errorf("csrf = %q, want csrf-1", got)
	}
}

func TestLoginClearsCookiesOnFailure(t *testing.T) {
	fc := newFakeController(t)
	c := newTestController(t, fc, newMockDialer())

	if err := c.login(context.Background()); err != nil {
		t.Fatalf("login() error = %v", err)
	}
	base, _ := url.Parse(c.baseURL)
	if len(c.jar.Cookies(base)) == 0 {
		t.Fatal("no session cookie after login")
	}

	fc.failLogin.Store(true)
	if err := c.login(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("login() error = %v, want ErrAuthFailed", err)
	}
	if n := len(c.jar.Cookies(base)); n != 0 {
		t.Errorf("cookies after failed login = %d, want 0", n)
	}
}

func TestGetLogsInOnceWhenProbeFails(t *testing.T) {
	fc := newFakeController(t)
	c := newTestController(t, fc, newMockDialer())

	resp, err := c.Get(context.Background(), "stat/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != `{"meta":{"rc":"ok"}}` {
		t.Errorf("body = %s", body)
	}
	if n := fc.logins.Load(); n != 1 {
		t.Errorf("logins = %d, want 1", n)
	}

	req, _ := fc.lastRequest()
	if req.URL.Path != "/api/s/default/stat/health" {
		t.Errorf("path = %q, want /api/s/default/stat/health", req.URL.Path)
	}

	// The session is valid now; the next request only probes.
	resp, err = c.Get(context.Background(), "stat/health")
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	resp.Body.Close()
	if n := fc.logins.Load(); n != 1 {
		t.Errorf("logins after second Get = %d, want 1", n)
	}
}

func TestFailingProbeDoesNotLoop(t *testing.T) {
	fc := newFakeController(t)
	fc.failProbes.Store(true)
	c := newTestController(t, fc, newMockDialer())

	for i := 0; i < 3; i++ {
		resp, err := c.Get(context.Background(), "stat/health")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
	}

	if n := fc.logins.Load(); n != 3 {
		t.Errorf("logins = %d, want one per request", n)
	}
	if n := fc.probes.Load(); n != 3 {
		t.Errorf("probes = %d, want one per request", n)
	}
}

func TestRequestContinuesWhenReloginFails(t *testing.T) {
	fc := newFakeController(t)
	fc.failLogin.Store(true)
	c := newTestController(t, fc, newMockDialer())

	resp, err := c.Get(context.Background(), "stat/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if n := fc.logins.Load(); n != 1 {
		t.Errorf("logins = %d, want 1", n)
	}
}

func TestMutatingRequests(t *testing.T) {
	fc := newFakeController(t)
	c := newTestController(t, fc, newMockDialer())
	if err := c.login(context.Background()); err != nil {
		t.Fatalf("login() error = %v", err)
	}

	tests := []struct {
		name        string
		call        func() (*http.Response, error)
		wantMethod  string
		wantType    string
		wantFormKey string
	}{
		{
			name: "post form",
			call: func() (*http.Response, error) {
				return c.Post(context.Background(), "cmd/stamgr", url.Values{"cmd": {"kick-sta"}})
			},
			wantMethod:  http.MethodPost,
			wantType:    "application/x-www-form-urlencoded",
			wantFormKey: "cmd",
		},
		{
			name: "put json",
			call: func() (*http.Response, error) {
				return c.Put(context.Background(), "rest/user/abc", map[string]any{"name": "phone"})
			},
			wantMethod: http.MethodPut,
			wantType:   "application/json",
		},
		{
			name: "delete",
			call: func() (*http.Response, error) {
				return c.Delete(context.Background(), "rest/user/abc")
			},
			wantMethod: http.MethodDelete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.call()
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			resp.Body.Close()

			req, form := fc.lastRequest()
			if req.Method != tt.wantMethod {
				t.Errorf("method = %s, want %s", req.Method, tt.wantMethod)
			}
			if got := req.Header.Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if got := req.Header.Get("X-Csrf-Token"); got != "csrf-1" {
				t.Errorf("X-Csrf-Token = %q, want csrf-1", got)
			}
			if tt.wantFormKey != "" && form.Get(tt.wantFormKey) == "" {
				t.Errorf("form field %q missing", tt.wantFormKey)
			}
		})
	}
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	fc := newFakeController(t)
	c := newTestController(t, fc, newMockDialer())

	_, err := c.Get(context.Background(), "rest/missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Method != http.MethodGet {
		t.Errorf("StatusError = %+v", statusErr)
	}
}
