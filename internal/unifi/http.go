package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UserAgent is sent on every REST request.
const UserAgent = "unifi-mqtt/1.0"

// login clears the cookie jar and authenticates. The jar must be empty
// because the controller answers a repeated login with 404.
func (c *Controller) login(ctx context.Context) error {
	c.emitLifecycle(ctx, SubsystemController, EventLogin, nil)

	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.jar.Reset()
	c.csrf.Store("")

	form := url.Values{
		"username": {c.creds.Username},
		"password": {c.creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.baseURL+"/login")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logInfo("auth.failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logInfo("auth.failed", "status", resp.StatusCode)
		return fmt.Errorf("%w: %w", ErrAuthFailed, &StatusError{
			Method: http.MethodPost, URL: req.URL.String(), StatusCode: resp.StatusCode,
		})
	}

	c.storeCSRF(resp)
	c.logInfo("auth.success", "host", c.creds.Host)
	return nil
}

func (c *Controller) storeCSRF(resp *http.Response) {
	for _, h := range []string{"X-Updated-Csrf-Token", "X-Csrf-Token"} {
		if token := resp.Header.Get(h); token != "" {
			c.csrf.Store(token)
			return
		}
	}
}

// ensureLoggedIn probes the current session and logs in once if the probe
// fails for any reason.
func (c *Controller) ensureLoggedIn(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/users/self", nil)
	if err == nil {
		resp.Body.Close()
		return nil
	}
	c.logDebug("session probe failed, logging in", "error", err)
	return c.login(ctx)
}

// Get requests path. A path starting with "/" is relative to the controller
// root; any other path is relative to the site API.
//
// The caller must close the response body.
func (c *Controller) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post sends data to path. url.Values are form encoded; anything else is
// sent as JSON.
func (c *Controller) Post(ctx context.Context, path string, data any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, data)
}

// Put sends data to path, encoded as for Post.
func (c *Controller) Put(ctx context.Context, path string, data any) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, data)
}

// Delete requests deletion of path.
func (c *Controller) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Controller) do(ctx context.Context, method, path string, data any) (*http.Response, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		c.logWarn("re-login before request failed", "error", err, "path", path)
	}
	return c.send(ctx, method, path, data)
}

func (c *Controller) send(ctx context.Context, method, path string, data any) (*http.Response, error) {
	body, contentType, err := encodeBody(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token, _ := c.csrf.Load().(string); token != "" {
			req.Header.Set("X-Csrf-Token", token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Method: method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Controller) resolve(path string) string {
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/api/s/" + c.creds.Site + "/" + path
}

func encodeBody(data any) (io.Reader, string, error) {
	switch v := data.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return strings.NewReader(v.Encode()), "application/x-www-form-urlencoded", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}
