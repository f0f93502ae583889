// Package upstream implements the session relay against the sportsbook's
// private JSON API: a cookie jar fed by Set-Cookie observation, a warm-up
// sequencer that acquires a believable browser session, and a request
// executor that retries exactly once on the statuses the upstream's
// anti-automation layer uses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"
)

// retryableStatuses are the statuses this upstream's anti-bot layer is
// observed to use for stale or missing sessions. The set is deliberately
// closed; any other non-2xx is the caller's problem.
var retryableStatuses = map[int]bool{
	http.StatusUnauthorized:  true, // 401
	http.StatusForbidden:     true, // 403
	http.StatusNotAcceptable: true, // 406
}

// Response is the executor's view of an upstream reply. The body is
// fully read so the connection can be reused and a diagnostics snippet
// is always available.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// AuthRejected reports whether the status is in the retryable set.
func (r *Response) AuthRejected() bool {
	return retryableStatuses[r.Status]
}

// HTTPError builds the typed error for a non-2xx response.
func (r *Response) HTTPError() *Error {
	kind := KindHTTP
	if r.AuthRejected() {
		kind = KindAuthExpired
	}
	return &Error{Kind: kind, Status: r.Status, Snippet: snippet(r.Body)}
}

// Client is the authenticated request executor. It owns the header
// fingerprint and the retry-once-on-auth-failure policy; session
// acquisition is delegated to the Warmer.
type Client struct {
	baseURL string
	appName string
	timeout time.Duration

	jar    *Jar
	warmer *Warmer
	http   Doer
	log    *logging.Logger
	met    *metrics.Metrics
}

// NewClient creates a request executor for the given upstream base URL.
func NewClient(baseURL, appName string, timeout time.Duration, jar *Jar, warmer *Warmer, httpDoer Doer, log *logging.Logger, met *metrics.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		appName: appName,
		timeout: timeout,
		jar:     jar,
		warmer:  warmer,
		http:    httpDoer,
		log:     log.WithComponent("upstream"),
		met:     met,
	}
}

// Do issues a request against the upstream with the current session.
// On 401/403/406 it forces a fresh warm-up and retries exactly once; the
// second response is returned as-is, so a persistently blocking upstream
// is never amplified. Network-level failures are returned untyped and
// are never retried at this layer.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error) {
	return c.do(ctx, method, path, headers, body, true)
}

// DoNoRetry is Do without the auth-failure retry, for callers that
// implement their own recovery.
func (c *Client) DoNoRetry(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error) {
	return c.do(ctx, method, path, headers, body, false)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body []byte, retryOnAuthFailure bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Opportunistic warm-up on a cold jar. Best effort: a hiccup here
	// degrades gracefully and the upstream is still allowed to fail
	// honestly on the real request.
	if c.jar.Len() == 0 {
		if err := c.warmer.WarmUp(ctx, false); err != nil {
			c.log.Debug("opportunistic warm-up failed", "error", err)
		}
	}

	// Attempt 1.
	resp, err := c.attempt(ctx, method, path, headers, body)
	if err != nil {
		return nil, err
	}
	if !resp.AuthRejected() || !retryOnAuthFailure {
		return resp, nil
	}

	// Auth failure: force a fresh session, then attempt 2. A warm-up
	// failure here is the final error.
	c.log.Info("upstream rejected session, retrying after warm-up", "status", resp.Status, "path", path)
	if c.met != nil {
		c.met.IncUpstreamRetry()
	}
	if err := c.warmer.WarmUp(ctx, true); err != nil {
		return nil, &Error{Kind: KindAuthExpired, Status: resp.Status, Err: fmt.Errorf("forced warm-up: %w", err)}
	}

	return c.attempt(ctx, method, path, headers, body)
}

// attempt issues a single request and always feeds response headers back
// into the jar: the upstream may rotate cookies on any call, not just
// during warm-up.
func (c *Client) attempt(ctx context.Context, method, path string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	for k, v := range c.fingerprint() {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if cookie := c.jar.Header(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.jar.Apply(resp.Header)
	if c.met != nil {
		c.met.IncUpstreamRequest(statusClass(resp.StatusCode))
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// DoJSON issues a request and decodes a 2xx body into out. A non-2xx
// becomes the typed HTTP error; a 2xx that fails to decode is a contract
// violation distinct from an upstream HTTP error.
func (c *Client) DoJSON(ctx context.Context, method, path string, headers map[string]string, body []byte, out any) error {
	resp, err := c.Do(ctx, method, path, headers, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.HTTPError()
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &Error{Kind: KindMalformedPayload, Status: resp.Status, Snippet: snippet(resp.Body), Err: err}
	}
	return nil
}

// fingerprint is the fixed browser-like header set every request starts
// from. Caller headers overlay it, the cookie header overlays both.
func (c *Client) fingerprint() map[string]string {
	return map[string]string{
		"User-Agent":       browserUserAgent,
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-App-Name":       c.appName,
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          c.baseURL + "/live",
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
