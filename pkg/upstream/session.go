package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

// browserUserAgent is the fixed fingerprint shared by the warm-up
// sequencer and the request executor. The upstream correlates the TLS
// fingerprint, this header and the cookie set.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Warmer acquires a session cookie by performing an ordered sequence of
// innocuous GET requests before any real API call. It is safe for
// concurrent use; overlapping calls share a single underlying sequence.
type Warmer struct {
	baseURL     string
	paths       []string
	cookieName  string
	reuseWindow time.Duration

	jar  *Jar
	http Doer
	log  *logging.Logger
	met  *metrics.Metrics

	group singleflight.Group

	mu           sync.Mutex
	lastWarmupAt time.Time
	now          func() time.Time
}

// Doer is the outbound HTTP client dependency.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewWarmer creates a warm-up sequencer against the given upstream base
// URL. paths are the safe paths visited in order; the third one is only
// visited when the named session cookie is still absent after the first.
func NewWarmer(baseURL string, paths []string, cookieName string, reuseWindow time.Duration, jar *Jar, httpDoer Doer, log *logging.Logger, met *metrics.Metrics) *Warmer {
	return &Warmer{
		baseURL:     baseURL,
		paths:       paths,
		cookieName:  cookieName,
		reuseWindow: reuseWindow,
		jar:         jar,
		http:        httpDoer,
		log:         log.WithComponent("warmup"),
		met:         met,
		now:         time.Now,
	}
}

// WarmUp ensures a usable session. When not forced, a non-empty jar
// inside the reuse window is a no-op; this bounds how often the relay
// re-announces itself to the upstream. Concurrent callers are coalesced
// into a single sequence regardless of request concurrency.
func (w *Warmer) WarmUp(ctx context.Context, force bool) error {
	if !force && w.fresh() {
		return nil
	}

	_, err, _ := w.group.Do("warmup", func() (any, error) {
		// Re-check under the flight: a caller that queued behind a
		// successful sequence does not need another one.
		if !force && w.fresh() {
			return nil, nil
		}
		return nil, w.run(ctx)
	})
	return err
}

// LastWarmupAt returns when the last fully successful sequence finished.
func (w *Warmer) LastWarmupAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWarmupAt
}

func (w *Warmer) fresh() bool {
	if w.jar.Len() == 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.lastWarmupAt.IsZero() && w.now().Sub(w.lastWarmupAt) < w.reuseWindow
}

// run performs the ordered sequence. Steps execute strictly in order;
// later steps depend on cookies set by earlier ones. Any non-2xx fails
// the whole sequence and lastWarmupAt stays untouched, so the next
// caller retries instead of assuming a half-done session is usable.
func (w *Warmer) run(ctx context.Context) error {
	start := w.now()

	for i, path := range w.paths {
		if i == 2 {
			// The upstream does not always issue the session cookie on
			// the first hop; the third visit is only needed when it is
			// still missing.
			if _, ok := w.jar.Get(w.cookieName); ok {
				break
			}
		}

		headers := w.navigationHeaders()
		if i > 0 {
			headers = w.apiHeaders()
		}

		if err := w.step(ctx, i+1, path, headers); err != nil {
			if w.met != nil {
				w.met.IncWarmup("failure")
			}
			w.log.Warn("warm-up sequence failed", "step", i+1, "path", path, "error", err)
			return err
		}
	}

	w.mu.Lock()
	w.lastWarmupAt = w.now()
	w.mu.Unlock()

	if w.met != nil {
		w.met.IncWarmup("success")
	}
	w.log.Debug("warm-up sequence complete",
		"cookies", w.jar.Len(),
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)
	return nil
}

func (w *Warmer) step(ctx context.Context, n int, path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("warm-up step %d: %w", n, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("warm-up step %d (%s): %w", n, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	w.jar.Apply(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("warm-up step %d (%s): status %d", n, path, resp.StatusCode)
	}
	return nil
}

// navigationHeaders resembles a plain HTML navigation.
func (w *Warmer) navigationHeaders() map[string]string {
	h := map[string]string{
		"User-Agent":                browserUserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
	}
	if cookie := w.jar.Header(); cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}

// apiHeaders resembles a JSON-rendering SPA request.
func (w *Warmer) apiHeaders() map[string]string {
	h := map[string]string{
		"User-Agent":       browserUserAgent,
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          w.baseURL + "/",
	}
	if cookie := w.jar.Header(); cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}
