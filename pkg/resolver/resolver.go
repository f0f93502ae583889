// Package resolver turns an opaque video identifier pair into a playable
// manifest URL, with a short-TTL cache keyed on the pair, a per-pair
// circuit breaker and single-flighted upstream calls.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"betstream-relay/pkg/breaker"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"
	"betstream-relay/pkg/upstream"

	"golang.org/x/sync/singleflight"
)

// DemoPrefix marks synthetic identifiers that short-circuit to the demo
// stream without touching cache, breaker or upstream. Used for UI
// testing without consuming upstream quota.
const DemoPrefix = "demo-"

// resolveEndpoint is the upstream's video-resolve call.
const resolveEndpoint = "/api/v1/video/url"

// expiryMargin is subtracted from URL-embedded expiries and from cache
// lifetimes so entries are evicted slightly before the upstream would
// reject them.
const expiryMargin = 30 * time.Second

// cacheMargin shortens stored cache entries relative to the reported TTL.
const cacheMargin = 5 * time.Second

// Failure codes surfaced to the HTTP layer.
const (
	CodeMissingIdentifier = "missing_identifier"
	CodeNotFound          = "not_found"
	CodeUpstreamError     = "upstream_error"
	CodeResolveFailed     = "resolve_failed"
	CodeCircuitOpen       = "resolve_circuit_open"
)

// Error carries the public failure code alongside the underlying cause.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %v", e.Code, e.Err)
	}
	return "resolve " + e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the failure code from err, defaulting to resolve_failed.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeResolveFailed
}

// Key identifies a logical stream across repeated resolve requests.
type Key struct {
	VideoID     string
	SecondaryID string
}

func (k Key) flightKey() string { return k.VideoID + "\x00" + k.SecondaryID }

// Result is the resolve output. TTLHintSeconds is always relative to
// now, never the originally stored TTL.
type Result struct {
	URL            string `json:"url"`
	TTLHintSeconds int    `json:"ttlHintSeconds"`
}

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// Executor is the upstream request dependency.
type Executor interface {
	Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (*upstream.Response, error)
}

// Config holds resolver tunables.
type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	DemoURL    string
	DemoTTL    time.Duration
	AppName    string
	AppVersion string
	Language   string
}

// Resolver resolves identifier pairs to manifest URLs.
type Resolver struct {
	cfg Config

	exec  Executor
	brk   *breaker.Breaker[Key]
	group singleflight.Group
	log   *logging.Logger
	met   *metrics.Metrics

	mu    sync.Mutex
	cache map[Key]cacheEntry
	now   func() time.Time
}

// New creates a resolver with its own cache and breaker state.
func New(cfg Config, exec Executor, log *logging.Logger, met *metrics.Metrics) *Resolver {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 120 * time.Second
	}
	if cfg.MinTTL <= 0 {
		cfg.MinTTL = 30 * time.Second
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "1.0"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Resolver{
		cfg:   cfg,
		exec:  exec,
		brk:   breaker.New[Key](time.Second, 30*time.Second),
		log:   log.WithComponent("resolver"),
		met:   met,
		cache: make(map[Key]cacheEntry),
		now:   time.Now,
	}
}

// Resolve returns a playable URL for the identifier pair. Per pair it is
// either CACHED or BLOCKED, never both: a success always clears any
// block. Concurrent calls for the same pair share one upstream call.
func (r *Resolver) Resolve(ctx context.Context, videoID, secondaryID string) (Result, error) {
	videoID = strings.TrimSpace(videoID)
	secondaryID = strings.TrimSpace(secondaryID)
	if videoID == "" && secondaryID == "" {
		return Result{}, &Error{Code: CodeMissingIdentifier}
	}

	if strings.HasPrefix(videoID, DemoPrefix) {
		if r.met != nil {
			r.met.IncResolve("demo")
		}
		return Result{URL: r.cfg.DemoURL, TTLHintSeconds: int(r.cfg.DemoTTL.Seconds())}, nil
	}

	key := Key{VideoID: videoID, SecondaryID: secondaryID}

	if res, ok := r.cached(key); ok {
		if r.met != nil {
			r.met.IncResolveCacheHit()
			r.met.IncResolve("hit")
		}
		return res, nil
	}

	if r.brk.Blocked(key) {
		if r.met != nil {
			r.met.IncBreakerOpen("resolve")
			r.met.IncResolve(CodeCircuitOpen)
		}
		return Result{}, &Error{Code: CodeCircuitOpen}
	}

	v, err, _ := r.group.Do(key.flightKey(), func() (any, error) {
		// A latecomer that queued behind a finished flight may find the
		// winner's entry already cached.
		if res, ok := r.cached(key); ok {
			return res, nil
		}
		return r.fetch(ctx, key)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// cached returns a live entry with the TTL hint recomputed from now.
func (r *Resolver) cached(key Key) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[key]
	if !ok {
		return Result{}, false
	}
	remaining := e.expiresAt.Sub(r.now())
	if remaining <= 0 {
		delete(r.cache, key)
		return Result{}, false
	}
	return Result{URL: e.url, TTLHintSeconds: int(remaining.Seconds())}, true
}

// fetch performs the upstream resolve and updates cache/breaker state.
// Failure state is recorded before propagating, so it is durable even if
// the caller ignores the error.
func (r *Resolver) fetch(ctx context.Context, key Key) (Result, error) {
	res, err := r.doUpstream(ctx, key)
	if err != nil {
		r.brk.Failure(key)
		if r.met != nil {
			r.met.IncResolve(CodeOf(err))
		}
		r.log.WithStream(key.VideoID, key.SecondaryID).Warn("resolve failed",
			"code", CodeOf(err), "error", err, "failures", r.brk.Failures(key))
		return Result{}, err
	}

	r.brk.Success(key)
	r.mu.Lock()
	ttl := time.Duration(res.TTLHintSeconds) * time.Second
	expiry := ttl - cacheMargin
	if expiry <= 0 {
		expiry = ttl
	}
	r.cache[key] = cacheEntry{url: res.URL, expiresAt: r.now().Add(expiry)}
	r.mu.Unlock()

	if r.met != nil {
		r.met.IncResolve("resolved")
	}
	r.log.WithStream(key.VideoID, key.SecondaryID).Debug("resolved stream", "ttl_s", res.TTLHintSeconds)
	return res, nil
}

// resolvePayload is the envelope this upstream expects on its resolve call.
type resolvePayload struct {
	App         string `json:"app"`
	Version     string `json:"version"`
	Language    string `json:"language"`
	VideoID     string `json:"videoId,omitempty"`
	SecondaryID string `json:"secondaryId,omitempty"`
}

// resolveReply tolerates the two field names the upstream has used.
type resolveReply struct {
	URL       string `json:"url"`
	StreamURL string `json:"streamUrl"`
}

func (r *Resolver) doUpstream(ctx context.Context, key Key) (Result, error) {
	payload, err := json.Marshal(resolvePayload{
		App:         r.cfg.AppName,
		Version:     r.cfg.AppVersion,
		Language:    r.cfg.Language,
		VideoID:     key.VideoID,
		SecondaryID: key.SecondaryID,
	})
	if err != nil {
		return Result{}, &Error{Code: CodeResolveFailed, Err: err}
	}

	resp, err := r.exec.Do(ctx, http.MethodPost, resolveEndpoint,
		map[string]string{"Content-Type": "application/json"}, payload)
	if err != nil {
		return Result{}, r.classify(err)
	}
	if !resp.OK() {
		return Result{}, r.classify(resp.HTTPError())
	}

	var reply resolveReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return Result{}, &Error{Code: CodeUpstreamError, Err: &upstream.Error{
			Kind: upstream.KindMalformedPayload, Status: resp.Status, Err: err,
		}}
	}
	manifestURL := reply.URL
	if manifestURL == "" {
		manifestURL = reply.StreamURL
	}
	if manifestURL == "" {
		return Result{}, &Error{Code: CodeUpstreamError, Err: &upstream.Error{
			Kind: upstream.KindMalformedPayload, Status: resp.Status, Snippet: "no url in resolve reply",
		}}
	}

	ttl := r.ttlFor(manifestURL)
	return Result{URL: manifestURL, TTLHintSeconds: int(ttl.Seconds())}, nil
}

// ttlFor prefers the expiry token embedded in the manifest URL itself:
// max(minTTL, embedded - now - margin). Without a parseable token the
// configured default applies.
func (r *Resolver) ttlFor(manifestURL string) time.Duration {
	expiry, ok := embeddedExpiry(manifestURL, r.now())
	if !ok {
		return r.cfg.DefaultTTL
	}
	ttl := expiry.Sub(r.now()) - expiryMargin
	if ttl < r.cfg.MinTTL {
		return r.cfg.MinTTL
	}
	return ttl
}

// expiryParams are the query keys the upstream's CDN uses for the
// signed-URL expiry timestamp.
var expiryParams = []string{"e", "expires", "exp", "end"}

// embeddedExpiry extracts a unix-timestamp expiry token from the URL's
// query string. Tokens may be seconds or milliseconds; anything not in a
// plausible range around now is ignored.
func embeddedExpiry(manifestURL string, now time.Time) (time.Time, bool) {
	parsed, err := url.Parse(manifestURL)
	if err != nil {
		return time.Time{}, false
	}
	query := parsed.Query()
	for _, param := range expiryParams {
		raw := query.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		var ts time.Time
		if n > 1e12 {
			ts = time.UnixMilli(n)
		} else {
			ts = time.Unix(n, 0)
		}
		// Sanity window: a signed URL expiry lives between now-ish and
		// a few days out.
		if ts.Before(now.Add(-time.Hour)) || ts.After(now.Add(7*24*time.Hour)) {
			continue
		}
		return ts, true
	}
	return time.Time{}, false
}

// classify maps upstream failures to the public resolve codes.
func (r *Resolver) classify(err error) *Error {
	switch upstream.KindOf(err) {
	case upstream.KindHTTP, upstream.KindAuthExpired:
		var ue *upstream.Error
		if errors.As(err, &ue) {
			if ue.Status >= 500 {
				return &Error{Code: CodeUpstreamError, Err: err}
			}
			if ue.Kind == upstream.KindHTTP {
				return &Error{Code: CodeNotFound, Err: err}
			}
		}
		// Auth failure that survived the retry: ambiguous, not a 404.
		return &Error{Code: CodeResolveFailed, Err: err}
	case upstream.KindMalformedPayload:
		return &Error{Code: CodeUpstreamError, Err: err}
	default:
		return &Error{Code: CodeResolveFailed, Err: err}
	}
}
