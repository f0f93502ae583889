package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"betstream-relay/pkg/appctx"
	"betstream-relay/pkg/config"
	"betstream-relay/pkg/feeds"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/resolver"
	"betstream-relay/pkg/schedule"
	"betstream-relay/pkg/upstream"
)

// stubExecutor scripts the upstream resolve call for the real resolver.
type stubExecutor struct {
	resp *upstream.Response
	err  error
}

func (s *stubExecutor) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (*upstream.Response, error) {
	return s.resp, s.err
}

// stubFeed is a scripted schedule feed.
type stubFeed struct {
	events []feeds.Event
	err    error
}

func (s *stubFeed) FetchEvents(ctx context.Context) ([]feeds.Event, error) {
	return s.events, s.err
}

func newTestMux(exec resolver.Executor, feed schedule.EventSource) *http.ServeMux {
	log := logging.New("error", false, io.Discard)
	ctx := appctx.New(&config.Config{}, log)

	ctx.WithResolver(resolver.New(resolver.Config{
		DefaultTTL: 120 * time.Second,
		MinTTL:     30 * time.Second,
		DemoURL:    "https://cdn.example.com/demo.m3u8",
		DemoTTL:    time.Hour,
	}, exec, log, nil))
	ctx.WithSchedule(schedule.New(feed, nil, "", time.Minute, "@every 2m", log, nil))

	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	return mux
}

func okResolve(url string) *stubExecutor {
	return &stubExecutor{resp: &upstream.Response{
		Status: http.StatusOK,
		Body:   []byte(fmt.Sprintf(`{"url":%q}`, url)),
	}}
}

func liveFeed() *stubFeed {
	return &stubFeed{events: []feeds.Event{
		{ID: "op-1", MatchKey: "m1", Title: "A - B", Status: feeds.StatusLive, VideoID: "v1", Origin: feeds.OriginOperator},
		{ID: "op-2", MatchKey: "m2", Title: "C - D", Status: feeds.StatusUpcoming, Origin: feeds.OriginOperator},
	}}
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestMux(okResolve("x"), liveFeed())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestStreamsEndpoint(t *testing.T) {
	mux := newTestMux(okResolve("x"), liveFeed())

	t.Run("full schedule", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var body struct {
			Events []feeds.Event `json:"events"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Events) != 2 {
			t.Errorf("got %d events, want 2", len(body.Events))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams?status=live", nil))

		var body struct {
			Events []feeds.Event `json:"events"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Events) != 1 || body.Events[0].ID != "op-1" {
			t.Errorf("filtered events = %+v", body.Events)
		}
	})

	t.Run("filter matching nothing yields empty list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams?status=finished", nil))

		if got := strings.TrimSpace(rec.Body.String()); got != `{"events":[]}` {
			t.Errorf("body = %s, want empty list not null", got)
		}
	})
}

func TestStreamsEndpoint_ScheduleUnavailable(t *testing.T) {
	mux := newTestMux(okResolve("x"), &stubFeed{err: fmt.Errorf("feed down")})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		exec       *stubExecutor
		wantStatus int
		wantField  string
		wantValue  string
	}{
		{
			name:       "success",
			body:       `{"videoId":"42"}`,
			exec:       okResolve("https://cdn.example.com/42.m3u8"),
			wantStatus: http.StatusOK,
			wantField:  "url",
			wantValue:  "https://cdn.example.com/42.m3u8",
		},
		{
			name:       "missing identifiers",
			body:       `{"videoId":"","secondaryId":""}`,
			exec:       okResolve("x"),
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  resolver.CodeMissingIdentifier,
		},
		{
			name:       "invalid body",
			body:       `{not json`,
			exec:       okResolve("x"),
			wantStatus: http.StatusBadRequest,
			wantField:  "error",
			wantValue:  "invalid_body",
		},
		{
			name:       "unknown stream",
			body:       `{"videoId":"42"}`,
			exec:       &stubExecutor{resp: &upstream.Response{Status: http.StatusNotFound, Body: []byte("no")}},
			wantStatus: http.StatusNotFound,
			wantField:  "error",
			wantValue:  resolver.CodeNotFound,
		},
		{
			name:       "upstream outage",
			body:       `{"videoId":"42"}`,
			exec:       &stubExecutor{resp: &upstream.Response{Status: http.StatusBadGateway, Body: []byte("down")}},
			wantStatus: http.StatusBadGateway,
			wantField:  "error",
			wantValue:  resolver.CodeUpstreamError,
		},
		{
			name:       "network failure",
			body:       `{"videoId":"42"}`,
			exec:       &stubExecutor{err: fmt.Errorf("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantField:  "error",
			wantValue:  resolver.CodeResolveFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(tt.exec, liveFeed())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/streams/resolve", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := body[tt.wantField]; got != tt.wantValue {
				t.Errorf("%s = %v, want %q", tt.wantField, got, tt.wantValue)
			}
		})
	}
}

func TestResolveEndpoint_CircuitOpenAfterFailure(t *testing.T) {
	mux := newTestMux(&stubExecutor{resp: &upstream.Response{Status: http.StatusBadGateway, Body: []byte("down")}}, liveFeed())

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/streams/resolve", strings.NewReader(`{"videoId":"42"}`))
		mux.ServeHTTP(rec, req)
		return rec
	}

	post() // opens the pair's breaker
	rec := post()

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != resolver.CodeCircuitOpen {
		t.Errorf("error = %q, want %q", body["error"], resolver.CodeCircuitOpen)
	}
}

func TestDemoResolvePassthrough(t *testing.T) {
	// The executor would fail; the demo prefix must never reach it.
	mux := newTestMux(&stubExecutor{err: fmt.Errorf("must not be called")}, liveFeed())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/streams/resolve", strings.NewReader(`{"videoId":"demo-1"}`))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var res resolver.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.URL != "https://cdn.example.com/demo.m3u8" {
		t.Errorf("URL = %q", res.URL)
	}
}
