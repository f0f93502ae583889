// Package api provides the HTTP handlers consumed by the web player and
// schedule views.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"betstream-relay/pkg/appctx"
	"betstream-relay/pkg/feeds"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/resolver"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/streams", h.handleStreams)
	mux.HandleFunc("POST /api/streams/resolve", h.handleResolve)

	if h.ctx.Metrics != nil {
		mux.Handle("GET /metrics", h.ctx.Metrics.Handler())
	}
}

// handleHealth reports process liveness.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStreams serves the merged schedule, optionally filtered by
// ?status=live|upcoming|finished.
func (h *Handlers) handleStreams(w http.ResponseWriter, r *http.Request) {
	events, err := h.ctx.Schedule.Events(r.Context())
	if err != nil {
		h.log.WithError(err).Error("schedule unavailable")
		writeError(w, http.StatusServiceUnavailable, "schedule_unavailable")
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		events = feeds.FilterByStatus(events, feeds.Status(status))
	}
	if events == nil {
		events = []feeds.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// resolveRequest is the player's resolve call body.
type resolveRequest struct {
	VideoID     string `json:"videoId"`
	SecondaryID string `json:"secondaryId"`
}

// handleResolve turns a video identifier pair into a playable URL with a
// TTL hint.
func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.VideoID == "" && req.SecondaryID == "" {
		writeError(w, http.StatusBadRequest, resolver.CodeMissingIdentifier)
		return
	}

	result, err := h.ctx.Resolver.Resolve(r.Context(), req.VideoID, req.SecondaryID)
	if err != nil {
		code := resolver.CodeOf(err)
		h.log.WithStream(req.VideoID, req.SecondaryID).Warn("resolve failed", "code", code)
		writeError(w, statusForCode(code), code)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// statusForCode maps resolver failure codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case resolver.CodeMissingIdentifier:
		return http.StatusBadRequest
	case resolver.CodeNotFound:
		return http.StatusNotFound
	case resolver.CodeUpstreamError:
		return http.StatusBadGateway
	default:
		// resolve_failed, resolve_circuit_open and anything ambiguous
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
