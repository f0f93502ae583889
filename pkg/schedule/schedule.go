// Package schedule maintains the merged list of watchable events from
// both upstream feeds, refreshed in the background and served from a
// short-TTL cache.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"betstream-relay/pkg/feeds"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"

	"github.com/robfig/cron/v3"
)

// EventSource is a feed that can produce canonical events.
type EventSource interface {
	FetchEvents(ctx context.Context) ([]feeds.Event, error)
}

// Service merges the operator and marketing feeds into one deduplicated
// schedule. When both feeds fail it falls back to a read-only static
// JSON file of canonical records (origin "manual").
type Service struct {
	operator  EventSource
	marketing EventSource // nil when the marketing feed is not configured

	fallbackFile string
	cacheTTL     time.Duration
	cronSpec     string

	cron *cron.Cron
	log  *logging.Logger
	met  *metrics.Metrics

	mu       sync.Mutex
	cached   []feeds.Event
	cachedAt time.Time
	now      func() time.Time
}

// New creates the schedule service.
func New(operator, marketing EventSource, fallbackFile string, cacheTTL time.Duration, cronSpec string, log *logging.Logger, met *metrics.Metrics) *Service {
	return &Service{
		operator:     operator,
		marketing:    marketing,
		fallbackFile: fallbackFile,
		cacheTTL:     cacheTTL,
		cronSpec:     cronSpec,
		log:          log.WithComponent("schedule"),
		met:          met,
		now:          time.Now,
	}
}

// Events returns the merged schedule, refreshing when the cache is stale.
// A refresh failure with a previously cached schedule serves the stale
// copy rather than an error.
func (s *Service) Events(ctx context.Context) ([]feeds.Event, error) {
	s.mu.Lock()
	fresh := s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL
	cached := s.cached
	s.mu.Unlock()

	if fresh {
		return cached, nil
	}

	if err := s.Refresh(ctx); err != nil {
		if cached != nil {
			s.log.Warn("serving stale schedule after refresh failure", "error", err)
			return cached, nil
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached, nil
}

// Refresh fetches both feeds, merges and recaches. One failing feed only
// degrades the result; the static fallback is used when both fail.
func (s *Service) Refresh(ctx context.Context) error {
	var merged []feeds.Event
	feedErrs := 0
	feedCount := 1

	opEvents, err := s.operator.FetchEvents(ctx)
	if err != nil {
		feedErrs++
		s.log.Warn("operator feed unavailable", "error", err)
	}
	merged = append(merged, opEvents...)

	if s.marketing != nil {
		feedCount++
		mkEvents, err := s.marketing.FetchEvents(ctx)
		if err != nil {
			feedErrs++
			s.log.Warn("marketing feed unavailable", "error", err)
		}
		merged = append(merged, mkEvents...)
	}

	if len(merged) == 0 && feedErrs == feedCount {
		if s.met != nil {
			s.met.IncScheduleRefreshError()
		}
		fallback, err := s.loadFallback()
		if err != nil {
			return fmt.Errorf("all feeds failed and no fallback: %w", err)
		}
		merged = fallback
		s.log.Warn("all feeds failed, serving fallback file", "events", len(merged))
	}

	deduped := feeds.Dedupe(merged)

	s.mu.Lock()
	s.cached = deduped
	s.cachedAt = s.now()
	s.mu.Unlock()

	if s.met != nil {
		s.met.SetScheduleEvents(len(deduped))
	}
	s.log.Debug("schedule refreshed", "events", len(deduped))
	return nil
}

// StartBackground schedules periodic refreshes on the configured cron
// spec and kicks off an initial refresh immediately.
func (s *Service) StartBackground(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cronSpec, func() {
		if err := s.Refresh(ctx); err != nil {
			s.log.Warn("background refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule cron %q: %w", s.cronSpec, err)
	}
	c.Start()
	s.cron = c

	go func() {
		if err := s.Refresh(ctx); err != nil {
			s.log.Warn("initial refresh failed", "error", err)
		}
	}()
	return nil
}

// Stop halts the background refresher.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// loadFallback reads the static JSON list of canonical records. Entries
// are forced to origin "manual" and HasStream is recomputed, never
// trusted from the file.
func (s *Service) loadFallback() ([]feeds.Event, error) {
	if s.fallbackFile == "" {
		return nil, fmt.Errorf("no fallback file configured")
	}
	data, err := os.ReadFile(s.fallbackFile)
	if err != nil {
		return nil, err
	}
	var events []feeds.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("fallback file: %w", err)
	}
	for i := range events {
		events[i].Origin = feeds.OriginManual
		events[i].RecomputeHasStream()
	}
	return events, nil
}
