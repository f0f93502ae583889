// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"betstream-relay/pkg/config"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"
	"betstream-relay/pkg/resolver"
	"betstream-relay/pkg/schedule"
	"betstream-relay/pkg/upstream"
)

// Context holds all application runtime dependencies. The relay's
// mutable state (cookie jar, resolve cache, breakers) lives inside these
// explicit instances, constructed once at process start; there are no
// package-level singletons.
type Context struct {
	Config   *config.Config
	Log      *logging.Logger
	Metrics  *metrics.Metrics
	Upstream *upstream.Client
	Resolver *resolver.Resolver
	Schedule *schedule.Service
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config: cfg,
		Log:    log,
	}
}

// WithMetrics sets the metrics registry.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}

// WithUpstream sets the upstream request executor.
func (c *Context) WithUpstream(u *upstream.Client) *Context {
	c.Upstream = u
	return c
}

// WithResolver sets the stream resolver.
func (c *Context) WithResolver(r *resolver.Resolver) *Context {
	c.Resolver = r
	return c
}

// WithSchedule sets the schedule service.
func (c *Context) WithSchedule(s *schedule.Service) *Context {
	c.Schedule = s
	return c
}
