// Package app provides the main application setup and dependency injection.
package app

import (
	"context"

	"betstream-relay/pkg/appctx"
	"betstream-relay/pkg/config"
	"betstream-relay/pkg/feeds"
	"betstream-relay/pkg/handlers/api"
	"betstream-relay/pkg/httpclient"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"
	"betstream-relay/pkg/resolver"
	"betstream-relay/pkg/schedule"
	"betstream-relay/pkg/server"
	"betstream-relay/pkg/upstream"
)

// App is the main application container.
type App struct {
	Ctx    *appctx.Context
	Server *server.Server
}

// New creates and initializes the application. All mutable relay state
// (cookie jar, resolve cache, breakers) is constructed here, once, and
// passed down explicitly.
func New() (*App, error) {
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing betstream relay", "port", cfg.Port, "upstream", cfg.UpstreamHost())

	ctx := appctx.New(cfg, log)

	met := metrics.New()
	ctx.WithMetrics(met)

	httpClient := httpclient.New(cfg, log)

	// Session relay: jar -> warm-up sequencer -> request executor.
	jar := upstream.NewJar()
	warmer := upstream.NewWarmer(cfg.UpstreamBaseURL, cfg.WarmupPaths, cfg.SessionCookieName,
		cfg.SessionReuseWindow, jar, httpClient, log, met)
	exec := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamAppName, cfg.UpstreamTimeout,
		jar, warmer, httpClient, log, met)
	ctx.WithUpstream(exec)

	res := resolver.New(resolver.Config{
		DefaultTTL: cfg.ResolveDefaultTTL,
		MinTTL:     cfg.ResolveMinTTL,
		DemoURL:    cfg.DemoStreamURL,
		DemoTTL:    cfg.DemoStreamTTL,
		AppName:    cfg.UpstreamAppName,
		AppVersion: cfg.UpstreamAppVersion,
		Language:   cfg.UpstreamLanguage,
	}, exec, log, met)
	ctx.WithResolver(res)

	operator := feeds.NewOperatorClient(exec, cfg.OperatorLeagues, log, met)

	var marketing schedule.EventSource
	mk := feeds.NewMarketingClient(cfg.MarketingBaseURL, cfg.MarketingTokenURL,
		cfg.MarketingClientID, cfg.MarketingClientSecret, cfg.MarketingCacheTTL, httpClient, log)
	if mk.Enabled() {
		marketing = mk
		log.Info("marketing feed enabled", "base_url", cfg.MarketingBaseURL)
	}

	sched := schedule.New(operator, marketing, cfg.FallbackFile, cfg.ScheduleCacheTTL,
		cfg.ScheduleSyncCron, log, met)
	ctx.WithSchedule(sched)

	srv := server.New(cfg, log)
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:    ctx,
		Server: srv,
	}, nil
}

// Run starts the background refresher and the HTTP server.
func (a *App) Run() error {
	if err := a.Ctx.Schedule.StartBackground(context.Background()); err != nil {
		return err
	}
	a.Ctx.Log.Info("starting betstream relay server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
	a.Ctx.Schedule.Stop()
}
