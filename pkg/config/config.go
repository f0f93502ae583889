// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication for admin-ish endpoints
	APIPassword string

	// Upstream sportsbook settings
	UpstreamBaseURL    string
	UpstreamTimeout    time.Duration
	UpstreamAppName    string
	UpstreamAppVersion string
	UpstreamLanguage   string
	SessionCookieName  string
	SessionReuseWindow time.Duration
	WarmupPaths        []string

	// Operator feed settings
	OperatorLeagues []int64

	// Resolve settings
	ResolveDefaultTTL time.Duration
	ResolveMinTTL     time.Duration
	DemoStreamURL     string
	DemoStreamTTL     time.Duration

	// Marketing feed settings
	MarketingBaseURL      string
	MarketingTokenURL     string
	MarketingClientID     string
	MarketingClientSecret string
	MarketingCacheTTL     time.Duration

	// Schedule settings
	ScheduleCacheTTL time.Duration
	ScheduleSyncCron string
	FallbackFile     string

	// Proxy settings
	GlobalProxies []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 8094)
	cfg := &Config{
		Port:         port,
		BaseURL:      getEnvString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		ReadTimeout:  getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvDuration("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		APIPassword:  os.Getenv("API_PASSWORD"),

		UpstreamBaseURL:    getEnvString("UPSTREAM_BASE_URL", "https://betting.example.com"),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 5*time.Second),
		UpstreamAppName:    getEnvString("UPSTREAM_APP_NAME", "LiveWebApp"),
		UpstreamAppVersion: getEnvString("UPSTREAM_APP_VERSION", "1.0"),
		UpstreamLanguage:   getEnvString("UPSTREAM_LANGUAGE", "en"),
		SessionCookieName:  getEnvString("SESSION_COOKIE_NAME", "session_id"),
		SessionReuseWindow: getEnvDuration("SESSION_REUSE_WINDOW", 10*time.Minute),
		WarmupPaths:        getEnvStringSlice("WARMUP_PATHS", []string{"/", "/live", "/api/v1/allsports"}),

		OperatorLeagues: getEnvInt64Slice("OPERATOR_LEAGUES", []int64{0}),

		ResolveDefaultTTL: getEnvDuration("RESOLVE_DEFAULT_TTL", 120*time.Second),
		ResolveMinTTL:     getEnvDuration("RESOLVE_MIN_TTL", 30*time.Second),
		DemoStreamURL:     getEnvString("DEMO_STREAM_URL", "https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8"),
		DemoStreamTTL:     getEnvDuration("DEMO_STREAM_TTL", time.Hour),

		MarketingBaseURL:      getEnvString("MARKETING_BASE_URL", ""),
		MarketingTokenURL:     getEnvString("MARKETING_TOKEN_URL", ""),
		MarketingClientID:     os.Getenv("MARKETING_CLIENT_ID"),
		MarketingClientSecret: os.Getenv("MARKETING_CLIENT_SECRET"),
		MarketingCacheTTL:     getEnvDuration("MARKETING_CACHE_TTL", 60*time.Second),

		ScheduleCacheTTL: getEnvDuration("SCHEDULE_CACHE_TTL", 30*time.Second),
		ScheduleSyncCron: getEnvString("SCHEDULE_SYNC_CRON", "@every 2m"),
		FallbackFile:     getEnvString("FALLBACK_FILE", ""),

		GlobalProxies: getEnvStringSlice("GLOBAL_PROXIES", nil),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	return cfg
}

// UpstreamHost returns the host portion of the upstream base URL.
func (c *Config) UpstreamHost() string {
	s := c.UpstreamBaseURL
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/?"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt64Slice(key string, defaultVal []int64) []int64 {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]int64, 0, len(parts))
		for _, p := range parts {
			if n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
				result = append(result, n)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
