package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8094 {
		t.Errorf("Port = %d, want 8094", cfg.Port)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if cfg.SessionReuseWindow != 10*time.Minute {
		t.Errorf("SessionReuseWindow = %v", cfg.SessionReuseWindow)
	}
	if len(cfg.WarmupPaths) != 3 || cfg.WarmupPaths[0] != "/" {
		t.Errorf("WarmupPaths = %v", cfg.WarmupPaths)
	}
	if cfg.SessionCookieName != "session_id" {
		t.Errorf("SessionCookieName = %q", cfg.SessionCookieName)
	}
	if cfg.ResolveDefaultTTL != 120*time.Second || cfg.ResolveMinTTL != 30*time.Second {
		t.Errorf("resolve TTLs = %v / %v", cfg.ResolveDefaultTTL, cfg.ResolveMinTTL)
	}
	if len(cfg.OperatorLeagues) != 1 || cfg.OperatorLeagues[0] != 0 {
		t.Errorf("OperatorLeagues = %v", cfg.OperatorLeagues)
	}
	if cfg.ScheduleSyncCron != "@every 2m" {
		t.Errorf("ScheduleSyncCron = %q", cfg.ScheduleSyncCron)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("UPSTREAM_BASE_URL", "https://book.example.org")
	t.Setenv("UPSTREAM_TIMEOUT", "10")
	t.Setenv("SESSION_REUSE_WINDOW", "5m")
	t.Setenv("WARMUP_PATHS", "/, /sports ,/api/feed")
	t.Setenv("OPERATOR_LEAGUES", "11, 42,bad, 7")
	t.Setenv("LOG_JSON", "true")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.UpstreamBaseURL != "https://book.example.org" {
		t.Errorf("UpstreamBaseURL = %q", cfg.UpstreamBaseURL)
	}
	// Bare integers are seconds; duration strings also work.
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if cfg.SessionReuseWindow != 5*time.Minute {
		t.Errorf("SessionReuseWindow = %v", cfg.SessionReuseWindow)
	}
	wantPaths := []string{"/", "/sports", "/api/feed"}
	if len(cfg.WarmupPaths) != len(wantPaths) {
		t.Fatalf("WarmupPaths = %v", cfg.WarmupPaths)
	}
	for i := range wantPaths {
		if cfg.WarmupPaths[i] != wantPaths[i] {
			t.Errorf("WarmupPaths[%d] = %q, want %q", i, cfg.WarmupPaths[i], wantPaths[i])
		}
	}
	wantLeagues := []int64{11, 42, 7}
	if len(cfg.OperatorLeagues) != len(wantLeagues) {
		t.Fatalf("OperatorLeagues = %v", cfg.OperatorLeagues)
	}
	for i := range wantLeagues {
		if cfg.OperatorLeagues[i] != wantLeagues[i] {
			t.Errorf("OperatorLeagues[%d] = %d, want %d", i, cfg.OperatorLeagues[i], wantLeagues[i])
		}
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false")
	}
}

func TestLegacyGlobalProxy(t *testing.T) {
	t.Setenv("GLOBAL_PROXY", "socks5://127.0.0.1:1080")

	cfg := Load()
	if len(cfg.GlobalProxies) != 1 || cfg.GlobalProxies[0] != "socks5://127.0.0.1:1080" {
		t.Errorf("GlobalProxies = %v", cfg.GlobalProxies)
	}
}

func TestUpstreamHost(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"https://betting.example.com", "betting.example.com"},
		{"https://betting.example.com/live?x=1", "betting.example.com"},
		{"http://localhost:8080/path", "localhost:8080"},
		{"", ""},
	}

	for _, tt := range tests {
		cfg := &Config{UpstreamBaseURL: tt.baseURL}
		if got := cfg.UpstreamHost(); got != tt.want {
			t.Errorf("UpstreamHost(%q) = %q, want %q", tt.baseURL, got, tt.want)
		}
	}
}
