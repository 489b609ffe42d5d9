package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FB_PAGE_ID", "1234567890")
	t.Setenv("FB_PAGE_TOKEN", "test_page_token")
	t.Setenv("DATA_DIR", t.TempDir())
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.PageID != "1234567890" {
		t.Errorf("expected page ID '1234567890', got %q", cfg.PageID)
	}
	if cfg.PageToken != "test_page_token" {
		t.Errorf("expected page token 'test_page_token', got %q", cfg.PageToken)
	}

	// Defaults
	if cfg.Port != "8445" {
		t.Errorf("expected default port '8445', got %q", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected default session TTL 24h, got %v", cfg.SessionTTL)
	}
	if cfg.Bot.MaxSteps != 10 {
		t.Errorf("expected default max steps 10, got %d", cfg.Bot.MaxSteps)
	}
	if cfg.Bot.MaxMessageLength != 320 {
		t.Errorf("expected message length limit 320, got %d", cfg.Bot.MaxMessageLength)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	_ = os.Unsetenv("FB_PAGE_ID")
	_ = os.Unsetenv("FB_PAGE_TOKEN")
	t.Setenv("DATA_DIR", t.TempDir())

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail without page credentials")
	}
	if !strings.Contains(err.Error(), "FB_PAGE_ID") {
		t.Errorf("expected FB_PAGE_ID in error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "FB_PAGE_TOKEN") {
		t.Errorf("expected FB_PAGE_TOKEN in error, got: %v", err)
	}
}

func TestVerifyTokenOptionalAtStartup(t *testing.T) {
	setRequiredEnv(t)
	_ = os.Unsetenv("FB_VERIFY_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() should not require FB_VERIFY_TOKEN: %v", err)
	}
	if cfg.VerifyToken != "" {
		t.Errorf("expected empty verify token, got %q", cfg.VerifyToken)
	}
}

func TestEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("WIT_MAX_STEPS", "5")
	t.Setenv("BREWERY_BASE_URL", "http://localhost:1234")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("expected port '9000', got %q", cfg.Port)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("expected session TTL 1h, got %v", cfg.SessionTTL)
	}
	if cfg.Bot.MaxSteps != 5 {
		t.Errorf("expected max steps 5, got %d", cfg.Bot.MaxSteps)
	}
	if cfg.BreweryBaseURL != "http://localhost:1234" {
		t.Errorf("expected overridden brewery base URL, got %q", cfg.BreweryBaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "non-positive session TTL",
			mutate:  func(c *Config) { c.SessionTTL = 0 },
			wantErr: "SESSION_TTL",
		},
		{
			name:    "non-positive turn timeout",
			mutate:  func(c *Config) { c.Bot.TurnTimeout = 0 },
			wantErr: "TURN_TIMEOUT",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Bot.APIMaxRetries = -1 },
			wantErr: "API_MAX_RETRIES",
		},
		{
			name:    "zero max steps",
			mutate:  func(c *Config) { c.Bot.MaxSteps = 0 },
			wantErr: "WIT_MAX_STEPS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}

			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in error, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HasWit() {
		t.Error("HasWit() should be false without WIT_TOKEN")
	}
	if cfg.HasUntappd() {
		t.Error("HasUntappd() should be false without credentials")
	}

	t.Setenv("WIT_TOKEN", "wit_token")
	t.Setenv("UNTAPPD_CLIENT_ID", "id")
	t.Setenv("UNTAPPD_CLIENT_SECRET", "secret")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.HasWit() {
		t.Error("HasWit() should be true with WIT_TOKEN")
	}
	if !cfg.HasUntappd() {
		t.Error("HasUntappd() should be true with both credentials")
	}
}

func TestSQLitePath(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	if got := cfg.SQLitePath(); got != "/data/sessions.db" {
		t.Errorf("expected '/data/sessions.db', got %q", got)
	}
}
