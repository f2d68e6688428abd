package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/cleardeal/internal/config"
	"github.com/garnizeh/cleardeal/pkg/settlement"
)

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.JWTSecret = "strongsecret"
	return cfg
}

func TestValidate_InsecureJWT_FailsWhenNotDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.JWTSecret = "supersecretkey"
	cfg.Settlement.Mode = settlement.ModeHTTP

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail for insecure JWT in non-development env")
	}
}

func TestValidate_InsecureJWT_AllowsDevelopment(t *testing.T) {
	cfg := config.Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to succeed in development env, got: %v", err)
	}
}

func TestValidate_Settlement(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mode    string
		baseURL string
		wantErr bool
	}{
		{name: "ledger in development", env: "development", mode: settlement.ModeLedger},
		{name: "empty mode defaults to ledger", env: "development", mode: ""},
		{name: "ledger in production", env: "production", mode: settlement.ModeLedger, wantErr: true},
		{name: "http with url", env: "production", mode: settlement.ModeHTTP, baseURL: "http://settle:8545"},
		{name: "http without url", env: "production", mode: settlement.ModeHTTP, wantErr: true},
		{name: "unknown mode", env: "development", mode: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Env = tt.env
			cfg.Settlement.Mode = tt.mode
			cfg.Settlement.BaseURL = tt.baseURL

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantErr && cfg.Settlement.Mode == "" {
				t.Fatalf("mode was not defaulted")
			}
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.APITimeout = 0
	cfg.TokenDuration = 0
	cfg.Workers = 0
	cfg.SubmissionSchemaVersion = ""
	cfg.Notify.WatchInterval = 0
	cfg.Settlement.Timeout = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.APITimeout != 15*time.Second || cfg.TokenDuration != time.Hour || cfg.Workers != 2 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.SubmissionSchemaVersion != "v1" || cfg.Notify.WatchInterval <= 0 || cfg.Settlement.Timeout <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidate_MissingDatabasePath(t *testing.T) {
	cfg := validConfig()
	cfg.DatabasePath = ""

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty database path")
	}
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
addr: ":9090"
database_path: "/tmp/deal.db"
settlement:
  mode: http
  base_url: "http://from-yaml:8545"
  timeout: 5s
notify:
  webhook_url: "http://hooks.local/events"
rate_limit:
  rps: 3
  burst: 6
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CLEARDEAL_DATABASE_PATH", "/var/lib/cleardeal.db")
	t.Setenv("CLEARDEAL_SETTLEMENT_BASE_URL", "http://from-env:8545")
	t.Setenv("CLEARDEAL_RATE_LIMIT_BURST", "9")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q, want yaml value", cfg.Addr)
	}
	if cfg.DatabasePath != "/var/lib/cleardeal.db" {
		t.Errorf("database path = %q, want env value", cfg.DatabasePath)
	}
	if cfg.Settlement.Mode != settlement.ModeHTTP || cfg.Settlement.BaseURL != "http://from-env:8545" {
		t.Errorf("settlement = %+v", cfg.Settlement)
	}
	if cfg.Settlement.Timeout != 5*time.Second {
		t.Errorf("settlement timeout = %v", cfg.Settlement.Timeout)
	}
	if cfg.Notify.WebhookURL != "http://hooks.local/events" {
		t.Errorf("webhook = %q", cfg.Notify.WebhookURL)
	}
	if cfg.RateLimit.RPS != 3 || cfg.RateLimit.Burst != 9 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.TokenDuration != time.Hour {
		t.Errorf("token duration default lost: %v", cfg.TokenDuration)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
