package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/cleardeal/pkg/settlement"
)

// EnvPrefix prefixes every environment override, e.g. CLEARDEAL_ADDR.
const EnvPrefix = "CLEARDEAL"

const (
	defaultJWTSecret     = "supersecretkey"
	defaultSchemaVersion = "v1"
)

type Config struct {
	Env                     string            `yaml:"env"`
	Addr                    string            `yaml:"addr"`
	JWTSecret               string            `yaml:"jwt_secret" split_words:"true"`
	APITimeout              time.Duration     `yaml:"timeout" envconfig:"TIMEOUT"`
	DatabasePath            string            `yaml:"database_path" split_words:"true"`
	TokenDuration           time.Duration     `yaml:"token_duration" split_words:"true"`
	MigrateOnStart          bool              `yaml:"migrate_on_start" split_words:"true"`
	Workers                 int               `yaml:"workers"`
	SubmissionSchemaVersion string            `yaml:"submission_schema_version" split_words:"true"`
	AllowedOrigins          []string          `yaml:"allowed_origins" split_words:"true"`
	Settlement              settlement.Config `yaml:"settlement"`
	Notify                  NotifyConfig      `yaml:"notify"`
	RateLimit               RateLimitConfig   `yaml:"rate_limit" split_words:"true"`
}

type NotifyConfig struct {
	// WebhookURL receives every lifecycle event; empty disables delivery.
	WebhookURL string `yaml:"webhook_url" split_words:"true"`
	// WatchInterval is how often the store is polled for foreign commits.
	WatchInterval time.Duration `yaml:"watch_interval" split_words:"true"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" envconfig:"RPS"`
	Burst int     `yaml:"burst"`
}

func Default() *Config {
	return &Config{
		Env:                     "development",
		Addr:                    ":8080",
		JWTSecret:               defaultJWTSecret,
		APITimeout:              15 * time.Second,
		DatabasePath:            "cleardeal.db",
		TokenDuration:           time.Hour,
		MigrateOnStart:          true,
		Workers:                 2,
		SubmissionSchemaVersion: defaultSchemaVersion,
		Settlement:              settlement.DefaultConfig(),
		Notify:                  NotifyConfig{WatchInterval: 2 * time.Second},
		RateLimit:               RateLimitConfig{RPS: 10, Burst: 20},
	}
}

// LoadConfig layers the YAML file at path (optional) and CLEARDEAL_*
// environment variables over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

// Validate checks required fields and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == defaultJWTSecret && !c.IsDevelopment() {
		return fmt.Errorf("jwt_secret must be changed from the default outside development (env %q)", c.Env)
	}

	def := Default()
	if c.APITimeout <= 0 {
		c.APITimeout = def.APITimeout
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = def.TokenDuration
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.SubmissionSchemaVersion == "" {
		c.SubmissionSchemaVersion = defaultSchemaVersion
	}
	if c.Notify.WatchInterval <= 0 {
		c.Notify.WatchInterval = def.Notify.WatchInterval
	}

	switch c.Settlement.Mode {
	case "":
		c.Settlement.Mode = settlement.ModeLedger
	case settlement.ModeLedger:
	case settlement.ModeHTTP:
		if c.Settlement.BaseURL == "" {
			return errors.New("settlement.base_url is required in http mode")
		}
	default:
		return fmt.Errorf("unknown settlement mode %q", c.Settlement.Mode)
	}
	if c.Settlement.Mode == settlement.ModeLedger && !c.IsDevelopment() {
		return errors.New("the in-process settlement ledger is only allowed in development")
	}
	if c.Settlement.Timeout <= 0 {
		c.Settlement.Timeout = def.Settlement.Timeout
	}

	return nil
}
