// Package config provides configuration loading, validation and hot
// reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docpilot/metergate/domain/plan"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Docs      DocsConfig      `yaml:"docs"`
	Usage     UsageConfig     `yaml:"usage"`
	Billing   BillingConfig   `yaml:"billing"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Plans     []PlanConfig    `yaml:"plans"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures API key and dashboard authentication.
type AuthConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`     // secret prefix, default "dk_"
	KeyHeader     string `yaml:"key_header"`     // default "X-API-Key"
	SubjectHeader string `yaml:"subject_header"` // identity proxy header, default "X-Subject-ID"
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

// DocsConfig configures the protected documentation upstream.
type DocsConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// UsageConfig configures the usage ledger pipeline.
type UsageConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	MaxBuffered   int           `yaml:"max_buffered"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RetentionDays int           `yaml:"retention_days"` // 0 = keep forever
}

// BillingConfig configures the billing processor integration.
type BillingConfig struct {
	Mode                 string `yaml:"mode"` // "none" or "stripe"
	StripeKey            string `yaml:"stripe_key,omitempty"`
	StripeWebhookSecret  string `yaml:"stripe_webhook_secret,omitempty"`
	GenericWebhookSecret string `yaml:"generic_webhook_secret,omitempty"`
	DefaultPlan          string `yaml:"default_plan"`
	PortalReturnURL      string `yaml:"portal_return_url"`
}

// AnalyticsConfig configures the analytics read path.
type AnalyticsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// PlanConfig configures a pricing plan.
type PlanConfig struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	RequestsPerMonth int64  `yaml:"requests_per_month"` // -1 = unlimited
	MaxKeys          int    `yaml:"max_keys"`
	PriceMonthly     int64  `yaml:"price_monthly"` // cents
	StripePriceID    string `yaml:"stripe_price_id,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded, then METERGATE_* variables override.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment
// variables, for container deployments without a config file.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback tries the file first, then the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if os.Getenv("METERGATE_DOCS_URL") != "" {
		return LoadFromEnv()
	}
	return nil, fmt.Errorf("no configuration found: provide a config file or set METERGATE_DOCS_URL")
}

// PlanTable converts the configured plans to domain plans, falling
// back to the built-in defaults when none are configured.
func (c *Config) PlanTable() []plan.Plan {
	if len(c.Plans) == 0 {
		return plan.Defaults()
	}
	plans := make([]plan.Plan, len(c.Plans))
	for i, p := range c.Plans {
		plans[i] = plan.Plan{
			ID:               p.ID,
			Name:             p.Name,
			RequestsPerMonth: p.RequestsPerMonth,
			MaxKeys:          p.MaxKeys,
			PriceMonthly:     p.PriceMonthly,
			StripePriceID:    p.StripePriceID,
		}
	}
	return plans
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METERGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("METERGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("METERGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("METERGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("METERGATE_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}
	if v := os.Getenv("METERGATE_AUTH_SUBJECT_HEADER"); v != "" {
		cfg.Auth.SubjectHeader = v
	}
	if v := os.Getenv("METERGATE_DOCS_URL"); v != "" {
		cfg.Docs.URL = v
	}
	if v := os.Getenv("METERGATE_DOCS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Docs.Timeout = d
		}
	}
	if v := os.Getenv("METERGATE_BILLING_MODE"); v != "" {
		cfg.Billing.Mode = v
	}
	if v := os.Getenv("METERGATE_STRIPE_KEY"); v != "" {
		cfg.Billing.StripeKey = v
	}
	if v := os.Getenv("METERGATE_STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.StripeWebhookSecret = v
	}
	if v := os.Getenv("METERGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METERGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("METERGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "metergate.db"
	}
	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "dk_"
	}
	if cfg.Auth.KeyHeader == "" {
		cfg.Auth.KeyHeader = "X-API-Key"
	}
	if cfg.Auth.SubjectHeader == "" {
		cfg.Auth.SubjectHeader = "X-Subject-ID"
	}
	if cfg.Docs.Timeout == 0 {
		cfg.Docs.Timeout = 30 * time.Second
	}
	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 5 * time.Second
	}
	if cfg.Billing.Mode == "" {
		cfg.Billing.Mode = "none"
	}
	if cfg.Billing.DefaultPlan == "" {
		cfg.Billing.DefaultPlan = "free"
	}
	if cfg.Analytics.CacheTTL == 0 {
		cfg.Analytics.CacheTTL = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for inconsistencies.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "memory" {
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Billing.Mode != "none" && cfg.Billing.Mode != "stripe" {
		return fmt.Errorf("unknown billing mode %q", cfg.Billing.Mode)
	}
	if cfg.Billing.Mode == "stripe" && cfg.Billing.StripeKey == "" {
		return fmt.Errorf("billing mode stripe requires stripe_key")
	}

	seen := make(map[string]bool)
	defaultFound := len(cfg.Plans) == 0 && cfg.Billing.DefaultPlan == "free"
	for _, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plan with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
		if p.RequestsPerMonth < -1 {
			return fmt.Errorf("plan %s: requests_per_month must be >= -1", p.ID)
		}
		if p.MaxKeys < 1 {
			return fmt.Errorf("plan %s: max_keys must be >= 1", p.ID)
		}
		if p.ID == cfg.Billing.DefaultPlan {
			defaultFound = true
		}
	}
	if !defaultFound {
		return fmt.Errorf("default plan %q not in plan table", cfg.Billing.DefaultPlan)
	}
	return nil
}
