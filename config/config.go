package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	JWT           JWTConfig           `yaml:"jwt"`
	HTTP          HTTPConfig          `yaml:"http"`
	Engine        EngineConfig        `yaml:"engine"`
	Clock         ClockConfig         `yaml:"clock"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL      string `yaml:"url"`
	NKeySeed string `yaml:"nkey_seed"`
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// HTTPConfig holds the public API listener.
type HTTPConfig struct {
	Address        string   `yaml:"address"`
	GatewayAddress string   `yaml:"gateway_address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// NudgeRate is the sustained per-client rate on the tick and action endpoints.
	NudgeRate  float64 `yaml:"nudge_rate"`
	NudgeBurst int     `yaml:"nudge_burst"`
}

// EngineConfig holds the lifecycle driver knobs.
type EngineConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	EndingWarning      time.Duration `yaml:"ending_warning"`
	MinResetExtension  time.Duration `yaml:"min_reset_extension"`
	CommissionRate     string        `yaml:"settlement_commission_rate"`
	SuccessorScanLimit int           `yaml:"successor_scan_limit"`
	TickBatchSize      int           `yaml:"tick_batch_size"`
	// TransitionJobs arms a River job at every round's next timer.
	TransitionJobs bool `yaml:"transition_jobs"`
	JobWorkers     int  `yaml:"job_workers"`
	AllowOverdraft bool `yaml:"allow_overdraft"`
}

// ClockConfig holds the client clock reconciliation cadence.
type ClockConfig struct {
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// LoadConfig loads the configuration from a YAML file, then applies
// environment overrides. A .env file is read first when present. Without a
// config file the environment alone must supply the connection settings.
func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// environment only
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_NKEY_SEED"); v != "" {
		cfg.NATS.NKeySeed = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("GATEWAY_ADDRESS"); v != "" {
		cfg.HTTP.GatewayAddress = v
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Observability.MetricsAddress = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Observability.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		cfg.Observability.TracingEnabled = v == "true"
	}
	if v := os.Getenv("ENGINE_TRANSITION_JOBS"); v != "" {
		cfg.Engine.TransitionJobs = v == "true"
	}
	if v := os.Getenv("SETTLEMENT_COMMISSION_RATE"); v != "" {
		cfg.Engine.CommissionRate = v
	}

	durations := map[string]*time.Duration{
		"JWT_DEFAULT_TTL":       &cfg.JWT.DefaultTTL,
		"ENGINE_TICK_INTERVAL":  &cfg.Engine.TickInterval,
		"ENGINE_ENDING_WARNING": &cfg.Engine.EndingWarning,
		"CLOCK_RESYNC_INTERVAL": &cfg.Clock.ResyncInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("ENGINE_SUCCESSOR_SCAN_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_SUCCESSOR_SCAN_LIMIT value: %w", err)
		}
		cfg.Engine.SuccessorScanLimit = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.JWT.DefaultTTL == 0 {
		c.JWT.DefaultTTL = 24 * time.Hour
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.GatewayAddress == "" {
		c.HTTP.GatewayAddress = ":8081"
	}
	if c.HTTP.NudgeRate == 0 {
		c.HTTP.NudgeRate = 1
	}
	if c.HTTP.NudgeBurst == 0 {
		c.HTTP.NudgeBurst = 5
	}
	if c.Engine.TickInterval == 0 {
		c.Engine.TickInterval = 5 * time.Second
	}
	if c.Engine.EndingWarning == 0 {
		c.Engine.EndingWarning = 5 * time.Minute
	}
	if c.Engine.MinResetExtension == 0 {
		c.Engine.MinResetExtension = time.Minute
	}
	if c.Engine.CommissionRate == "" {
		c.Engine.CommissionRate = "0.10"
	}
	if c.Engine.SuccessorScanLimit == 0 {
		c.Engine.SuccessorScanLimit = 50
	}
	if c.Engine.TickBatchSize == 0 {
		c.Engine.TickBatchSize = 500
	}
	if c.Clock.ResyncInterval == 0 {
		c.Clock.ResyncInterval = 60 * time.Second
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = "production"
	}
}

// Validate reports missing connection settings and out-of-range engine knobs.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required (DATABASE_URL)")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required (NATS_URL)")
	}
	if _, err := c.Engine.Commission(); err != nil {
		return err
	}
	if c.Engine.TickInterval < 0 || c.Engine.EndingWarning < 0 {
		return fmt.Errorf("engine intervals must not be negative")
	}
	return nil
}

// Commission parses the default commission rate applied to new templates.
func (e EngineConfig) Commission() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(e.CommissionRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid settlement_commission_rate %q: %w", e.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("settlement_commission_rate must be in [0,1), got %s", rate)
	}
	return rate, nil
}
