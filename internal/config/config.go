package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"harborplan/internal/eval"
	"harborplan/internal/planner"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabaseMemory   DatabaseBackend = "memory"
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration. Values come from defaults, then
// the optional file named by HARBOR_CONFIG, then environment variables.
type Config struct {
	Environment string          `yaml:"environment" toml:"environment"`
	HTTPBind    string          `yaml:"http_bind" toml:"http_bind"`
	HTTPPort    int             `yaml:"http_port" toml:"http_port"`
	DBBackend   DatabaseBackend `yaml:"db_backend" toml:"db_backend"`
	DBDSN       string          `yaml:"database_url" toml:"database_url"`
	DBMigrate   bool            `yaml:"db_migrate" toml:"db_migrate"`
	RedisURL    string          `yaml:"redis_url" toml:"redis_url"`

	// Engine
	Weights         eval.Weights  `yaml:"weights" toml:"weights"`
	Strategies      []string      `yaml:"strategies" toml:"strategies"`
	StrategyTimeout time.Duration `yaml:"strategy_timeout" toml:"strategy_timeout"`
	MaxParallel     int           `yaml:"max_parallel" toml:"max_parallel"`
	RandomSeed      int64         `yaml:"random_seed" toml:"random_seed"`
	TopN            int           `yaml:"top_n" toml:"top_n"`

	// HTTP surface
	RateRPS   float64 `yaml:"rate_rps" toml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`
	APIToken  string  `yaml:"api_token" toml:"api_token"`

	WebhookMaxAttempts int `yaml:"webhook_max_attempts" toml:"webhook_max_attempts"`

	// Narrative analysis hook; empty URL selects the built-in fallback.
	AnalyzerURL     string        `yaml:"analyzer_url" toml:"analyzer_url"`
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout" toml:"analyzer_timeout"`

	// File is the config file that was read, if any.
	File string `yaml:"-" toml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Environment:        "development",
		HTTPBind:           "0.0.0.0",
		HTTPPort:           8080,
		DBBackend:          DatabaseMemory,
		DBMigrate:          true,
		Weights:            eval.DefaultWeights(),
		StrategyTimeout:    planner.DefaultStrategyTimeout,
		TopN:               eval.DefaultTopN,
		RateRPS:            5,
		RateBurst:          10,
		WebhookMaxAttempts: 8,
		AnalyzerTimeout:    10 * time.Second,
	}
}

// Load reads the optional config file and environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := getEnvAny([]string{"HARBOR_CONFIG"}, ""); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnvAny([]string{"HARBOR_ENV"}, cfg.Environment)
	cfg.HTTPBind = getEnvAny([]string{"HARBOR_HTTP_BIND"}, cfg.HTTPBind)
	cfg.HTTPPort = getEnvIntAny([]string{"HARBOR_HTTP_PORT", "PORT"}, cfg.HTTPPort)
	cfg.DBBackend = DatabaseBackend(strings.ToLower(getEnvAny([]string{"DB_BACKEND"}, string(cfg.DBBackend))))
	cfg.DBDSN = getEnvAny([]string{"DATABASE_URL"}, cfg.DBDSN)
	cfg.DBMigrate = getEnvBoolAny([]string{"DB_MIGRATE"}, cfg.DBMigrate)
	cfg.RedisURL = getEnvAny([]string{"REDIS_URL"}, cfg.RedisURL)

	cfg.Weights.Placement = getEnvFloatAny([]string{"HARBOR_WEIGHT_PLACEMENT"}, cfg.Weights.Placement)
	cfg.Weights.WidthUtilization = getEnvFloatAny([]string{"HARBOR_WEIGHT_WIDTH"}, cfg.Weights.WidthUtilization)
	cfg.Weights.TempSlots = getEnvFloatAny([]string{"HARBOR_WEIGHT_TEMP"}, cfg.Weights.TempSlots)
	if v := getEnvAny([]string{"HARBOR_STRATEGIES"}, ""); v != "" {
		cfg.Strategies = splitList(v)
	}
	cfg.StrategyTimeout = getEnvDurationAny([]string{"HARBOR_STRATEGY_TIMEOUT"}, cfg.StrategyTimeout)
	cfg.MaxParallel = getEnvIntAny([]string{"HARBOR_MAX_PARALLEL"}, cfg.MaxParallel)
	cfg.RandomSeed = getEnvInt64Any([]string{"HARBOR_RANDOM_SEED"}, cfg.RandomSeed)
	cfg.TopN = getEnvIntAny([]string{"HARBOR_TOP_N"}, cfg.TopN)

	cfg.RateRPS = getEnvFloatAny([]string{"RATE_RPS"}, cfg.RateRPS)
	cfg.RateBurst = getEnvIntAny([]string{"RATE_BURST"}, cfg.RateBurst)
	cfg.APIToken = getEnvAny([]string{"HARBOR_API_TOKEN"}, cfg.APIToken)
	cfg.WebhookMaxAttempts = getEnvIntAny([]string{"WEBHOOK_MAX_ATTEMPTS"}, cfg.WebhookMaxAttempts)
	cfg.AnalyzerURL = getEnvAny([]string{"ANALYZER_URL"}, cfg.AnalyzerURL)
	cfg.AnalyzerTimeout = getEnvDurationAny([]string{"ANALYZER_TIMEOUT"}, cfg.AnalyzerTimeout)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DBDSN == "" {
			return fmt.Errorf("DATABASE_URL must be provided for the %s backend", c.DBBackend)
		}
	default:
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port %d", c.HTTPPort)
	}
	w, err := c.Weights.Normalize()
	if err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}
	c.Weights = w
	if c.StrategyTimeout <= 0 {
		return fmt.Errorf("HARBOR_STRATEGY_TIMEOUT must be positive, got %s", c.StrategyTimeout)
	}
	if c.MaxParallel < 0 || c.TopN < 0 {
		return fmt.Errorf("HARBOR_MAX_PARALLEL and HARBOR_TOP_N must not be negative")
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return fmt.Errorf("RATE_RPS and RATE_BURST must not be negative")
	}
	if c.WebhookMaxAttempts <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be positive")
	}
	if strings.EqualFold(c.Environment, "production") && c.APIToken == "" {
		return fmt.Errorf("HARBOR_API_TOKEN must be set in production")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTPBind, strconv.Itoa(c.HTTPPort))
}

// Planner returns the engine settings.
func (c *Config) Planner() planner.Config {
	return planner.Config{
		Weights:         c.Weights,
		StrategyTimeout: c.StrategyTimeout,
		MaxParallel:     c.MaxParallel,
		TopN:            c.TopN,
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvInt64Any(keys []string, def int64) int64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("45s") or bare seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
