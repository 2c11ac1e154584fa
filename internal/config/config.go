package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputConfig configures how input tables are read.
type InputConfig struct {
	// Charset names the CSV encoding ("utf-8", "latin1", "windows-1252").
	Charset string `yaml:"charset" mapstructure:"charset"`
	// SynonymsFile optionally extends the header synonym table.
	SynonymsFile string `yaml:"synonyms_file" mapstructure:"synonyms_file"`
	// Sheet selects an xlsx sheet by name; empty means the first sheet.
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

// ResolverConfig holds remote lookup service settings.
type ResolverConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	BreakerFailures int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSec int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the per-attempt timeout.
func (r ResolverConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// ReconcileConfig configures the scheduler and retrying worker.
type ReconcileConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs   int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
}

// Backoff returns the fixed delay between attempts.
func (r ReconcileConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Disabled    bool   `yaml:"disabled" mapstructure:"disabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.charset", "utf-8")
	v.SetDefault("resolver.base_url", "https://docpub.state.or.us/OOS/api")
	v.SetDefault("resolver.user_agent", "case-reconcile/1.0")
	v.SetDefault("resolver.timeout_secs", 30)
	v.SetDefault("resolver.rate_limit_rps", 2.0)
	v.SetDefault("resolver.rate_limit_burst", 3)
	v.SetDefault("resolver.breaker_failures", 10)
	v.SetDefault("resolver.breaker_reset_secs", 30)
	v.SetDefault("reconcile.workers", 3)
	v.SetDefault("reconcile.max_attempts", 3)
	v.SetDefault("reconcile.backoff_ms", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconcile.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	var problems []string
	if c.Reconcile.Workers <= 0 {
		problems = append(problems, "reconcile.workers must be positive")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		problems = append(problems, "reconcile.max_attempts must be positive")
	}
	if c.Reconcile.BackoffMs < 0 {
		problems = append(problems, "reconcile.backoff_ms must not be negative")
	}
	if c.Resolver.TimeoutSecs <= 0 {
		problems = append(problems, "resolver.timeout_secs must be positive")
	}
	if !c.Store.Disabled {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
