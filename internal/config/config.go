// Package config loads application configuration from an optional yaml file
// and TRANCHE_-prefixed environment variables, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apply      ApplyConfig      `yaml:"apply" mapstructure:"apply"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-registry backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ApplyConfig holds the defaults of the filtering pass. Command-line flags
// override these per invocation.
type ApplyConfig struct {
	TSFilterLevel float64  `yaml:"ts_filter_level" mapstructure:"ts_filter_level"`
	Mode          string   `yaml:"mode" mapstructure:"mode"`
	IgnoreFilters []string `yaml:"ignore_filters" mapstructure:"ignore_filters"`
	MaxRecords    int64    `yaml:"max_records" mapstructure:"max_records"`
	Downsample    int      `yaml:"downsample" mapstructure:"downsample"`
	Parallelism   int      `yaml:"parallelism" mapstructure:"parallelism"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background health checker the status
// server runs over the run registry.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StalledAfterSecs     int     `yaml:"stalled_after_secs" mapstructure:"stalled_after_secs"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("TRANCHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "tranchefilter.db")
	v.SetDefault("apply.ts_filter_level", 99.0)
	v.SetDefault("apply.mode", "SNP")
	v.SetDefault("apply.max_records", 0)
	v.SetDefault("apply.downsample", 0)
	v.SetDefault("apply.parallelism", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stalled_after_secs", 3600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "apply":
		check(c.Apply.TSFilterLevel > 0 && c.Apply.TSFilterLevel <= 100,
			"apply.ts_filter_level must be in (0, 100]")
		check(c.Apply.Mode == "SNP" || c.Apply.Mode == "INDEL" || c.Apply.Mode == "BOTH",
			"apply.mode must be SNP, INDEL or BOTH")
		check(c.Apply.MaxRecords >= 0, "apply.max_records must be >= 0")
		check(c.Apply.Downsample >= 0, "apply.downsample must be >= 0")
		check(c.Apply.Parallelism >= 1 && c.Apply.Parallelism <= 64,
			"apply.parallelism must be between 1 and 64")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Monitoring.FailureRateThreshold >= 0 && c.Monitoring.FailureRateThreshold <= 1,
			"monitoring.failure_rate_threshold must be in [0, 1]")
	case "store":
		// Store-only commands just need a reachable backend.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		check(c.Store.Path != "", "store.path is required for the sqlite driver")
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
