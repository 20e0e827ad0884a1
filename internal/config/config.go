package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	PageSpeed  PageSpeedConfig  `yaml:"pagespeed" mapstructure:"pagespeed"`
	Quota      QuotaConfig      `yaml:"quota" mapstructure:"quota"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PageSpeedConfig holds PageSpeed Insights API settings and the shared budget.
type PageSpeedConfig struct {
	Key         string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	WindowLimit int    `yaml:"window_limit" mapstructure:"window_limit"`
	WindowSecs  int    `yaml:"window_secs" mapstructure:"window_secs"`
	Burst       int    `yaml:"burst" mapstructure:"burst"`
	DailyLimit  int    `yaml:"daily_limit" mapstructure:"daily_limit"`
}

// QuotaConfig selects where the daily request counter lives.
type QuotaConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// SheetsConfig holds spreadsheet credentials.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	TokenFile       string `yaml:"token_file" mapstructure:"token_file"`
	SheetName       string `yaml:"sheet_name" mapstructure:"sheet_name"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
}

// AuditConfig configures the bulk audit pass.
type AuditConfig struct {
	Workers            int  `yaml:"workers" mapstructure:"workers"`
	BatchRows          int  `yaml:"batch_rows" mapstructure:"batch_rows"`
	ProgressEvery      int  `yaml:"progress_every" mapstructure:"progress_every"`
	ParallelStrategies bool `yaml:"parallel_strategies" mapstructure:"parallel_strategies"`
}

// BrowserConfig configures the pagespeed.web.dev recovery pass.
type BrowserConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ExecPath       string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	SettleSecs     int    `yaml:"settle_secs" mapstructure:"settle_secs"`
	PauseSecs      int    `yaml:"pause_secs" mapstructure:"pause_secs"`
}

// CircuitConfig configures the PageSpeed circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RetryConfig configures retries of spreadsheet writes.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoff     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier     float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures metrics exposure and post-run alerts.
type MonitoringConfig struct {
	MetricsAddr        string  `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	QuotaWarnFraction  float64 `yaml:"quota_warn_fraction" mapstructure:"quota_warn_fraction"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
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
	v.SetEnvPrefix("VITALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Shared with other PageSpeed tooling.
	_ = v.BindEnv("pagespeed.api_key", "VITALS_PAGESPEED_API_KEY", "GOOGLE_PAGESPEED_API_TOKEN")

	// Defaults
	v.SetDefault("pagespeed.base_url", "https://pagespeedonline.googleapis.com/")
	v.SetDefault("pagespeed.timeout_secs", 90)
	v.SetDefault("pagespeed.window_limit", 400)
	v.SetDefault("pagespeed.window_secs", 100)
	v.SetDefault("pagespeed.burst", 4)
	v.SetDefault("pagespeed.daily_limit", 25000)
	v.SetDefault("quota.backend", "memory")
	v.SetDefault("quota.key_prefix", "vitals:quota")
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.batch_rows", 25)
	v.SetDefault("audit.progress_every", 25)
	v.SetDefault("audit.parallel_strategies", true)
	v.SetDefault("browser.base_url", "https://pagespeed.web.dev")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_secs", 120)
	v.SetDefault("browser.settle_secs", 65)
	v.SetDefault("browser.pause_secs", 5)
	v.SetDefault("circuit.failure_threshold", 10)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "vitals.db")
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.quota_warn_fraction", 0.9)
	v.SetDefault("monitoring.lookback_hours", 24)
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

// Validate checks the settings a command mode depends on. Modes are
// "audit", "recover" and "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "audit":
		if c.PageSpeed.Key == "" {
			errs = append(errs, "pagespeed.api_key is required (or GOOGLE_PAGESPEED_API_TOKEN)")
		}
		if c.PageSpeed.TimeoutSecs < 60 || c.PageSpeed.TimeoutSecs > 90 {
			errs = append(errs, "pagespeed.timeout_secs must be between 60 and 90")
		}
		if c.PageSpeed.WindowLimit <= 0 || c.PageSpeed.WindowSecs <= 0 {
			errs = append(errs, "pagespeed.window_limit and pagespeed.window_secs must be > 0")
		}
		if c.PageSpeed.Burst < 1 || c.PageSpeed.Burst >= c.PageSpeed.WindowLimit {
			errs = append(errs, "pagespeed.burst must be >= 1 and below window_limit")
		}
		if c.PageSpeed.DailyLimit <= 0 {
			errs = append(errs, "pagespeed.daily_limit must be > 0")
		}
		if c.Audit.Workers < 1 || c.Audit.Workers > 64 {
			errs = append(errs, "audit.workers must be between 1 and 64")
		}
		if c.Audit.BatchRows < 1 {
			errs = append(errs, "audit.batch_rows must be > 0")
		}
		switch c.Quota.Backend {
		case "memory":
		case "redis":
			if c.Quota.RedisURL == "" {
				errs = append(errs, "quota.redis_url is required for the redis backend")
			}
		default:
			errs = append(errs, fmt.Sprintf("quota.backend %q is not supported", c.Quota.Backend))
		}
		if c.Monitoring.ErrorRateThreshold < 0 || c.Monitoring.ErrorRateThreshold > 1 {
			errs = append(errs, "monitoring.error_rate_threshold must be between 0 and 1")
		}
	case "recover":
		if c.Browser.NavTimeoutSecs <= 0 {
			errs = append(errs, "browser.nav_timeout_secs must be > 0")
		}
		if c.Browser.SettleSecs < 0 || c.Browser.PauseSecs < 0 {
			errs = append(errs, "browser.settle_secs and browser.pause_secs must be >= 0")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver is none; no run history is recorded")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Sheets.CredentialsFile != "" && c.Sheets.TokenFile != "" {
		errs = append(errs, "sheets.credentials_file and sheets.token_file are mutually exclusive")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
