package config

import (
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for Location

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	USSD       USSDConfig       `yaml:"ussd" mapstructure:"ussd"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Alerts     AlertsConfig     `yaml:"alerts" mapstructure:"alerts"`
	SMS        SMSConfig        `yaml:"sms" mapstructure:"sms"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server and USSD webhook.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	USSDRatePerSec float64  `yaml:"ussd_rate_per_sec" mapstructure:"ussd_rate_per_sec"`
	USSDBurst      int      `yaml:"ussd_burst" mapstructure:"ussd_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// USSDConfig configures the USSD menus.
type USSDConfig struct {
	CountryCode          string `yaml:"country_code" mapstructure:"country_code"`
	ServiceCode          string `yaml:"service_code" mapstructure:"service_code"`
	LanguageCacheSize    int    `yaml:"language_cache_size" mapstructure:"language_cache_size"`
	LanguageCacheTTLMins int    `yaml:"language_cache_ttl_mins" mapstructure:"language_cache_ttl_mins"`
	CatalogTTLSecs       int    `yaml:"catalog_ttl_secs" mapstructure:"catalog_ttl_secs"`
	SMSTimeoutSecs       int    `yaml:"sms_timeout_secs" mapstructure:"sms_timeout_secs"`
}

// ConfidenceConfig configures scoring windows and the shared tier table.
type ConfidenceConfig struct {
	WindowHours           int     `yaml:"window_hours" mapstructure:"window_hours"`
	ReliabilityWindowDays int     `yaml:"reliability_window_days" mapstructure:"reliability_window_days"`
	HighThreshold         float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold       float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
}

// AlertsConfig configures alert evaluation and the daily summary.
type AlertsConfig struct {
	CheckSchedule   string `yaml:"check_schedule" mapstructure:"check_schedule"`
	SummarySchedule string `yaml:"summary_schedule" mapstructure:"summary_schedule"`
	CooldownMins    int    `yaml:"cooldown_mins" mapstructure:"cooldown_mins"`
	SummaryMaxLines int    `yaml:"summary_max_lines" mapstructure:"summary_max_lines"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// SMSConfig holds Africa's Talking settings. An empty APIKey switches the
// service to simulated delivery.
type SMSConfig struct {
	APIKey                  string  `yaml:"api_key" mapstructure:"api_key"`
	Username                string  `yaml:"username" mapstructure:"username"`
	SenderID                string  `yaml:"sender_id" mapstructure:"sender_id"`
	// BaseURL overrides the host chosen from Username. Leave empty in
	// production.
	BaseURL                 string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec              float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// Location resolves Timezone. An empty zone means UTC.
func (c AlertsConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// looks for an optional config.yaml in the working directory; a named file
// must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("SOKOPRICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.ussd_rate_per_sec", 20.0)
	v.SetDefault("server.ussd_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ussd.country_code", "254")
	v.SetDefault("ussd.service_code", "*789#")
	v.SetDefault("ussd.language_cache_size", 10000)
	v.SetDefault("ussd.language_cache_ttl_mins", 24*60)
	v.SetDefault("ussd.catalog_ttl_secs", 300)
	v.SetDefault("ussd.sms_timeout_secs", 30)
	v.SetDefault("confidence.window_hours", 48)
	v.SetDefault("confidence.reliability_window_days", 30)
	v.SetDefault("confidence.high_threshold", 0.7)
	v.SetDefault("confidence.medium_threshold", 0.4)
	v.SetDefault("alerts.check_schedule", "0 */15 * * * *")
	v.SetDefault("alerts.summary_schedule", "0 0 7 * * *")
	v.SetDefault("alerts.cooldown_mins", 60)
	v.SetDefault("alerts.summary_max_lines", 5)
	v.SetDefault("alerts.timezone", "Africa/Nairobi")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.username", "sandbox")
	v.SetDefault("sms.sender_id", "SokoPrice")
	v.SetDefault("sms.base_url", "") // empty: host follows sms.username
	v.SetDefault("sms.rate_per_sec", 10.0)
	v.SetDefault("sms.max_attempts", 3)
	v.SetDefault("sms.initial_backoff_ms", 500)
	v.SetDefault("sms.circuit_failure_threshold", 5)
	v.SetDefault("sms.circuit_reset_secs", 60)

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Confidence.MediumThreshold <= 0 || c.Confidence.HighThreshold <= c.Confidence.MediumThreshold || c.Confidence.HighThreshold > 1 {
		return eris.Errorf("config: confidence thresholds must satisfy 0 < medium (%.2f) < high (%.2f) <= 1",
			c.Confidence.MediumThreshold, c.Confidence.HighThreshold)
	}
	if c.Confidence.WindowHours <= 0 {
		return eris.New("config: confidence.window_hours must be positive")
	}
	if c.USSD.CountryCode == "" {
		return eris.New("config: ussd.country_code is required")
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
