// Package config provides configuration management for the signal daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"orderflow-signals/internal/notify"
)

// Config holds all application configuration.
type Config struct {
	Instruments []InstrumentConfig `mapstructure:"instruments"`
	Session     SessionConfig      `mapstructure:"session"`
	Engine      EngineConfig       `mapstructure:"engine"`
	Broadcast   BroadcastConfig    `mapstructure:"broadcast"`
	Supervisor  SupervisorConfig   `mapstructure:"supervisor"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Store       StoreConfig        `mapstructure:"store"`
	Notify      notify.Config      `mapstructure:"notify"`
	Kite        KiteConfig         `mapstructure:"-"` // Env only, never on disk
}

// InstrumentConfig identifies one watched instrument.
type InstrumentConfig struct {
	Symbol string `mapstructure:"symbol"`
	Token  uint32 `mapstructure:"token"`
	Name   string `mapstructure:"name"`
}

// SessionConfig holds the trading-calendar cut points, in minutes from
// midnight exchange time.
type SessionConfig struct {
	PreOpenStartMinute int    `mapstructure:"pre_open_start_minute"`
	OpenMinute         int    `mapstructure:"open_minute"`
	CloseMinute        int    `mapstructure:"close_minute"`
	Timezone           string `mapstructure:"timezone"`
	Weekdays           []int  `mapstructure:"weekdays"` // 1=Monday .. 5=Friday
}

// EngineConfig holds the tunable signal-engine coefficients.
type EngineConfig struct {
	TrendScale    float64 `mapstructure:"trend_scale"`
	ModerateScale float64 `mapstructure:"moderate_scale"`
	ModerateCap   float64 `mapstructure:"moderate_cap"`
}

// BroadcastConfig holds the evaluation cadence.
type BroadcastConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
}

// SupervisorConfig holds the health-supervisor policy.
type SupervisorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	GraceIntervals int           `mapstructure:"grace_intervals"`
	MaxRestarts    int           `mapstructure:"max_restarts"`
	HealthAddr     string        `mapstructure:"health_addr"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreConfig holds the operational database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// KiteConfig holds Kite Connect credentials. Loaded from environment
// variables only.
type KiteConfig struct {
	APIKey      string
	AccessToken string
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/orderflow-signals"
	}
	return filepath.Join(home, ".config", "orderflow-signals")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.pre_open_start_minute", 9*60)
	v.SetDefault("session.open_minute", 9*60+15)
	v.SetDefault("session.close_minute", 15*60+30)
	v.SetDefault("session.timezone", "Asia/Kolkata")
	v.SetDefault("session.weekdays", []int{1, 2, 3, 4, 5})

	v.SetDefault("engine.trend_scale", 1.0)
	v.SetDefault("engine.moderate_scale", 8.0)
	v.SetDefault("engine.moderate_cap", 60.0)

	v.SetDefault("broadcast.interval", "5s")
	v.SetDefault("broadcast.fetch_timeout", "3s")
	v.SetDefault("broadcast.subscriber_buffer", 16)

	v.SetDefault("supervisor.interval", "10m")
	v.SetDefault("supervisor.grace_intervals", 2)
	v.SetDefault("supervisor.max_restarts", 3)
	v.SetDefault("supervisor.health_addr", "127.0.0.1:8642")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Kite.AccessToken = v
	}
	if v := os.Getenv("SIGNALD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SIGNALD_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument must be configured")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, ins := range c.Instruments {
		if ins.Symbol == "" {
			return fmt.Errorf("instrument with empty symbol")
		}
		if seen[ins.Symbol] {
			return fmt.Errorf("duplicate instrument symbol: %s", ins.Symbol)
		}
		seen[ins.Symbol] = true
	}

	s := c.Session
	if s.PreOpenStartMinute < 0 || s.PreOpenStartMinute >= 24*60 {
		return fmt.Errorf("pre_open_start_minute out of range: %d", s.PreOpenStartMinute)
	}
	if !(s.PreOpenStartMinute < s.OpenMinute && s.OpenMinute < s.CloseMinute) {
		return fmt.Errorf("session minutes must satisfy pre_open < open < close, got %d/%d/%d",
			s.PreOpenStartMinute, s.OpenMinute, s.CloseMinute)
	}
	if s.CloseMinute >= 24*60 {
		return fmt.Errorf("close_minute out of range: %d", s.CloseMinute)
	}
	if len(s.Weekdays) == 0 {
		return fmt.Errorf("at least one trading weekday must be configured")
	}
	for _, wd := range s.Weekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("invalid weekday: %d", wd)
		}
	}

	if c.Engine.TrendScale <= 0 {
		return fmt.Errorf("trend_scale must be positive")
	}
	if c.Engine.ModerateScale <= 0 {
		return fmt.Errorf("moderate_scale must be positive")
	}
	if c.Engine.ModerateCap <= 0 || c.Engine.ModerateCap > 100 {
		return fmt.Errorf("moderate_cap must be in (0, 100]")
	}

	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast interval must be positive")
	}
	if c.Broadcast.FetchTimeout <= 0 || c.Broadcast.FetchTimeout >= c.Broadcast.Interval {
		return fmt.Errorf("fetch_timeout must be positive and shorter than the interval")
	}
	if c.Broadcast.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber_buffer must be positive")
	}

	if c.Supervisor.Interval <= 0 {
		return fmt.Errorf("supervisor interval must be positive")
	}
	if c.Supervisor.GraceIntervals < 1 {
		return fmt.Errorf("grace_intervals must be at least 1")
	}
	if c.Supervisor.MaxRestarts < 1 {
		return fmt.Errorf("max_restarts must be at least 1")
	}

	return nil
}

// HasKiteCredentials reports whether live market-data credentials are set.
func (c *Config) HasKiteCredentials() bool {
	return c.Kite.APIKey != "" && c.Kite.AccessToken != ""
}
