package config

import (
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s" or
// "4h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Bot       BotConfig       `yaml:"bot" validate:"required"`
	Database  DatabaseConfig  `yaml:"database" validate:"required"`
	Logging   LoggingConfig   `yaml:"logging"`
	Weather   WeatherConfig   `yaml:"weather"`
	Limits    LimitsConfig    `yaml:"limits"`
	Reporting ReportingConfig `yaml:"reporting"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type BotConfig struct {
	Token string `yaml:"token" validate:"required"`
	// LogChannelID receives error-level log events when set.
	LogChannelID string `yaml:"log_channel_id"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type LoggingConfig struct {
	Level   string           `yaml:"level"`
	Console bool             `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
	Channel ChannelLogConfig `yaml:"channel"`
}

type FileLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ChannelLogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MinLevel   string `yaml:"min_level"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

type WeatherConfig struct {
	BaseURL   string   `yaml:"base_url"`
	UserAgent string   `yaml:"user_agent"`
	Timeout   Duration `yaml:"timeout"`
}

type LimitsConfig struct {
	AlertsPerGuild    int `yaml:"alerts_per_guild" validate:"min=0"`
	ForecastsPerGuild int `yaml:"forecasts_per_guild" validate:"min=0"`
	RadarsPerGuild    int `yaml:"radars_per_guild" validate:"min=0"`
}

type ReportingConfig struct {
	ForecastCleanupAfter Duration `yaml:"forecast_cleanup_after"`
	RadarQueueDelay      Duration `yaml:"radar_queue_delay"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Defaults fills every unset field that has a sensible default. Destination
// limits default to unlimited (0).
func (c *Config) Defaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Channel.MinLevel == "" {
		c.Logging.Channel.MinLevel = "ERROR"
	}
	if c.Logging.Channel.RatePerSec == 0 {
		c.Logging.Channel.RatePerSec = 1
	}
	if c.Weather.Timeout == 0 {
		c.Weather.Timeout = Duration(10 * time.Second)
	}
	if c.Reporting.ForecastCleanupAfter == 0 {
		c.Reporting.ForecastCleanupAfter = Duration(4 * time.Hour)
	}
	if c.Reporting.RadarQueueDelay == 0 {
		c.Reporting.RadarQueueDelay = Duration(2 * time.Second)
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
}
