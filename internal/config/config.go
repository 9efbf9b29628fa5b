package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"horde-monitor/internal/logging"
)

// Config is the full hordewatch configuration tree.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Horde    HordeConfig    `mapstructure:"horde"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig names the deployment in logs.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HordeConfig covers access to the AI Horde API.
type HordeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ClientAgent    string        `mapstructure:"client_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MonitorConfig governs polling cadence and window retention.
type MonitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Period    string        `mapstructure:"period"`
	AutoStart bool          `mapstructure:"auto_start"`
}

// RetentionPoints resolves Period to a point count. Validate guarantees the
// label is known.
func (m MonitorConfig) RetentionPoints() int {
	n, _ := ParsePeriod(m.Period)
	return n
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig points at the PostgreSQL archive. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig routes halt notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for notifications.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets export behaviour.
type ExportConfig struct {
	Dir           string `mapstructure:"dir"`
	MaxDataPoints int    `mapstructure:"max_data_points"`
}

// EnvPrefix namespaces environment overrides, e.g. HORDEWATCH_HORDE_API_KEY.
const EnvPrefix = "HORDEWATCH"

// Every key needs a default, even an empty one, or AutomaticEnv will not
// consult the environment for it during Unmarshal.
var defaults = map[string]any{
	"app.name":        "hordewatch",
	"app.environment": "development",

	"logging.level":  "info",
	"logging.format": "json",
	"logging.output": "stderr",

	"horde.base_url":        "https://aihorde.net/api/v2",
	"horde.api_key":         "",
	"horde.client_agent":    "",
	"horde.request_timeout": "15s",

	"monitor.interval":   "1m",
	"monitor.period":     "1hr",
	"monitor.auto_start": true,

	"server.enabled": true,
	"server.addr":    "127.0.0.1:8080",

	"database.dsn":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "30m",

	"alerting.enabled":            false,
	"alerting.telegram.enabled":   false,
	"alerting.telegram.bot_token": "",
	"alerting.telegram.chat_id":   "",
	"alerting.telegram.api_base":  "https://api.telegram.org",

	"export.dir":             ".",
	"export.max_data_points": 1440,
}

// Load reads path (or config.yaml from the working directory or
// /etc/hordewatch when path is empty), applies environment overrides and
// validates the result. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := newViper(path)
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("read %s: %w", describe(path), err)
	}
	return decode(v)
}

func describe(path string) string {
	if path == "" {
		return "config.yaml"
	}
	return path
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hordewatch")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeHook lets interval labels such as "5m" or "1hr" and plain Go
// durations decode into time.Duration fields.
func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			intervalLabelHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if !ValidInterval(c.Monitor.Interval) {
		return fmt.Errorf("monitor.interval must be one of %s, got %s", strings.Join(IntervalLabels(), ", "), c.Monitor.Interval)
	}
	if _, err := ParsePeriod(c.Monitor.Period); err != nil {
		return fmt.Errorf("monitor.period: %w", err)
	}
	if c.Horde.BaseURL == "" {
		return fmt.Errorf("horde.base_url must be set")
	}
	if c.Horde.RequestTimeout < 0 {
		return fmt.Errorf("horde.request_timeout cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set when the server is enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveMaxPoints caps an export at n points, or at export.max_data_points
// when n is not positive.
func (c *Config) ResolveMaxPoints(n int) int {
	if n <= 0 {
		n = c.Export.MaxDataPoints
	}
	return n
}
