package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the sync-layer configuration loaded at startup.
type Config struct {
	APIBaseURL   string `mapstructure:"api_base_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	Room         string `mapstructure:"room"`

	ReconnectAttempts   int `mapstructure:"reconnect_attempts"`
	ReconnectDelayMs    int `mapstructure:"reconnect_delay_ms"`
	ReconnectDelayMaxMs int `mapstructure:"reconnect_delay_max_ms"`

	// Staleness and eviction windows per namespace family. Live lists get
	// the short windows; detail dialogs the long ones.
	ListStaleMs   int `mapstructure:"list_stale_ms"`
	ListGCMs      int `mapstructure:"list_gc_ms"`
	DetailStaleMs int `mapstructure:"detail_stale_ms"`
	DetailGCMs    int `mapstructure:"detail_gc_ms"`
	StatsStaleMs  int `mapstructure:"stats_stale_ms"`
	StatsGCMs     int `mapstructure:"stats_gc_ms"`

	GCIntervalMs int `mapstructure:"gc_interval_ms"`

	MetricsAddr  string `mapstructure:"metrics_addr"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultRoom                = "admin"
	DefaultReconnectAttempts   = 5
	DefaultReconnectDelayMs    = 1000
	DefaultReconnectDelayMaxMs = 5000
	DefaultListStaleMs         = 5000
	DefaultListGCMs            = 300000
	DefaultDetailStaleMs       = 60000
	DefaultDetailGCMs          = 1800000
	DefaultStatsStaleMs        = 30000
	DefaultStatsGCMs           = 600000
	DefaultGCIntervalMs        = 60000
)

// LoadConfig reads the file at path, applies defaults, overlays environment
// variables and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"room":                   DefaultRoom,
		"reconnect_attempts":     DefaultReconnectAttempts,
		"reconnect_delay_ms":     DefaultReconnectDelayMs,
		"reconnect_delay_max_ms": DefaultReconnectDelayMaxMs,
		"list_stale_ms":          DefaultListStaleMs,
		"list_gc_ms":             DefaultListGCMs,
		"detail_stale_ms":        DefaultDetailStaleMs,
		"detail_gc_ms":           DefaultDetailGCMs,
		"stats_stale_ms":         DefaultStatsStaleMs,
		"stats_gc_ms":            DefaultStatsGCMs,
		"gc_interval_ms":         DefaultGCIntervalMs,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.APIBaseURL == "" {
		return errors.New("missing api_base_url in configuration")
	}
	if err := validateURL(cfg.APIBaseURL, "http"); err != nil {
		return errors.New("invalid API base URL protocol")
	}
	if cfg.WebSocketURL == "" {
		return errors.New("missing websocket_url in configuration")
	}
	if err := validateURL(cfg.WebSocketURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	if cfg.Room == "" {
		return errors.New("room must not be empty")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.ReconnectAttempts <= 0 {
		return errors.New("invalid reconnect_attempts")
	}
	if cfg.ReconnectDelayMs <= 0 || cfg.ReconnectDelayMaxMs < cfg.ReconnectDelayMs {
		return errors.New("invalid reconnect delay bounds")
	}
	for _, ms := range []int{
		cfg.ListStaleMs, cfg.ListGCMs,
		cfg.DetailStaleMs, cfg.DetailGCMs,
		cfg.StatsStaleMs, cfg.StatsGCMs,
		cfg.GCIntervalMs,
	} {
		if ms <= 0 {
			return errors.New("staleness, gc and sweep windows must be positive")
		}
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("ADMINSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if env := v.GetString("API_BASE_URL"); env != "" {
		cfg.APIBaseURL = env
	}
	if env := v.GetString("WEBSOCKET_URL"); env != "" {
		cfg.WebSocketURL = env
	}
	if env := v.GetString("METRICS_ADDR"); env != "" {
		cfg.MetricsAddr = env
	}
}

// ReconnectDelay returns the delay floor as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// ReconnectDelayMax returns the delay cap as a duration.
func (c *Config) ReconnectDelayMax() time.Duration {
	return time.Duration(c.ReconnectDelayMaxMs) * time.Millisecond
}

// GCInterval returns the sweep interval as a duration.
func (c *Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMs) * time.Millisecond
}
