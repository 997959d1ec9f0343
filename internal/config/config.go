package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Monitor   MonitorConfig     `mapstructure:"monitor"`
	Limits    LimitsConfig      `mapstructure:"limits"`
	Tracking  TrackingConfig    `mapstructure:"tracking"`
	Notify    NotifyConfig      `mapstructure:"notify"`
	Labels    map[string]string `mapstructure:"labels"`
	Storage   StorageConfig     `mapstructure:"storage"`
	Retention RetentionConfig   `mapstructure:"retention"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// MonitorConfig defines how the foreground app is sampled
type MonitorConfig struct {
	Probe         string `mapstructure:"probe"` // "command" or "file"
	Interval      string `mapstructure:"interval"`
	Buffer        int    `mapstructure:"buffer"`
	Command       string `mapstructure:"command"`        // prints the foreground package
	ScreenCommand string `mapstructure:"screen_command"` // exit 0 while the screen is on
	FilePath      string `mapstructure:"file_path"`
}

// LimitsConfig defines where limited apps come from
type LimitsConfig struct {
	Source         string `mapstructure:"source"` // "store" or "opa"
	PolicyDir      string `mapstructure:"policy_dir"`
	ReloadInterval string `mapstructure:"reload_interval"` // empty disables periodic reload
}

// TrackingConfig defines session bookkeeping
type TrackingConfig struct {
	MinSessionDuration string `mapstructure:"min_session_duration"`
	PersistTimeout     string `mapstructure:"persist_timeout"` // empty or 0 waits indefinitely
}

// NotifyConfig defines how interventions reach the user
type NotifyConfig struct {
	Log               bool   `mapstructure:"log"`
	WarningCommand    string `mapstructure:"warning_command"`
	ForegroundCommand string `mapstructure:"foreground_command"`
	DissuasionCommand string `mapstructure:"dissuasion_command"`
	CommandTimeout    string `mapstructure:"command_timeout"`
	LabelCacheSize    int    `mapstructure:"label_cache_size"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "sqlite" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// RetentionConfig defines how long usage history is kept
type RetentionConfig struct {
	Days      int    `mapstructure:"days"`
	DailyTime string `mapstructure:"daily_time"` // HH:MM
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KeyDelimiter separates nested config keys. Label keys are package names
// such as com.example.video, so the default "." cannot be used.
const KeyDelimiter = "::"

// NewViper returns a viper instance using KeyDelimiter
func NewViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter(KeyDelimiter))
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := NewViper()

	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("SCREENGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(KeyDelimiter, "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls back to defaults and environment
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Monitor defaults
	v.SetDefault("monitor::probe", "file")
	v.SetDefault("monitor::interval", "1s")
	v.SetDefault("monitor::buffer", 64)
	v.SetDefault("monitor::command", "")
	v.SetDefault("monitor::screen_command", "")
	v.SetDefault("monitor::file_path", "/run/screenguard/foreground")

	// Limits defaults
	v.SetDefault("limits::source", "store")
	v.SetDefault("limits::policy_dir", "/etc/screenguard/policies")
	v.SetDefault("limits::reload_interval", "")

	// Tracking defaults
	v.SetDefault("tracking::min_session_duration", "0s")
	v.SetDefault("tracking::persist_timeout", "0s")

	// Notify defaults
	v.SetDefault("notify::log", true)
	v.SetDefault("notify::warning_command", "")
	v.SetDefault("notify::foreground_command", "")
	v.SetDefault("notify::dissuasion_command", "")
	v.SetDefault("notify::command_timeout", "10s")
	v.SetDefault("notify::label_cache_size", 256)

	// Storage defaults
	v.SetDefault("storage::type", "bolt")
	v.SetDefault("storage::path", "/var/lib/screenguard/screenguard.bolt")
	v.SetDefault("storage::redis::host", "localhost")
	v.SetDefault("storage::redis::port", 6379)
	v.SetDefault("storage::redis::db", 0)
	v.SetDefault("storage::redis::pool_size", 10)
	v.SetDefault("storage::redis::min_idle_conns", 2)
	v.SetDefault("storage::redis::dial_timeout", "5s")
	v.SetDefault("storage::redis::read_timeout", "3s")
	v.SetDefault("storage::redis::write_timeout", "3s")

	// Retention defaults
	v.SetDefault("retention::days", 90)
	v.SetDefault("retention::daily_time", "03:00")

	// Metrics defaults
	v.SetDefault("metrics::enabled", true)
	v.SetDefault("metrics::bind_address", "127.0.0.1")
	v.SetDefault("metrics::port", 9464)

	// Logging defaults
	v.SetDefault("logging::level", "info")
	v.SetDefault("logging::format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Monitor.Probe {
	case "command":
		if cfg.Monitor.Command == "" {
			return fmt.Errorf("monitor.command is required for the command probe")
		}
	case "file":
		if cfg.Monitor.FilePath == "" {
			return fmt.Errorf("monitor.file_path is required for the file probe")
		}
	default:
		return fmt.Errorf("unsupported monitor probe: %s", cfg.Monitor.Probe)
	}

	if d, err := time.ParseDuration(cfg.Monitor.Interval); err != nil || d <= 0 {
		return fmt.Errorf("invalid monitor interval: %q", cfg.Monitor.Interval)
	}
	if cfg.Monitor.Buffer < 0 {
		return fmt.Errorf("invalid monitor buffer: %d", cfg.Monitor.Buffer)
	}

	switch cfg.Limits.Source {
	case "store":
	case "opa":
		if cfg.Limits.PolicyDir == "" {
			return fmt.Errorf("limits.policy_dir is required for the opa source")
		}
	default:
		return fmt.Errorf("unsupported limits source: %s", cfg.Limits.Source)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Retention.Days < 0 {
		return fmt.Errorf("invalid retention days: %d", cfg.Retention.Days)
	}
	if _, err := time.Parse("15:04", cfg.Retention.DailyTime); err != nil {
		return fmt.Errorf("invalid retention daily_time %q: must be HH:MM", cfg.Retention.DailyTime)
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
