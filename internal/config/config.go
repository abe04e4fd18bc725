// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CaptureConfig governs the dispatcher and job pipeline.
type CaptureConfig struct {
	Workers         int `mapstructure:"workers"`
	QueueDepth      int `mapstructure:"queue_depth"`
	MaxPagesDefault int `mapstructure:"max_pages_default"`
}

// RendererConfig configures the headless rendering subsystem.
type RendererConfig struct {
	ChromePath      string `mapstructure:"chrome_path"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs   int    `mapstructure:"settle_delay_ms"`
	StaticDiscovery bool   `mapstructure:"static_discovery"`
}

// StorageConfig selects and parameterizes the blob backend.
type StorageConfig struct {
	// Backend is one of "gcs", "local" or "memory".
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the job database. An empty DSN selects the
// in-memory job store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RetentionConfig governs artifact lifetime and sweeping.
type RetentionConfig struct {
	TTLHours           int `mapstructure:"ttl_hours"`
	SweepIntervalHours int `mapstructure:"sweep_interval_hours"`
}

// TTL returns the retention window as a duration.
func (r RetentionConfig) TTL() time.Duration {
	return time.Duration(r.TTLHours) * time.Hour
}

// SweepInterval returns the sweep cadence as a duration.
func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalHours) * time.Hour
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGESNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("capture.workers", 2)
	v.SetDefault("capture.queue_depth", 64)
	v.SetDefault("capture.max_pages_default", 1)
	v.SetDefault("renderer.nav_timeout_seconds", 60)
	v.SetDefault("renderer.settle_delay_ms", 1500)
	v.SetDefault("renderer.static_discovery", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data/artifacts")
	v.SetDefault("retention.ttl_hours", 48)
	v.SetDefault("retention.sweep_interval_hours", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces cross-field constraints before the service starts.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth is enabled")
	}
	if c.Capture.Workers < 1 {
		return fmt.Errorf("capture.workers must be >= 1")
	}
	if c.Capture.QueueDepth < 1 {
		return fmt.Errorf("capture.queue_depth must be >= 1")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Retention.TTLHours < 1 {
		return fmt.Errorf("retention.ttl_hours must be >= 1")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name is required when a project is set")
	}
	return nil
}
