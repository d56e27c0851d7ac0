// Package config loads and validates sync service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Sync    SyncConfig    `mapstructure:"sync"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig controls access to the remote open-data catalog API.
type CatalogConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SyncConfig governs ingestion pipeline behavior.
type SyncConfig struct {
	PageSize  int `mapstructure:"page_size"`
	BatchSize int `mapstructure:"batch_size"`
	MaxRows   int `mapstructure:"max_rows"`
}

// DBConfig controls access to the relational record store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig selects where raw resource downloads are archived.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for sync completion notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// OpsConfig controls the operational HTTP endpoint (health, metrics).
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DATASYNC")
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
	v.SetDefault("catalog.base_url", "https://www.data.gouv.fr/api/1/")
	v.SetDefault("catalog.user_agent", "datasync/1.0")
	v.SetDefault("catalog.timeout_seconds", 30)
	v.SetDefault("sync.page_size", 20)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.max_rows", 1000)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "resources")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be set")
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		return fmt.Errorf("catalog.timeout_seconds must be > 0")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be > 0")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be > 0")
	}
	if c.Sync.MaxRows <= 0 {
		return fmt.Errorf("sync.max_rows must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicName == "") {
		return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify.provider is pubsub")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// CatalogTimeout converts the configured catalog timeout into a duration.
func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}
