package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SyncConfig controls polling cadence and scheduler concurrency.
type SyncConfig struct {
	// EmailPollIntervalSecs is the delay before re-seeding an email job
	// for an account that already has sync history.
	EmailPollIntervalSecs int `mapstructure:"email_poll_interval_secs" yaml:"email_poll_interval_secs"`

	// CalendarPollIntervalSecs is the calendar re-seed delay.
	CalendarPollIntervalSecs int `mapstructure:"calendar_poll_interval_secs" yaml:"calendar_poll_interval_secs"`

	// TaskPollIntervalSecs is the tasks re-seed delay.
	TaskPollIntervalSecs int `mapstructure:"task_poll_interval_secs" yaml:"task_poll_interval_secs"`

	// MaxParallelJobs is the global concurrency ceiling, clamped to 1..40.
	MaxParallelJobs int `mapstructure:"max_parallel_jobs" yaml:"max_parallel_jobs"`
}

// DatabaseConfig locates the primary sqlite store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SearchConfig locates the on-disk mail index. The index is rebuildable
// from the primary store, so the directory is safe to delete.
type SearchConfig struct {
	IndexDir string `mapstructure:"index_dir" yaml:"index_dir"`
}

// LogConfig controls log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/syncbox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "syncbox", "config.yaml")
}

// defaultDataDir returns the base directory for durable state.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "syncbox")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := defaultDataDir()
	return &AppConfig{
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "syncbox.db")},
		Search:   SearchConfig{IndexDir: filepath.Join(dataDir, "mail-index")},
		Log: LogConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Sync: SyncConfig{
			EmailPollIntervalSecs:    120,
			CalendarPollIntervalSecs: 300,
			TaskPollIntervalSecs:     300,
			MaxParallelJobs:          4,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	defaults := defaultAppConfig()
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("search.index_dir", defaults.Search.IndexDir)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
	v.SetDefault("sync.email_poll_interval_secs", defaults.Sync.EmailPollIntervalSecs)
	v.SetDefault("sync.calendar_poll_interval_secs", defaults.Sync.CalendarPollIntervalSecs)
	v.SetDefault("sync.task_poll_interval_secs", defaults.Sync.TaskPollIntervalSecs)
	v.SetDefault("sync.max_parallel_jobs", defaults.Sync.MaxParallelJobs)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Sync.MaxParallelJobs = clampParallelJobs(cfg.Sync.MaxParallelJobs)

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("search", cfg.Search)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("sync", cfg.Sync)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// clampParallelJobs bounds the global ceiling to 1..40.
func clampParallelJobs(n int) int {
	if n < 1 {
		return 1
	}
	if n > 40 {
		return 40
	}
	return n
}
