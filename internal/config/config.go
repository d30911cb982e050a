// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads and persists the application configuration from a
// TOML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/danmusync/danmusync/internal/buildinfo"
	"github.com/danmusync/danmusync/internal/domain"
)

const envPrefix = "DANMUSYNC"

// AppConfig owns the persisted configuration. The in-memory snapshot is
// replaced wholesale on every reload or update and handed out by pointer;
// callers must not mutate it.
type AppConfig struct {
	viper *viper.Viper

	mu       sync.Mutex
	config   *domain.Config
	onUpdate []func(*domain.Config)
}

// New loads the configuration from configPath, creating a default config
// file on first run. configPath may be a directory or a full file path;
// empty means the user config dir.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{viper: viper.New()}

	c.viper.SetConfigType("toml")
	setDefaults(c.viper)

	c.viper.SetEnvPrefix(envPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	c.viper.AutomaticEnv()

	file, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	c.viper.SetConfigFile(file)

	if _, err := os.Stat(file); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(file); err != nil {
			return nil, err
		}
		log.Info().Str("path", file).Msg("config: wrote default config file")
	}

	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := c.unmarshal()
	if err != nil {
		return nil, err
	}
	c.config = cfg

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.reload()
	})
	c.viper.WatchConfig()

	return c, nil
}

// Snapshot returns the current configuration.
func (c *AppConfig) Snapshot() *domain.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// OnUpdate registers a callback invoked with each new snapshot after a
// reload or administrative update.
func (c *AppConfig) OnUpdate(fn func(*domain.Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// Update validates, persists and applies a new configuration.
func (c *AppConfig) Update(next domain.Config) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	c.viper.Set("host", next.Host)
	c.viper.Set("port", next.Port)
	c.viper.Set("logLevel", next.LogLevel)
	c.viper.Set("logPath", next.LogPath)
	c.viper.Set("danmuBaseUrl", next.DanmuBaseURL)
	c.viper.Set("danmuApiKey", next.DanmuAPIKey)
	c.viper.Set("watchDirs", next.WatchDirs)
	c.viper.Set("fileExtensions", next.FileExtensions)
	c.viper.Set("outputDir", next.OutputDir)
	c.viper.Set("settleDelay", next.SettleDelay.String())
	c.viper.Set("maxWorkers", next.MaxWorkers)
	c.viper.Set("maxAttempts", next.MaxAttempts)
	c.viper.Set("retryDelay", next.RetryDelay.String())
	c.viper.Set("metricsEnabled", next.MetricsEnabled)

	if err := c.viper.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.apply(&next)
	log.Info().Msg("config: configuration updated")
	return nil
}

func (c *AppConfig) reload() {
	cfg, err := c.unmarshal()
	if err != nil {
		log.Error().Err(err).Msg("config: ignoring invalid config file change")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config: ignoring invalid config file change")
		return
	}
	c.apply(cfg)
	log.Info().Msg("config: reloaded after file change")
}

func (c *AppConfig) apply(cfg *domain.Config) {
	c.mu.Lock()
	c.config = cfg
	listeners := make([]func(*domain.Config), len(c.onUpdate))
	copy(listeners, c.onUpdate)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (c *AppConfig) unmarshal() (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if err := c.viper.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.StringToTimeDurationHookFunc(),
	)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Version = buildinfo.Version
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := domain.DefaultConfig()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("logLevel", defaults.LogLevel)
	v.SetDefault("logPath", defaults.LogPath)
	v.SetDefault("danmuBaseUrl", defaults.DanmuBaseURL)
	v.SetDefault("danmuApiKey", defaults.DanmuAPIKey)
	v.SetDefault("watchDirs", defaults.WatchDirs)
	v.SetDefault("fileExtensions", defaults.FileExtensions)
	v.SetDefault("outputDir", defaults.OutputDir)
	v.SetDefault("settleDelay", defaults.SettleDelay.String())
	v.SetDefault("maxWorkers", defaults.MaxWorkers)
	v.SetDefault("maxAttempts", defaults.MaxAttempts)
	v.SetDefault("retryDelay", defaults.RetryDelay.String())
	v.SetDefault("metricsEnabled", defaults.MetricsEnabled)
}

func resolveConfigFile(configPath string) (string, error) {
	if configPath == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locate config dir: %w", err)
		}
		return filepath.Join(base, "danmusync", "config.toml"), nil
	}

	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		return filepath.Join(configPath, "config.toml"), nil
	}
	if strings.HasSuffix(configPath, ".toml") {
		return configPath, nil
	}
	return filepath.Join(configPath, "config.toml"), nil
}

func (c *AppConfig) writeDefaultConfig(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	defaults := domain.DefaultConfig()
	content := fmt.Sprintf(`# config.toml - Auto-generated on first run

# Address for the admin API to bind to
host = %q

# Port for the admin API
port = %d

# Log level
# Options: "TRACE", "DEBUG", "INFO", "WARN", "ERROR"
logLevel = %q

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/danmusync.log"

# Base URL of the remote danmu catalog service
danmuBaseUrl = ""

# API key sent with every catalog request
# Optional
danmuApiKey = ""

# Directories watched for new video files
watchDirs = ["./videos"]

# Extensions treated as video files
fileExtensions = [".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm"]

# Directory receiving XML artifacts
# Empty writes them beside each video
outputDir = ""

# Wait after a filesystem event before the file is considered stable
settleDelay = %q

# Concurrent pipeline workers
maxWorkers = %d

# Total attempts per file before giving up
maxAttempts = %d

# Delay before a failed file is retried
retryDelay = %q

# Expose Prometheus metrics at /metrics
metricsEnabled = %v
`,
		defaults.Host, defaults.Port, defaults.LogLevel,
		defaults.SettleDelay.String(), defaults.MaxWorkers,
		defaults.MaxAttempts, defaults.RetryDelay.String(), defaults.MetricsEnabled)

	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
