// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the application configuration. A snapshot is replaced
// wholesale on administrative updates; in-flight work keeps the snapshot it
// captured at submission time.
type Config struct {
	Version string `json:"version"`

	Host string `toml:"host" mapstructure:"host" json:"host"`
	Port int    `toml:"port" mapstructure:"port" json:"port"`

	LogLevel string `toml:"logLevel" mapstructure:"logLevel" json:"logLevel"`
	LogPath  string `toml:"logPath" mapstructure:"logPath" json:"logPath"`

	// DanmuBaseURL is the base URL of the remote danmu catalog service.
	DanmuBaseURL string `toml:"danmuBaseUrl" mapstructure:"danmuBaseUrl" json:"danmuBaseUrl"`
	DanmuAPIKey  string `toml:"danmuApiKey" mapstructure:"danmuApiKey" json:"danmuApiKey"`

	WatchDirs      []string `toml:"watchDirs" mapstructure:"watchDirs" json:"watchDirs"`
	FileExtensions []string `toml:"fileExtensions" mapstructure:"fileExtensions" json:"fileExtensions"`

	// OutputDir, when set, receives artifacts instead of the video's own
	// directory.
	OutputDir string `toml:"outputDir" mapstructure:"outputDir" json:"outputDir"`

	SettleDelay time.Duration `toml:"settleDelay" mapstructure:"settleDelay" json:"settleDelay"`
	MaxWorkers  int           `toml:"maxWorkers" mapstructure:"maxWorkers" json:"maxWorkers"`
	MaxAttempts int           `toml:"maxAttempts" mapstructure:"maxAttempts" json:"maxAttempts"`
	RetryDelay  time.Duration `toml:"retryDelay" mapstructure:"retryDelay" json:"retryDelay"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled" json:"metricsEnabled"`
}

// DefaultConfig returns the configuration used when no config file exists yet.
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           7810,
		LogLevel:       "INFO",
		WatchDirs:      []string{"./videos"},
		FileExtensions: []string{".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm"},
		SettleDelay:    500 * time.Millisecond,
		MaxWorkers:     4,
		MaxAttempts:    3,
		RetryDelay:     time.Second,
		MetricsEnabled: false,
	}
}

// Validate checks invariants the rest of the application relies on.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxWorkers <= 0 {
		return errors.New("maxWorkers must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("maxAttempts must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.New("settleDelay must not be negative")
	}
	if c.RetryDelay <= 0 {
		return errors.New("retryDelay must be positive")
	}
	if len(c.WatchDirs) == 0 {
		return errors.New("at least one watch directory is required")
	}
	for _, ext := range c.FileExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("file extension %q must start with a dot", ext)
		}
	}
	return nil
}

// AllowsExtension reports whether a filename extension is on the allow-list.
// The comparison is case-insensitive.
func (c *Config) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.FileExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}
