// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/danmusync/danmusync/internal/domain"
)

// Setup applies the configured level and sinks to the global logger. Console
// output always goes to stderr; a non-empty LogPath adds a rotating file.
func Setup(cfg *domain.Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}}

	if cfg.LogPath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetLevel adjusts only the global level, used on config reload.
func SetLevel(levelStr string) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		log.Warn().Str("level", levelStr).Msg("logger: unknown level, keeping current")
		return
	}
	log.Logger = log.Logger.Level(level)
}
