// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmusync/danmusync/internal/api"
	"github.com/danmusync/danmusync/internal/buildinfo"
	"github.com/danmusync/danmusync/internal/catalog"
	"github.com/danmusync/danmusync/internal/config"
	"github.com/danmusync/danmusync/internal/domain"
	"github.com/danmusync/danmusync/internal/logger"
	"github.com/danmusync/danmusync/internal/metrics"
	"github.com/danmusync/danmusync/internal/services/fetch"
	"github.com/danmusync/danmusync/internal/watcher"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "danmusync",
		Short: "Watches media folders and downloads matching danmu comment tracks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file or directory")

	cmd.AddCommand(ServeCommand(&configPath))
	cmd.AddCommand(VersionCommand())
	cmd.AddCommand(ScanCommand(&configPath))
	return cmd
}

func ServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the watcher, pipeline and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*configPath)
		},
	}
}

func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Print(buildinfo.String())
		},
	}
}

// ScanCommand submits every matching file under the configured watch
// directories once, without starting the watcher or the API.
func ScanCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Process the watch directories once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appConfig, err := config.New(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := appConfig.Snapshot()
			logger.Setup(cfg)

			fetchSvc := newFetchService(cfg, metrics.NewManager())
			total := 0
			for _, dir := range cfg.WatchDirs {
				submitted, err := fetchSvc.ScanDirectory(dir)
				total += submitted
				if err != nil {
					return fmt.Errorf("scan %s: %w", dir, err)
				}
			}
			log.Info().Int("submitted", total).Msg("scan: directories submitted")

			fetchSvc.Stop()
			return nil
		},
	}
}

func newFetchService(cfg *domain.Config, m *metrics.Manager) *fetch.Service {
	client := catalog.NewClient(catalog.Config{
		BaseURL: cfg.DanmuBaseURL,
		APIKey:  cfg.DanmuAPIKey,
	})
	return fetch.NewService(cfg, client, m)
}

func runServe(configPath string) error {
	appConfig, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := appConfig.Snapshot()
	logger.Setup(cfg)

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Msg("starting danmusync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewManager()
	fetchSvc := newFetchService(cfg, m)
	watcherSvc := watcher.NewService(cfg, fetchSvc, m)

	appConfig.OnUpdate(func(next *domain.Config) {
		logger.SetLevel(next.LogLevel)
		fetchSvc.UpdateConfig(next)
		watcherSvc.UpdateConfig(next)
	})

	if err := fetchSvc.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := watcherSvc.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("watcher not started, use the API to start it once directories exist")
	}

	server := api.NewServer(&api.Dependencies{
		Config:         appConfig,
		FetchService:   fetchSvc,
		WatcherService: watcherSvc,
		Metrics:        m,
	})

	err = server.Start(ctx)

	watcherSvc.Stop()
	fetchSvc.Stop()
	return err
}
