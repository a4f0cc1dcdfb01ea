// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/scour/internal/api"
	"github.com/autobrr/scour/internal/buildinfo"
	"github.com/autobrr/scour/internal/config"
	"github.com/autobrr/scour/internal/definitions"
	"github.com/autobrr/scour/internal/domain"
	"github.com/autobrr/scour/internal/health"
	"github.com/autobrr/scour/internal/orchestrator"
	"github.com/autobrr/scour/internal/ratelimit"
	"github.com/autobrr/scour/internal/scrape"
)

type Application struct {
	config   *config.AppConfig
	registry *definitions.Registry
	engine   *scrape.Engine
	search   *orchestrator.Orchestrator
	server   *api.Server

	definitionsDir string
}

func NewApplication(configDir, definitionsDir, logPath string) *Application {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	if logPath != "" {
		cfg.Config.LogPath = logPath
	}
	cfg.ApplyLogConfig()

	if definitionsDir == "" {
		definitionsDir = cfg.Config.DefinitionsDir
	}

	registry := definitions.NewRegistry()
	registry.Load(definitions.LoadBuiltins(), domain.ProvenanceBuiltin)
	if definitionsDir != "" {
		registry.Reload(definitions.LoadDir(definitionsDir), domain.ProvenanceUser)
	}
	log.Info().Int("definitions", registry.Len()).Msg("Loaded source definitions")

	engine := scrape.NewEngine()
	tracker := health.NewTracker(health.DefaultBackoffPolicy(), nil)
	limiter := ratelimit.New(cfg.Config.RateLimitRequests, time.Duration(cfg.Config.RateLimitWindowSeconds)*time.Second)

	search := orchestrator.New(registry, engine, tracker, limiter, orchestrator.Options{
		MaxConcurrent:        cfg.Config.MaxConcurrentSearches,
		InstanceTimeout:      time.Duration(cfg.Config.InstanceTimeoutSeconds) * time.Second,
		RateLimitWaitBudget:  time.Duration(cfg.Config.RateLimitMaxWaitMillis) * time.Millisecond,
		FuzzyDedupeThreshold: cfg.Config.FuzzyDedupeThreshold,
	})

	server := api.NewServer(&api.Dependencies{
		Config:       cfg,
		Version:      buildinfo.Version,
		Registry:     registry,
		Orchestrator: search,
	})

	return &Application{
		config:         cfg,
		registry:       registry,
		engine:         engine,
		search:         search,
		server:         server,
		definitionsDir: definitionsDir,
	}
}

func (app *Application) runServer() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.config.RegisterReloadListener(func(cfg *domain.Config) {
		log.Info().Str("log_level", cfg.LogLevel).Msg("Applied configuration reload")
	})

	if app.definitionsDir != "" {
		go func() {
			if err := app.registry.Watch(ctx, app.definitionsDir); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Definitions watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
