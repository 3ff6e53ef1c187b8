// Peregrine - Fraud detection projects that provision in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/peregrine/internal/api"
	"github.com/opensource-finance/peregrine/internal/bus"
	"github.com/opensource-finance/peregrine/internal/cache"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/profiler"
	"github.com/opensource-finance/peregrine/internal/provision"
	"github.com/opensource-finance/peregrine/internal/remote"
	"github.com/opensource-finance/peregrine/internal/repository"
	"github.com/opensource-finance/peregrine/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("PEREGRINE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting peregrine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("PEREGRINE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"project", cfg.Project.Name,
		"remote", cfg.Remote.Endpoint,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize remote client
	client := remote.NewClient(cfg.Remote, logger)
	slog.Info("remote client initialized", "endpoint", cfg.Remote.Endpoint, "region", cfg.Remote.Region)

	// Optional identity check at startup
	if identity := remote.NewIdentityClient(cfg.Remote, logger); identity != nil {
		if who, err := identity.CheckIdentity(ctx); err != nil {
			slog.Warn("identity check failed", "error", err)
		} else {
			slog.Info("identity verified", "identity", who)
		}
	}

	// Initialize Provisioner
	provisioner := provision.New(client, cacheImpl, repo, busImpl, cfg.Project, logger)
	slog.Info("provisioner initialized",
		"entity_type", cfg.Project.EntityType,
		"event_type", cfg.Project.EventType,
		"model", cfg.Project.ModelName,
		"detector", cfg.Project.DetectorName,
	)

	// Initialize Profiler
	prof := profiler.New(logger)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("PEREGRINE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, provisioner, logger)

		workerCfg := worker.Config{
			Projects: []string{cfg.Project.Name},
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "project", cfg.Project.Name)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, provisioner, prof, cfg.Project.Name, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("peregrine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("peregrine shutdown complete")
}

// applyEnvOverrides layers PEREGRINE_* environment variables over the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("PEREGRINE_PROJECT"); v != "" {
		cfg.Project.Name = v
	}
	if v := os.Getenv("PEREGRINE_ENTITY_TYPE"); v != "" {
		cfg.Project.EntityType = v
	}
	if v := os.Getenv("PEREGRINE_EVENT_TYPE"); v != "" {
		cfg.Project.EventType = v
	}
	if v := os.Getenv("PEREGRINE_MODEL_NAME"); v != "" {
		cfg.Project.ModelName = v
	}
	if v := os.Getenv("PEREGRINE_MODEL_VERSION"); v != "" {
		cfg.Project.ModelVersion = v
	}
	if v := os.Getenv("PEREGRINE_DETECTOR_NAME"); v != "" {
		cfg.Project.DetectorName = v
	}
	if v := os.Getenv("PEREGRINE_REMOTE_ENDPOINT"); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv("PEREGRINE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("PEREGRINE_REGION"); v != "" {
		cfg.Remote.Region = v
	}
	if v := os.Getenv("PEREGRINE_IDENTITY_ENDPOINT"); v != "" {
		cfg.Remote.IdentityEndpoint = v
	}
	if v := os.Getenv("PEREGRINE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  PEREGRINE - fraud detection orchestration")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Project:  %s\n", cfg.Project.Name)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /profile             - Profile a CSV training set")
	fmt.Println("    POST /profile/inputs      - Derive training inputs from CSV")
	fmt.Println("    POST /setup               - Provision project resources")
	fmt.Println("    GET  /journal             - Provisioning journal")
	fmt.Println("    POST /resources/*         - Manage individual resources")
	fmt.Println("    POST /models/train        - Start model training")
	fmt.Println("    GET  /models/status       - Model version status")
	fmt.Println("    POST /models/activate     - Activate trained model")
	fmt.Println("    POST /models/deploy       - Deploy detector with rules")
	fmt.Println("    POST /predict             - Score a single event")
	fmt.Println("    POST /predict/batch       - Score a batch of events")
	fmt.Println("    POST /predict/batch/async - Queue a batch for async scoring")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
