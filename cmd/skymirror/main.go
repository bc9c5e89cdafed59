// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Command skymirror is the entry point for the block-synchronization service.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis (only when the redis session backend is selected).
//  5. Run database migrations (idempotent).
//  6. Wire stores, governor, and session manager.
//  7. Start the diagnostics HTTP server.
//  8. Run the orchestrator until SIGTERM/SIGINT.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/haianhng/skymirror/internal/agent"
	"github.com/haianhng/skymirror/internal/api"
	"github.com/haianhng/skymirror/internal/core/account"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/core/cursor"
	"github.com/haianhng/skymirror/internal/core/modlist"
	"github.com/haianhng/skymirror/internal/core/session"
	"github.com/haianhng/skymirror/internal/directory"
	"github.com/haianhng/skymirror/internal/governor"
	"github.com/haianhng/skymirror/internal/orchestrator"
	"github.com/haianhng/skymirror/internal/platform/config"
	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/migration"
	pgstore "github.com/haianhng/skymirror/internal/platform/postgres"
	redisstore "github.com/haianhng/skymirror/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Skymirror] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("diag_port", cfg.DiagPort),
		slog.String("session_store", cfg.SessionStore),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis (optional) ───────────────────────────────────────────────
	var rdb *goredis.Client
	if cfg.SessionStore == constants.SessionBackendRedis {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Stores and Engine Infrastructure ───────────────────────────────
	var sessionStore session.Store
	switch cfg.SessionStore {
	case constants.SessionBackendFile:
		sessionStore, err = session.NewFileStore(cfg.SessionDir)
		must(log, err, "initialize file session store")
	case constants.SessionBackendRedis:
		sessionStore = session.NewRedisStore(rdb)
	default:
		sessionStore = session.NewPostgresStore(pool)
	}

	deps := agent.Deps{
		Accounts:  account.NewPostgresStore(pool),
		Blocks:    block.NewPostgresStore(pool),
		Cursors:   cursor.NewPostgresStore(pool),
		Lists:     modlist.NewPostgresStore(pool),
		Sessions:  session.NewManager(sessionStore, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, log),
		Directory: directory.NewClient(cfg.DirectoryURL),
		Governor: governor.New(governor.Options{
			MinInterval:    cfg.RequestInterval,
			WindowLimit:    cfg.WindowLimit,
			WindowLength:   cfg.WindowLength,
			RetryCount:     cfg.RetryCount,
			RetryBaseDelay: cfg.RetryBaseDelay,
		}, log),
		Logger: log,
	}

	// ── 7. Diagnostics Server ─────────────────────────────────────────────
	healthDeps := api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
	}
	if rdb != nil {
		healthDeps.CheckSessionCache = func() error {
			return redisstore.Ping(context.Background(), rdb)
		}
	}

	server := api.NewServer(cfg.DiagPort, log, healthDeps)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ── 8. Orchestrator and Graceful Shutdown ─────────────────────────────
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	fleet := orchestrator.New(cfg, deps, log)

	fleetErr := make(chan error, 1)
	go func() {
		fleetErr <- fleet.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	// Block until OS signal, fleet failure, or server error.
	fleetDone := false
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-fleetErr:
		fleetDone = true
		if err != nil {
			log.Error("orchestrator failed", slog.Any("error", err))
		}
	case err := <-serverErr:
		log.Error("diagnostics server error", slog.Any("error", err))
	}

	// Stop the agent loops first; they hold the upstream connections.
	runCancel()
	if !fleetDone {
		select {
		case <-fleetErr:
		case <-time.After(constants.ConsumerJoinTimeout + constants.ReconcilerJoinTimeout):
			log.Warn("agent fleet did not stop in time")
		}
	}

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down diagnostics server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("service stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
