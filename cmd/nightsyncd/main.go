// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kkleytt/NightScout-New/config"
	"github.com/Kkleytt/NightScout-New/internal/display"
	"github.com/Kkleytt/NightScout-New/nightpg"
	"github.com/Kkleytt/NightScout-New/nightsqlite"
	"github.com/Kkleytt/NightScout-New/nightsync"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}
	command := os.Args[1]
	if command == "help" {
		showHelp()
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath())
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "parse":
		runParse(ctx, cfg, logger)
	case "loop":
		runLoop(ctx, cfg, logger)
	case "serve":
		runServe(ctx, cfg, logger)
	case "print":
		runPrint(ctx, cfg, logger)
	case "mirror":
		runMirror(ctx, cfg, logger)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
		os.Exit(2)
	}
}

func showHelp() {
	fmt.Println("nightsyncd - Nightscout telemetry sync")
	fmt.Println("")
	fmt.Println("Usage: nightsyncd <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  parse   Run one fetch-reconcile-commit cycle")
	fmt.Println("  loop    Run cycles forever at the configured interval")
	fmt.Println("  serve   Run the REST facade")
	fmt.Println("  print   Print the latest persisted telemetry")
	fmt.Println("  mirror  Copy the store into the configured mirror target")
	fmt.Println("  help    Show this help message")
	fmt.Println("")
	fmt.Println("Configuration is read from config.yaml (override with NIGHTSYNC_CONFIG).")
}

func configPath() string {
	if path := os.Getenv("NIGHTSYNC_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func logLevel() slog.Level {
	if os.Getenv("NIGHTSYNC_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// buildStore opens the configured persistence backend. The returned SQLStore
// is nil for the remote driver; commands that need direct SQL access (serve,
// print, mirror) reject that configuration.
func buildStore(ctx context.Context, cfg config.Config) (nightsync.Store, *nightsync.SQLStore, nightsync.Querier, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := nightsqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		store := nightsync.NewSQLStore(db, cfg.Normalizer())
		return store, store, db, func() { db.Close() }, nil
	case "postgres":
		db, err := nightpg.Open(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		store := nightsync.NewSQLStore(db, cfg.Normalizer())
		return store, store, db, func() { db.Close() }, nil
	case "remote":
		r := cfg.Store.Remote
		store := nightsync.NewRemoteStore(r.BaseURL, r.Username, r.Password,
			time.Duration(r.TokenLifetimeMinutes)*time.Minute, cfg.Normalizer())
		return store, nil, nil, func() {}, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func buildDriver(cfg config.Config, store nightsync.Store, logger *slog.Logger) *nightsync.Driver {
	engine := nightsync.NewEngine(store,
		nightsync.EngineConfig{IDFloor: cfg.Sync.IDFloor}, logger)
	source := nightsync.NewNightscoutSource(cfg.Upstream.Host, cfg.Upstream.Token)
	driverCfg := nightsync.DriverConfig{
		FetchLimit:    cfg.Upstream.Count,
		EnableGlucose: cfg.Streams.Sugar,
		EnableDose:    cfg.Streams.Insulin,
		EnableDevice:  cfg.Streams.Device,
		Names:         cfg.DeviceNames(),
	}
	return nightsync.NewDriver(source, engine, cfg.Classifier(), driverCfg,
		logger, nightsync.SlogStageRecorder(logger))
}

func runParse(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	store, _, _, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	result := buildDriver(cfg, store, logger).RunOnce(ctx)
	if !result.OK() {
		os.Exit(1)
	}
}

func runLoop(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	store, _, _, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	logger.Info("starting sync loop", "interval", cfg.Interval())
	err = buildDriver(cfg, store, logger).RunForever(ctx, cfg.Interval())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sync loop stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("sync loop stopped")
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	_, sqlStore, querier, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if sqlStore == nil {
		logger.Error("serve requires a sqlite or postgres store, not remote")
		os.Exit(1)
	}
	if cfg.API.JWTSecret == "" {
		logger.Error("api.jwt_secret is required to serve")
		os.Exit(1)
	}

	users, err := nightsync.LoadUserRegistry(cfg.API.UsersFile)
	if err != nil {
		logger.Error("failed to load users file", "error", err)
		os.Exit(1)
	}

	jwtAuth := nightsync.NewJWTAuth(cfg.API.JWTSecret,
		time.Duration(cfg.API.TokenLifetimeMinutes)*time.Minute)
	handlers := nightsync.NewHTTPHandlers(sqlStore, querier, jwtAuth, users, logger)

	server := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      handlers.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting REST facade", "addr", cfg.API.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func runPrint(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	_, sqlStore, _, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if sqlStore == nil {
		logger.Error("print requires a sqlite or postgres store, not remote")
		os.Exit(1)
	}

	samples, err := sqlStore.LastGlucose(ctx, 1)
	if err != nil || len(samples) == 0 {
		logger.Error("no glucose data to print", "error", err)
		os.Exit(1)
	}
	dose, _ := sqlStore.LastDose(ctx)
	device, _ := sqlStore.LoadDevice(ctx)

	var renderer display.Renderer
	renderer.Render(os.Stdout, &samples[0], dose, device)
}

func runMirror(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	_, src, _, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	if src == nil {
		logger.Error("mirror requires a sqlite or postgres source store, not remote")
		os.Exit(1)
	}

	var dst *nightsync.SQLStore
	var closeDst func()
	switch cfg.Store.Mirror.Driver {
	case "sqlite":
		db, err := nightsqlite.Open(cfg.Store.Mirror.SQLitePath)
		if err != nil {
			logger.Error("failed to open mirror target", "error", err)
			os.Exit(1)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare mirror target", "error", err)
			os.Exit(1)
		}
		dst = nightsync.NewSQLStore(db, cfg.MirrorNormalizer())
		closeDst = func() { db.Close() }
	case "postgres":
		db, err := nightpg.Open(ctx, cfg.Store.Mirror.PostgresURL)
		if err != nil {
			logger.Error("failed to open mirror target", "error", err)
			os.Exit(1)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare mirror target", "error", err)
			os.Exit(1)
		}
		dst = nightsync.NewSQLStore(db, cfg.MirrorNormalizer())
		closeDst = func() { db.Close() }
	default:
		logger.Error("mirror target driver must be sqlite or postgres",
			"driver", cfg.Store.Mirror.Driver)
		os.Exit(1)
	}
	defer closeDst()

	if _, err := nightsync.Mirror(ctx, src, dst, logger); err != nil {
		logger.Error("mirror failed", "error", err)
		os.Exit(1)
	}
}
