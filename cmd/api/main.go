// Package main is the entrypoint for the Skipper API server.
//
// The API serves on-demand practice evaluation, cancellation proposal
// listing, and the human decision endpoint. It shares the evaluation engine
// and proposal state machine with the agent process; only the trigger
// differs (HTTP here, wall clock there).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"skipper/internal/api"
	"skipper/internal/config"
	"skipper/internal/db"
	"skipper/internal/engine"
	"skipper/internal/narrative"
	"skipper/internal/proposals"
	"skipper/internal/providers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(cfg.Database, logger); err != nil {
		logger.Error("failed to run database migrations", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Signal providers, optionally cached through Redis.
	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}
	weatherClient := providers.NewWeatherClient(providers.WeatherClientConfig{
		BaseURL:    cfg.Providers.WeatherBaseURL,
		UserAgent:  cfg.Providers.UserAgent,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	trailClient := providers.NewTrailClient(providers.TrailClientConfig{
		BaseURL:    cfg.Providers.TrailBaseURL,
		UserAgent:  cfg.Providers.UserAgent,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	rdb := providers.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	weather := providers.NewCachedWeatherProvider(weatherClient, rdb, cfg.Redis.TTL, logger)
	trails := providers.NewCachedTrailProvider(trailClient, rdb, cfg.Redis.TTL, logger)

	evaluator := engine.NewEvaluator(engine.EvaluatorConfig{
		Weather:  weather,
		Trail:    trails,
		Daylight: providers.NewSolarCalculator(),
		Configs:  engine.FileConfigSource{Path: cfg.AgentConfigPath, Logger: logger},
		Logger:   logger,
	})

	requestRepo := db.NewCancellationRequestRepository(pool, pool)
	proposalService := proposals.NewService(proposals.ServiceConfig{
		Store:   requestRepo,
		Configs: engine.FileConfigSource{Path: cfg.AgentConfigPath, Logger: logger},
		Logger:  logger,
	})

	server := api.NewServer(cfg.Server, api.ServerDeps{
		Practices: db.NewPracticeRepository(pool),
		Evaluator: evaluator,
		Narrative: narrative.NewGenerator(cfg.Narrative, logger),
		Proposals: requestRepo,
		Decider:   proposalService,
		DB:        pool,
	}, logger)

	logger.Info("skipper api starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)
	if err := server.Start(ctx); err != nil {
		logger.Error("api server exited with error", "error", err)
		os.Exit(1)
	}
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
