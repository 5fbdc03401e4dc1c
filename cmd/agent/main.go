// Package main is the entrypoint for the Skipper agent.
//
// The agent runs the scheduled routines: morning and pre-practice condition
// checks, lead confirmation nudges, and the proposal expiry sweep. With no
// flags it runs the wall-clock scheduler until terminated; with -task it
// runs a single routine and exits, which is how cron-style deployments and
// operators invoke it.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"skipper/internal/agent"
	"skipper/internal/config"
	"skipper/internal/db"
	"skipper/internal/engine"
	"skipper/internal/proposals"
	"skipper/internal/providers"
)

func main() {
	task := flag.String("task", "", "run one routine and exit (morning_check, precheck_48h, precheck_24h, lead_verification, expire_proposals)")
	flag.Parse()

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

	configSource := engine.FileConfigSource{Path: cfg.AgentConfigPath, Logger: logger}

	evaluator := engine.NewEvaluator(engine.EvaluatorConfig{
		Weather:  weather,
		Trail:    trails,
		Daylight: providers.NewSolarCalculator(),
		Configs:  configSource,
		Logger:   logger,
	})

	requestRepo := db.NewCancellationRequestRepository(pool, pool)
	proposalService := proposals.NewService(proposals.ServiceConfig{
		Store:   requestRepo,
		Configs: configSource,
		Logger:  logger,
	})

	routines := agent.NewRoutines(agent.RoutinesConfig{
		Practices: db.NewPracticeRepository(pool),
		Evaluator: evaluator,
		Proposals: proposalService,
		Notifier:  providers.NewLogNotifier(logger),
		Runs:      db.NewAgentRunRepository(pool),
		Configs:   configSource,
		Logger:    logger,
	})

	if *task != "" {
		summary, err := routines.Run(ctx, agent.TaskType(*task))
		if err != nil {
			logger.Error("routine failed", "task", *task, "error", err)
			os.Exit(1)
		}
		logger.Info("routine finished",
			"task", *task,
			"checked", summary.Checked,
			"proposed", summary.Proposed,
			"errors", summary.Errors,
		)
		return
	}

	runner := agent.NewRunner(routines, agent.DefaultSchedule(), logger)
	logger.Info("skipper agent starting", "environment", cfg.Environment)
	if err := runner.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("agent runner exited with error", "error", err)
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
