// Package main is the entry point for the postpilot ops API server.
//
// The ops API exposes manual controls over the scheduling core: trigger a
// planning cycle, trigger a dispatch sweep, publish for one account now, and
// inspect job records. It is an operator surface, not a public one.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"postpilot/internal/api"
	"postpilot/internal/config"
	"postpilot/internal/db"
	"postpilot/internal/queue"
	"postpilot/internal/schedule"
	"postpilot/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	logger.Info("postpilot API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database pool: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	planningLoc, err := time.LoadLocation(cfg.Planner.Timezone)
	if err != nil {
		return fmt.Errorf("loading planning timezone %q: %w", cfg.Planner.Timezone, err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	jobRepo := db.NewJobRepository(pool)

	planner := schedule.NewPlanner(schedule.PlannerConfig{
		Accounts:        db.NewAccountRepository(pool),
		Jobs:            jobRepo,
		Trigger:         queue.NewDelayedTrigger(redisClient, queue.DelayedTriggerConfig{Logger: logger}),
		DefaultPlatform: types.Platform(cfg.Planner.DefaultPlatform),
		Concurrency:     cfg.Planner.Concurrency,
		Logger:          logger,
	})

	dispatcher := schedule.NewDispatcher(schedule.DispatcherConfig{
		Store:   jobRepo,
		Trigger: queue.NewContentTrigger(sqsClient, cfg.AWS, logger),
		Logger:  logger,
	})

	handler := api.NewHandler(api.HandlerConfig{
		Planner:     planner,
		Dispatcher:  dispatcher,
		Jobs:        jobRepo,
		PlanningLoc: planningLoc,
		Logger:      logger,
		Version:     cfg.Build.Version,
	})

	return serveHTTP(api.Routes(handler), cfg, logger)
}

// serveHTTP starts the HTTP server with graceful shutdown.
func serveHTTP(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
