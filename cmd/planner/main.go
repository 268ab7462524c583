// Package main is the entrypoint for the planner Lambda function.
//
// The planner runs once per planning cycle via an EventBridge rule. It
// creates PENDING job records for every active account and submits a deferred
// publish trigger for each, to fire at the job's scheduled instant. Manual
// invocation may carry a date to plan for a specific calendar day.
//
// This file handles dependency wiring (cold start) and delegates all
// scheduling logic to the internal/schedule package.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/redis/go-redis/v9"

	"postpilot/internal/config"
	"postpilot/internal/db"
	"postpilot/internal/metrics"
	"postpilot/internal/queue"
	"postpilot/internal/schedule"
	"postpilot/internal/types"
)

// PlannerInput is the Lambda invocation payload. Date overrides the planning
// day ("YYYY-MM-DD" in the planning timezone); empty means today.
type PlannerInput struct {
	Date string `json:"date"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	logger.Info("planner Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	planningLoc, err := time.LoadLocation(cfg.Planner.Timezone)
	if err != nil {
		logger.Error("failed to load planning timezone", "error", err, "timezone", cfg.Planner.Timezone)
		os.Exit(1)
	}

	trigger := queue.NewDelayedTrigger(redisClient, queue.DelayedTriggerConfig{
		Logger: logger,
	})

	planner := schedule.NewPlanner(schedule.PlannerConfig{
		Accounts:        db.NewAccountRepository(pool),
		Jobs:            db.NewJobRepository(pool),
		Trigger:         trigger,
		DefaultPlatform: types.Platform(cfg.Planner.DefaultPlatform),
		Concurrency:     cfg.Planner.Concurrency,
		Logger:          logger,
	})

	var emitter *metrics.Emitter
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		emitter = metrics.NewEmitter(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	logger.Info("planner Lambda initialized",
		"planning_timezone", cfg.Planner.Timezone,
		"default_platform", cfg.Planner.DefaultPlatform,
		"concurrency", cfg.Planner.Concurrency,
	)

	lambda.Start(newHandler(planner, emitter, planningLoc, logger))
}

// newHandler creates the Lambda handler that runs one planning cycle per
// invocation. Infrastructure failures propagate so EventBridge retry and
// alerting see them; per-account failures travel inside the summary.
func newHandler(planner *schedule.Planner, emitter *metrics.Emitter, planningLoc *time.Location, logger *slog.Logger) func(ctx context.Context, input PlannerInput) (*types.PlanSummary, error) {
	return func(ctx context.Context, input PlannerInput) (*types.PlanSummary, error) {
		date := time.Now().In(planningLoc)
		if input.Date != "" {
			parsed, err := time.ParseInLocation("2006-01-02", input.Date, planningLoc)
			if err != nil {
				return nil, fmt.Errorf("invalid date %q: %w", input.Date, err)
			}
			date = parsed
		}

		logger.InfoContext(ctx, "planner handler invoked",
			"date", date.Format("2006-01-02"),
		)

		summary, err := planner.PlanForDate(ctx, date)
		if err != nil {
			logger.ErrorContext(ctx, "planning cycle failed", "error", err)
			return nil, fmt.Errorf("planning cycle failed: %w", err)
		}

		if emitter != nil {
			emitter.RecordPlan(ctx, summary)
		}

		return summary, nil
	}
}
