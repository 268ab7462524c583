// Package main is the entrypoint for the long-running worker host.
//
// The worker runs both scheduling paths in one process: a cron entry fires the
// daily planner in the planning timezone, and a fixed-interval ticker drives
// the polling dispatcher that sweeps due jobs onto the content queue. This is
// the deployment shape for environments without EventBridge, such as a single
// container or a LocalStack development stack.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"postpilot/internal/config"
	"postpilot/internal/db"
	"postpilot/internal/metrics"
	"postpilot/internal/queue"
	"postpilot/internal/schedule"
	"postpilot/internal/types"
)

// cycleTimeout bounds a single planning or dispatch cycle so a wedged broker
// or database cannot stall the host indefinitely.
const cycleTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	logger.Info("worker initializing",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	planningLoc, err := time.LoadLocation(cfg.Planner.Timezone)
	if err != nil {
		logger.Error("failed to load planning timezone", "error", err, "timezone", cfg.Planner.Timezone)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
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

	var emitter *metrics.Emitter
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		emitter = metrics.NewEmitter(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	// Cron entries run in the planning timezone so "0 2 * * *" means 02:00
	// local wall-clock across DST changes.
	scheduler := cron.New(cron.WithLocation(planningLoc))
	_, err = scheduler.AddFunc(cfg.Planner.CronSpec, func() {
		runPlanner(ctx, planner, emitter, planningLoc, logger)
	})
	if err != nil {
		logger.Error("failed to register planner cron entry",
			"error", err,
			"cron_spec", cfg.Planner.CronSpec,
		)
		os.Exit(1)
	}
	scheduler.Start()

	logger.Info("worker started",
		"planner_cron", cfg.Planner.CronSpec,
		"planning_timezone", cfg.Planner.Timezone,
		"dispatch_interval", cfg.Dispatcher.Interval.String(),
	)

	ticker := time.NewTicker(cfg.Dispatcher.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping worker")
			cronCtx := scheduler.Stop()
			// Wait for any in-flight cron job to finish before exiting.
			<-cronCtx.Done()
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			runDispatcher(ctx, dispatcher, emitter, logger)
		}
	}
}

// runPlanner executes one planning cycle for today in the planning timezone.
func runPlanner(ctx context.Context, planner *schedule.Planner, emitter *metrics.Emitter, loc *time.Location, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	date := time.Now().In(loc)
	summary, err := planner.PlanForDate(ctx, date)
	if err != nil {
		logger.ErrorContext(ctx, "planning cycle failed",
			"date", date.Format("2006-01-02"),
			"error", err,
		)
		return
	}
	if emitter != nil {
		emitter.RecordPlan(ctx, summary)
	}
}

// runDispatcher executes one dispatch sweep as of now.
func runDispatcher(ctx context.Context, dispatcher *schedule.Dispatcher, emitter *metrics.Emitter, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	summary, err := dispatcher.DispatchDueAsOf(ctx, time.Now().UTC())
	if err != nil {
		logger.ErrorContext(ctx, "dispatch cycle failed", "error", err)
		return
	}
	if emitter != nil {
		emitter.RecordDispatch(ctx, summary)
	}
}
