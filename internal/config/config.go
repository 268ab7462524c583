// Package config defines the global configuration structure for the postpilot
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"log/slog"
	"time"
)

// Config is the top-level configuration struct for the postpilot service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"postpilot"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Planner       PlannerConfig
	Dispatcher    DispatcherConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the ops API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ConnectTimeout    time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the connection settings for the delayed-delivery broker.
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" validate:"required,uri"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
// The create-content queue is the undelayed work queue used by the polling
// dispatcher; it is only required by deployments that run the dispatcher.
type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" default:"us-east-1"`
	CreateContentQueue string `envconfig:"SQS_CREATE_CONTENT" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PlannerConfig holds daily-planner settings.
type PlannerConfig struct {
	// DefaultPlatform is stamped onto publish payloads for accounts that do
	// not carry an explicit platform.
	DefaultPlatform string `envconfig:"PLANNER_DEFAULT_PLATFORM" default:"instagram" validate:"oneof=instagram youtube tiktok"`
	// Timezone is the zone in which the planning cron and "today" are
	// interpreted.
	Timezone string `envconfig:"PLANNER_TIMEZONE" default:"America/Los_Angeles" validate:"required,timezone"`
	// CronSpec controls when the worker host runs the daily planner.
	CronSpec string `envconfig:"PLANNER_CRON" default:"0 2 * * *"`
	// Concurrency bounds per-account parallelism. 1 keeps the per-account
	// loop sequential.
	Concurrency int `envconfig:"PLANNER_CONCURRENCY" default:"1" validate:"min=1"`
}

// DispatcherConfig holds polling-dispatcher settings. The poll interval is
// the worst-case added latency between a job coming due and its dispatch.
type DispatcherConfig struct {
	Interval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"30s" validate:"min=1s"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PostPilot"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build metadata injected at compile time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// SlogLevel maps the configured LogLevel string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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
