// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC process timezone to prevent drift bugs.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Linker-injected build metadata variables. These are set at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X postpilot/internal/config.version=1.2.3 \
//	    -X postpilot/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X postpilot/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Default values are used during local development when ldflags are not set.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// Load loads and validates the service configuration from the environment.
// A .env file in the working directory is honored but never overrides
// variables already present in the environment.
func Load() (*Config, error) {
	// Enforce UTC for the whole process. Every scheduled instant in the
	// system is an absolute UTC time; local-zone arithmetic happens only
	// through explicit time.LoadLocation calls.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	cfg.Build = BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
