// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, agents) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/validate"
)

// # Configuration Schema

// Config holds all runtime configuration for the Skymirror service.
type Config struct {

	// Diagnostics server settings
	DiagPort    string `env:"DIAG_PORT"    envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Managed accounts. The primary owns the published moderation list;
	// secondaries feed it. Secondary credentials are "handle:password"
	// pairs separated by semicolons.
	PrimaryHandle     string `env:"PRIMARY_HANDLE,required"`
	PrimaryPassword   string `env:"PRIMARY_PASSWORD,required"`
	SecondaryAccounts string `env:"SECONDARY_ACCOUNTS"`

	// Upstream endpoints
	ServiceURL   string `env:"SERVICE_URL"   envDefault:"https://bsky.social"`
	FirehoseURL  string `env:"FIREHOSE_URL"  envDefault:"wss://bsky.network"`
	DirectoryURL string `env:"DIRECTORY_URL" envDefault:"https://api.clearsky.services/api/v1/anon"`

	// Moderation list presentation
	ListName        string `env:"LIST_NAME"        envDefault:"Skymirror aggregate blocks"`
	ListDescription string `env:"LIST_DESCRIPTION" envDefault:"Aggregated block list maintained by Skymirror."`

	// Rate governor budgets
	RequestInterval time.Duration `env:"REQUEST_INTERVAL"  envDefault:"1s"`
	WindowLimit     int           `env:"WINDOW_LIMIT"      envDefault:"2000"`
	WindowLength    time.Duration `env:"WINDOW_LENGTH"     envDefault:"5m"`
	RetryCount      int           `env:"RETRY_COUNT"       envDefault:"3"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY"  envDefault:"30s"`
	LoginSpacing    time.Duration `env:"LOGIN_SPACING"     envDefault:"30s"`

	// Session thresholds
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"115m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"1320h"`

	// Session storage backend: database | file | redis
	SessionStore string `env:"SESSION_STORE" envDefault:"database"`
	SessionDir   string `env:"SESSION_DIR"   envDefault:"./data/sessions"`
	RedisURL     string `env:"REDIS_URL"`

	// Reconciliation cadence
	PrimarySyncInterval   time.Duration `env:"PRIMARY_SYNC_INTERVAL"   envDefault:"15m"`
	SecondarySyncInterval time.Duration `env:"SECONDARY_SYNC_INTERVAL" envDefault:"60m"`
	FullSyncInterval      time.Duration `env:"FULL_SYNC_INTERVAL"      envDefault:"24h"`

	// Publisher pacing
	PublishBatchSize    int           `env:"PUBLISH_BATCH_SIZE"    envDefault:"50"`
	PublishBatchPause   time.Duration `env:"PUBLISH_BATCH_PAUSE"   envDefault:"10s"`
	PublishPagePause    time.Duration `env:"PUBLISH_PAGE_PAUSE"    envDefault:"100ms"`
	PublishAdditiveOnly bool          `env:"PUBLISH_ADDITIVE_ONLY" envDefault:"false"`
}

// Account is one managed account's credential pair.
type Account struct {
	Handle   string
	Password string
	Primary  bool
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate applies cross-field sanity checks that env tags cannot express.
func (c *Config) validate() error {
	v := &validate.Validator{}

	v.Required("PRIMARY_HANDLE", c.PrimaryHandle)
	v.Required("PRIMARY_PASSWORD", c.PrimaryPassword)
	v.OneOf("SESSION_STORE", c.SessionStore,
		constants.SessionBackendDatabase,
		constants.SessionBackendFile,
		constants.SessionBackendRedis,
	)
	v.Positive("WINDOW_LIMIT", c.WindowLimit)
	v.Positive("PUBLISH_BATCH_SIZE", c.PublishBatchSize)

	if c.SessionStore == constants.SessionBackendRedis && c.RedisURL == "" {
		v.Fail("REDIS_URL", "required when SESSION_STORE=redis")
	}

	// Malformed secondary credentials should fail startup, not first login.
	if _, err := c.Accounts(); err != nil {
		v.Fail("SECONDARY_ACCOUNTS", err.Error())
	}

	return v.Err()
}

// Accounts returns the full managed-account roster, primary first.
//
// SECONDARY_ACCOUNTS uses the "handle:password;handle:password" format; empty
// segments (trailing semicolons) are ignored.
func (c *Config) Accounts() ([]Account, error) {
	accounts := []Account{{Handle: c.PrimaryHandle, Password: c.PrimaryPassword, Primary: true}}

	for _, pair := range strings.Split(c.SecondaryAccounts, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		handle, password, ok := strings.Cut(pair, ":")
		if !ok || handle == "" || password == "" {
			return nil, fmt.Errorf("config: malformed secondary account entry %q (want handle:password)", pair)
		}

		accounts = append(accounts, Account{Handle: handle, Password: password})
	}

	return accounts, nil
}

// IsDevelopment reports whether the service is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the service is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
