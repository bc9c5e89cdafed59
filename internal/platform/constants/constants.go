// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, upstream service budgets, and cross-cutting keys
that are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the diagnostics HTTP server.
  - Upstream Budgets: write-rate windows and login spacing for the AT Protocol service.
  - Session Policy: token lifetimes that keep full logins rare.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "skymirror"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Upstream Budgets
//
// The AT Protocol service enforces per-5-minute and per-day write budgets.
// Exceeding the daily budget can lock an account out for 24 hours, so the
// defaults below stay comfortably inside the documented limits.

const (
	// DefaultRequestInterval is the minimum spacing between governed upstream calls.
	DefaultRequestInterval = 1 * time.Second

	// DefaultWindowLimit is the number of governed calls allowed per window.
	DefaultWindowLimit = 2000

	// DefaultWindowLength is the length of the rolling budget window.
	DefaultWindowLength = 5 * time.Minute

	// DefaultRetryCount is how many times a rate-limited call is retried.
	DefaultRetryCount = 3

	// DefaultRetryBaseDelay is the first backoff step; it doubles per retry.
	DefaultRetryBaseDelay = 30 * time.Second

	// DefaultLoginSpacing separates initial logins across accounts. The
	// service allows roughly ten logins per account per day.
	DefaultLoginSpacing = 30 * time.Second
)

// # Session Policy

const (
	// DefaultAccessTokenTTL is how long an access token is trusted before a
	// refresh is attempted.
	DefaultAccessTokenTTL = 115 * time.Minute

	// DefaultRefreshTokenTTL is how long a refresh token is trusted before a
	// full login is forced. Refresh tokens live ~60 days upstream; 55 keeps
	// a safety margin.
	DefaultRefreshTokenTTL = 55 * 24 * time.Hour
)

// # Reconciliation & Publishing

const (
	// DefaultPrimarySyncInterval is the fast-pass period for the primary agent.
	DefaultPrimarySyncInterval = 15 * time.Minute

	// DefaultSecondarySyncInterval is the fast-pass period for secondary agents.
	DefaultSecondarySyncInterval = 60 * time.Minute

	// DefaultFullSyncInterval is the period of the directory (who-blocks-me) pass.
	DefaultFullSyncInterval = 24 * time.Hour

	// DefaultPublishBatchSize is how many list additions are issued per batch.
	DefaultPublishBatchSize = 50

	// DefaultPublishBatchPause is the pause between publish batches, giving
	// the 5-minute write window room to recover.
	DefaultPublishBatchPause = 10 * time.Second

	// DefaultPublishPagePause is the pause between list-membership page fetches.
	DefaultPublishPagePause = 100 * time.Millisecond

	// SupervisorRestartDelay is how long a supervised loop sleeps after a
	// store or stream failure before restarting its iteration.
	SupervisorRestartDelay = 60 * time.Second

	// ConsumerJoinTimeout bounds the wait for commit consumers on shutdown.
	ConsumerJoinTimeout = 10 * time.Second

	// ReconcilerJoinTimeout bounds the wait for reconcilers on shutdown.
	ReconcilerJoinTimeout = 5 * time.Second
)

// # Paging

const (
	// UpstreamPageLimit is the page size for getBlocks/getList enumeration.
	UpstreamPageLimit = 100

	// DirectoryPageSize is the fixed page size of the external directory API.
	DirectoryPageSize = 100
)

// # Session Storage

const (
	// SessionBackendDatabase stores sessions in a Postgres table.
	SessionBackendDatabase = "database"

	// SessionBackendFile stores sessions as per-handle JSON files.
	SessionBackendFile = "file"

	// SessionBackendRedis stores sessions in Redis with a TTL.
	SessionBackendRedis = "redis"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixSession = "atp:session:"
)

// # HTTP Headers

const (
	HeaderXRequestID = "X-Request-ID"
)
