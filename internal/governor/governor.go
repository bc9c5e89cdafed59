// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package governor throttles every governed upstream call behind a shared
rate budget.

The AT Protocol service enforces a rolling write budget (about 5000 points
per 5 minutes, 35000 per day) and replies 429 when it is exceeded. The
[Governor] wraps each call with three layers of protection:

  - a minimum interval between calls (token bucket),
  - a hard cap of calls per rolling window, sleeping out the remainder of
    the window once the cap is hit,
  - bounded retries with doubling backoff when the service still says 429.

All agents of one process share a single Governor, so the budget is global
to the process rather than per account.
*/
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/metrics"
)

// Options configures the budget layers.
type Options struct {
	// MinInterval is the smallest spacing between any two governed calls.
	MinInterval time.Duration

	// WindowLimit is the number of calls allowed per WindowLength.
	WindowLimit int

	// WindowLength is the length of the rolling budget window.
	WindowLength time.Duration

	// RetryCount is how many times a rate-limited call is retried before
	// the 429 is surfaced to the caller.
	RetryCount int

	// RetryBaseDelay is the first backoff step; each retry doubles it.
	RetryBaseDelay time.Duration
}

// Governor serializes upstream calls through the configured budget.
type Governor struct {
	options Options
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
}

// New creates a Governor with the given budget options.
func New(options Options, logger *slog.Logger) *Governor {
	return &Governor{
		options: options,
		limiter: rate.NewLimiter(rate.Every(options.MinInterval), 1),
		logger:  logger,
	}
}

// Execute runs fn under the budget.
//
// fn's error is returned unchanged except for rate-limit rejections, which
// are retried up to RetryCount times with doubling backoff; the final 429
// is surfaced if all retries are consumed. Cancellation of ctx aborts any
// throttle or backoff sleep immediately.
func (governor *Governor) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	delay := governor.options.RetryBaseDelay

	for attempt := 0; ; attempt++ {
		if err := governor.admit(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsRateLimited(err) || attempt >= governor.options.RetryCount {
			return err
		}

		metrics.GovernorRetriesTotal.Inc()
		governor.logger.Warn("upstream rate limited, backing off",
			slog.String("operation", operation),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}
}

// admit blocks until the call fits both the rolling window cap and the
// minimum-interval limiter.
func (governor *Governor) admit(ctx context.Context) error {
	if err := governor.admitWindow(ctx); err != nil {
		return err
	}

	start := time.Now()
	if err := governor.limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > 0 {
		metrics.GovernorThrottleSeconds.Add(waited.Seconds())
	}

	return nil
}

// admitWindow accounts the call against the rolling window, sleeping out
// the window remainder when the cap is reached.
func (governor *Governor) admitWindow(ctx context.Context) error {
	for {
		governor.mu.Lock()

		now := time.Now()
		if governor.windowStart.IsZero() || now.Sub(governor.windowStart) >= governor.options.WindowLength {
			governor.windowStart = now
			governor.windowCount = 0
		}

		if governor.windowCount < governor.options.WindowLimit {
			governor.windowCount++
			governor.mu.Unlock()
			return nil
		}

		remaining := governor.options.WindowLength - now.Sub(governor.windowStart)
		governor.mu.Unlock()

		governor.logger.Info("window budget exhausted, waiting for reset",
			slog.Duration("remaining", remaining),
		)
		metrics.GovernorThrottleSeconds.Add(remaining.Seconds())

		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
