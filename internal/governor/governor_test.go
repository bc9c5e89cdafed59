// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package governor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_RetriesRateLimitWithDoublingBackoff(t *testing.T) {
	base := 20 * time.Millisecond
	g := New(Options{
		MinInterval:    time.Millisecond,
		WindowLimit:    100,
		WindowLength:   time.Minute,
		RetryCount:     3,
		RetryBaseDelay: base,
	}, discardLogger())

	calls := 0
	start := time.Now()
	err := g.Execute(context.Background(), "create_record", func(context.Context) error {
		calls++
		if calls <= 3 {
			return apperr.RateLimited("slow down", nil)
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	// Backoff sleeps: base + 2*base + 4*base.
	assert.GreaterOrEqual(t, elapsed, 7*base)
}

func TestExecute_SurfacesRateLimitAfterRetriesExhausted(t *testing.T) {
	g := New(Options{
		MinInterval:    time.Millisecond,
		WindowLimit:    100,
		WindowLength:   time.Minute,
		RetryCount:     2,
		RetryBaseDelay: time.Millisecond,
	}, discardLogger())

	calls := 0
	err := g.Execute(context.Background(), "create_record", func(context.Context) error {
		calls++
		return apperr.RateLimited("still limited", nil)
	})

	require.Error(t, err)
	assert.True(t, apperr.IsRateLimited(err))
	assert.Equal(t, 3, calls)
}

func TestExecute_DoesNotRetryOtherErrors(t *testing.T) {
	g := New(Options{
		MinInterval:    time.Millisecond,
		WindowLimit:    100,
		WindowLength:   time.Minute,
		RetryCount:     3,
		RetryBaseDelay: time.Second,
	}, discardLogger())

	boom := errors.New("boom")
	calls := 0
	err := g.Execute(context.Background(), "create_record", func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestExecute_WindowCapBlocksUntilReset(t *testing.T) {
	window := 50 * time.Millisecond
	g := New(Options{
		MinInterval:    time.Microsecond,
		WindowLimit:    2,
		WindowLength:   window,
		RetryCount:     0,
		RetryBaseDelay: time.Millisecond,
	}, discardLogger())

	noop := func(context.Context) error { return nil }

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Execute(context.Background(), "noop", noop))
	}
	elapsed := time.Since(start)

	// The third call must wait for the window to roll over.
	assert.GreaterOrEqual(t, elapsed, window/2)
}

func TestExecute_CancelledContextAbortsBackoff(t *testing.T) {
	g := New(Options{
		MinInterval:    time.Millisecond,
		WindowLimit:    100,
		WindowLength:   time.Minute,
		RetryCount:     3,
		RetryBaseDelay: time.Hour,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := g.Execute(ctx, "create_record", func(context.Context) error {
		return apperr.RateLimited("slow down", nil)
	})

	require.ErrorIs(t, err, context.Canceled)
}
