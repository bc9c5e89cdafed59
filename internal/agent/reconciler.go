// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/metrics"
	"github.com/haianhng/skymirror/pkg/slice"
)

// Metric source labels for reconciler-written rows.
const (
	ingestSourceReconcile = "reconcile"
	ingestSourceDirectory = "directory"
	ingestSourcePropagate = "propagate"
)

// reasonEnumeration tags rows mirrored from the authoritative block listing.
const reasonEnumeration = "api enumeration"

// Reconcile runs the periodic correctness loop until ctx is cancelled.
//
// Each cycle performs the fast pass (authoritative block enumeration), the
// primary-only propagation step, and, once per full-sync interval, the
// directory pass for the blocked_by direction. onPass, when non-nil, runs
// after every completed cycle; the orchestrator hooks the primary's list
// publisher there.
func (agent *Agent) Reconcile(ctx context.Context, onPass func(context.Context)) {
	var lastFull time.Time

	for {
		runID := uuid.Must(uuid.NewV7()).String()
		logger := agent.logger.With(slog.String("run_id", runID))

		agent.fastPass(ctx, logger)

		if agent.IsPrimary() {
			agent.propagate(ctx, logger)
		}

		if time.Since(lastFull) >= agent.options.FullSyncInterval {
			agent.directoryPass(ctx, logger)
			lastFull = time.Now()
		}

		if onPass != nil {
			onPass(ctx)
		}

		if sleep(ctx, agent.options.SyncInterval) != nil {
			logger.Info("reconciler stopped")
			return
		}
	}
}

// fastPass replaces the agent's blocking mirror with the authoritative
// enumeration from the service.
func (agent *Agent) fastPass(ctx context.Context, logger *slog.Logger) {
	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues("fast").Observe(time.Since(timer).Seconds())
	}()

	current, complete := agent.enumerateBlocks(ctx, logger)

	for _, blocked := range current {
		err := agent.deps.Blocks.Add(ctx, block.AddParams{
			DID:             blocked.DID,
			Handle:          blocked.Handle,
			Reason:          reasonEnumeration,
			SourceAccountID: agent.row.ID,
			Direction:       block.DirectionBlocking,
		})
		if err != nil {
			logger.Error("failed to upsert block row",
				slog.String("subject", blocked.DID),
				slog.Any("error", err),
			)
			complete = false
		} else {
			metrics.BlocksIngestedTotal.WithLabelValues(ingestSourceReconcile, string(block.DirectionBlocking)).Inc()
		}
	}

	// Pruning against a partial enumeration would delete live blocks.
	if !complete {
		logger.Warn("enumeration incomplete, skipping prune")
		return
	}

	currentDIDs := slice.Map(current, func(blocked atproto.BlockedView) string { return blocked.DID })

	pruned, err := agent.deps.Blocks.RemoveStale(ctx, agent.row.ID, block.DirectionBlocking, currentDIDs)
	if err != nil {
		logger.Error("failed to prune stale block rows", slog.Any("error", err))
		return
	}
	if pruned > 0 {
		metrics.BlocksPrunedTotal.Add(float64(pruned))
	}

	logger.Info("fast pass complete",
		slog.Int("current", len(current)),
		slog.Int64("pruned", pruned),
	)
}

// enumerateBlocks pages through the account's active blocks. complete is
// false when any page could not be fetched even after retries.
func (agent *Agent) enumerateBlocks(ctx context.Context, logger *slog.Logger) (all []atproto.BlockedView, complete bool) {
	cursor := ""

	for {
		var page *atproto.BlocksPage
		err := agent.fetchWithRetry(ctx, "get_blocks", func(callCtx context.Context) error {
			fetched, fetchErr := agent.client.GetBlocks(callCtx, constants.UpstreamPageLimit, cursor)
			if fetchErr != nil {
				return fetchErr
			}
			page = fetched
			return nil
		})
		if err != nil {
			logger.Error("failed to enumerate blocks", slog.Any("error", err))
			return all, false
		}

		all = append(all, page.Blocks...)
		if page.Cursor == "" {
			return all, true
		}
		cursor = page.Cursor
	}
}

// directoryPass mirrors the inverse relation (who blocks this account) from
// the external directory.
func (agent *Agent) directoryPass(ctx context.Context, logger *slog.Logger) {
	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues("directory").Observe(time.Since(timer).Seconds())
	}()

	total, err := agent.deps.Directory.Total(ctx, agent.row.DID)
	if err != nil {
		logger.Error("failed to fetch directory total", slog.Any("error", err))
		return
	}

	// A zero count is indistinguishable from a directory that has lost its
	// data, so it never justifies erasing the mirror.
	if total == 0 {
		logger.Info("directory reports no inverse blocks, leaving mirror untouched")
		return
	}

	pages := int((total + constants.DirectoryPageSize - 1) / constants.DirectoryPageSize)
	harvested := make([]string, 0, total)
	complete := true

	for page := 1; page <= pages; page++ {
		entries, err := agent.deps.Directory.Page(ctx, agent.row.DID, page)
		if err != nil {
			logger.Error("failed to fetch directory page",
				slog.Int("page", page),
				slog.Any("error", err),
			)
			complete = false
			break
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			err := agent.deps.Blocks.Add(ctx, block.AddParams{
				DID:             entry.DID,
				Reason:          ingestSourceDirectory,
				SourceAccountID: agent.row.ID,
				Direction:       block.DirectionBlockedBy,
			})
			if err != nil {
				logger.Error("failed to upsert blocked_by row",
					slog.String("subject", entry.DID),
					slog.Any("error", err),
				)
				complete = false
				continue
			}
			metrics.BlocksIngestedTotal.WithLabelValues(ingestSourceDirectory, string(block.DirectionBlockedBy)).Inc()
			harvested = append(harvested, entry.DID)
		}
	}

	// The directory maintains its count and its listing independently, so a
	// small disagreement is expected and only worth a warning.
	if int64(len(harvested)) != total {
		logger.Warn("directory count disagrees with paged listing",
			slog.Int64("reported_total", total),
			slog.Int("harvested", len(harvested)),
		)
	}

	if !complete {
		logger.Warn("directory enumeration incomplete, skipping prune")
		return
	}

	pruned, err := agent.deps.Blocks.RemoveStale(ctx, agent.row.ID, block.DirectionBlockedBy, harvested)
	if err != nil {
		logger.Error("failed to prune stale blocked_by rows", slog.Any("error", err))
		return
	}
	if pruned > 0 {
		metrics.BlocksPrunedTotal.Add(float64(pruned))
	}

	logger.Info("directory pass complete",
		slog.Int("harvested", len(harvested)),
		slog.Int64("pruned", pruned),
	)
}

// propagate mirrors secondary-account blocks into the primary's own repo and
// onto the moderation list.
func (agent *Agent) propagate(ctx context.Context, logger *slog.Logger) {
	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues("propagate").Observe(time.Since(timer).Seconds())
	}()

	pending, err := agent.deps.Blocks.UnsyncedForPrimary(ctx, agent.row.ID)
	if err != nil {
		logger.Error("failed to load unsynced blocks", slog.Any("error", err))
		return
	}

	synced := 0
	for _, unsynced := range pending {
		if ctx.Err() != nil {
			return
		}

		if !unsynced.AlreadyBlockedByPrimary {
			err := agent.deps.Governor.Execute(ctx, "create_block", func(callCtx context.Context) error {
				return agent.authorized(callCtx, func(authCtx context.Context) error {
					record := atproto.NewBlockRecord(unsynced.DID)
					_, createErr := agent.client.CreateRecord(authCtx, agent.row.DID, atproto.CollectionBlock, record)
					return createErr
				})
			})
			if err != nil && !apperr.IsConflict(err) {
				logger.Error("failed to propagate block to primary repo",
					slog.String("subject", unsynced.DID),
					slog.Any("error", err),
				)
				continue
			}
		}

		err := agent.deps.Blocks.Add(ctx, block.AddParams{
			DID:             unsynced.DID,
			Handle:          unsynced.Handle,
			Reason:          ingestSourcePropagate,
			SourceAccountID: agent.row.ID,
			Direction:       block.DirectionBlocking,
		})
		if err != nil {
			logger.Error("failed to record propagated block",
				slog.String("subject", unsynced.DID),
				slog.Any("error", err),
			)
			continue
		}
		metrics.BlocksIngestedTotal.WithLabelValues(ingestSourcePropagate, string(block.DirectionBlocking)).Inc()

		if agent.listURI != "" {
			agent.ensureListItem(ctx, unsynced.DID)
		}

		if err := agent.deps.Blocks.MarkSynced(ctx, unsynced.ID); err != nil {
			logger.Error("failed to mark block as synced",
				slog.Int64("block_id", unsynced.ID),
				slog.Any("error", err),
			)
			continue
		}
		synced++
	}

	if len(pending) > 0 {
		logger.Info("propagation complete",
			slog.Int("pending", len(pending)),
			slog.Int("synced", synced),
		)
	}
}

// fetchWithRetry runs a governed read, retrying transient failures with
// doubling backoff.
func (agent *Agent) fetchWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	delay := constants.DefaultRetryBaseDelay

	var err error
	for attempt := 0; attempt <= constants.DefaultRetryCount; attempt++ {
		err = agent.deps.Governor.Execute(ctx, operation, func(callCtx context.Context) error {
			return agent.authorized(callCtx, fn)
		})
		if err == nil || !apperr.IsTransient(err) {
			return err
		}

		if attempt < constants.DefaultRetryCount {
			agent.logger.Warn("transient upstream failure, retrying",
				slog.String("operation", operation),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if sleep(ctx, delay) != nil {
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return err
}
