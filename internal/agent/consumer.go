// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/metrics"
)

// ingestSourceFirehose tags block rows written by the live consumer.
const ingestSourceFirehose = "firehose"

// commitStream is the pull iterator the consumer drains; satisfied by
// [atproto.Subscription].
type commitStream interface {
	Next(ctx context.Context) (*atproto.Frame, error)
	Close() error
}

// Consume runs the supervised commit-stream loop until ctx is cancelled.
//
// Stream and store failures never kill the loop: the iteration is torn down,
// logged, and restarted after [constants.SupervisorRestartDelay] from the
// last persisted checkpoint.
func (agent *Agent) Consume(ctx context.Context) {
	for {
		err := agent.consumeOnce(ctx)
		if ctx.Err() != nil {
			agent.logger.Info("commit consumer stopped")
			return
		}

		metrics.FirehoseReconnectsTotal.Inc()
		agent.logger.Error("commit stream iteration failed, restarting",
			slog.Any("error", err),
			slog.Duration("restart_delay", constants.SupervisorRestartDelay),
		)

		if sleep(ctx, constants.SupervisorRestartDelay) != nil {
			return
		}
	}
}

// consumeOnce subscribes from the last checkpoint and processes frames until
// the stream or a checkpoint write fails.
func (agent *Agent) consumeOnce(ctx context.Context) error {
	streamCursor := atproto.CursorLiveEdge
	if seq, found, err := agent.deps.Cursors.Load(ctx, agent.row.DID); err != nil {
		return err
	} else if found {
		streamCursor = seq
	}

	subscription, err := agent.subscribe(ctx, agent.options.FirehoseURL, streamCursor)
	if err != nil {
		return err
	}
	defer subscription.Close()

	agent.logger.Info("commit stream connected",
		slog.Int64("cursor", streamCursor),
	)

	for {
		frame, err := subscription.Next(ctx)
		if err != nil {
			return err
		}

		metrics.FirehoseFramesTotal.WithLabelValues(frame.Type).Inc()

		if err := agent.handleFrame(ctx, frame); err != nil {
			return err
		}

		// Checkpoint after every handled frame, including skipped ones, so a
		// restart never replays what was already processed.
		if seq := frame.Seq(); seq >= 0 {
			if err := agent.deps.Cursors.Save(ctx, agent.row.DID, seq); err != nil {
				return err
			}
		}
	}
}

// handleFrame dispatches one decoded stream frame.
//
// Only terminal conditions return an error; malformed or irrelevant frames
// are skipped so one poisoned commit cannot wedge the stream.
func (agent *Agent) handleFrame(ctx context.Context, frame *atproto.Frame) error {
	switch frame.Type {
	case atproto.FrameCommit:
		agent.handleCommit(ctx, frame.Commit)
		return nil

	case atproto.FrameInfo:
		agent.logger.Info("stream info frame",
			slog.String("name", frame.Info.Name),
			slog.String("message", frame.Info.Message),
		)
		return nil

	case atproto.FrameError:
		return apperr.Transient("stream error frame: "+frame.Err.Error, nil)

	default:
		// Unknown lexicon messages: checkpoint past them.
		return nil
	}
}

// handleCommit ingests the block operations of one repository commit.
func (agent *Agent) handleCommit(ctx context.Context, commit *atproto.CommitEvent) {
	// The relay streams every repository; only this agent's own commits
	// matter here.
	if commit.Repo != agent.row.DID {
		return
	}

	if commit.TooBig {
		agent.logger.Warn("oversized commit without inline records, deferring to reconciler",
			slog.Int64("seq", commit.Seq),
		)
		return
	}

	var bundle atproto.BlockBundle

	for _, op := range commit.Ops {
		if op.Collection() != atproto.CollectionBlock {
			continue
		}

		switch op.Action {
		case "create", "update":
			if bundle == nil {
				parsed, err := atproto.ReadBundle(commit.Blocks)
				if err != nil {
					agent.logger.Warn("unreadable record bundle, skipping commit",
						slog.Int64("seq", commit.Seq),
						slog.Any("error", err),
					)
					return
				}
				bundle = parsed
			}
			agent.ingestBlockOp(ctx, commit.Seq, op, bundle)

		case "delete":
			// The record is gone and its key does not encode the subject;
			// the reconciler's enumeration prunes the row.
			agent.logger.Debug("block deletion observed, reconciler will prune",
				slog.String("path", op.Path),
			)
		}
	}
}

// ingestBlockOp decodes one created block record and mirrors it.
func (agent *Agent) ingestBlockOp(ctx context.Context, seq int64, op atproto.RepoOp, bundle atproto.BlockBundle) {
	data, found := bundle.Lookup(op.CID)
	if !found {
		agent.logger.Warn("op record missing from bundle, skipping",
			slog.Int64("seq", seq),
			slog.String("path", op.Path),
		)
		return
	}

	record, err := atproto.DecodeBlockRecord(data)
	if err != nil {
		agent.logger.Warn("undecodable block record, skipping",
			slog.Int64("seq", seq),
			slog.String("path", op.Path),
			slog.Any("error", err),
		)
		return
	}

	err = agent.deps.Blocks.Add(ctx, block.AddParams{
		DID:             record.Subject,
		Reason:          fmt.Sprintf("firehose seq %d", seq),
		SourceAccountID: agent.row.ID,
		Direction:       block.DirectionBlocking,
	})
	if err != nil {
		agent.logger.Error("failed to mirror block row",
			slog.Int64("seq", seq),
			slog.String("subject", record.Subject),
			slog.Any("error", err),
		)
		return
	}

	metrics.BlocksIngestedTotal.WithLabelValues(ingestSourceFirehose, string(block.DirectionBlocking)).Inc()
	agent.logger.Info("block mirrored from stream",
		slog.Int64("seq", seq),
		slog.String("subject", record.Subject),
	)

	// The primary keeps the published list warm between publisher runs.
	if agent.IsPrimary() && agent.listURI != "" {
		agent.ensureListItem(ctx, record.Subject)
	}
}

// ensureListItem places subject on the moderation list, tolerating the
// membership already existing.
func (agent *Agent) ensureListItem(ctx context.Context, subject string) {
	err := agent.deps.Governor.Execute(ctx, "create_listitem", func(callCtx context.Context) error {
		return agent.authorized(callCtx, func(authCtx context.Context) error {
			record := atproto.NewListItemRecord(subject, agent.listURI)
			_, createErr := agent.client.CreateRecord(authCtx, agent.row.DID, atproto.CollectionListItem, record)
			return createErr
		})
	})

	switch {
	case err == nil:
		metrics.ListItemsAddedTotal.Inc()
	case apperr.IsConflict(err):
		// Already on the list.
	default:
		agent.logger.Error("failed to add subject to moderation list",
			slog.String("subject", subject),
			slog.Any("error", err),
		)
	}
}
