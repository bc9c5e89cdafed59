// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/constants"
	"github.com/haianhng/skymirror/internal/platform/metrics"
	"github.com/haianhng/skymirror/pkg/slice"
)

// Publish converges the moderation list's membership onto the desired set:
// the union of every mirrored block subject across all managed accounts.
//
// Additions run in paced batches so a large backlog cannot burn the write
// window; removals are suppressed entirely when the deployment opts into
// additive-only publishing.
func (agent *Agent) Publish(ctx context.Context) {
	if !agent.IsPrimary() || agent.listURI == "" {
		return
	}

	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.WithLabelValues("publish").Observe(time.Since(timer).Seconds())
	}()

	desired, err := agent.deps.Blocks.DesiredListDIDs(ctx)
	if err != nil {
		agent.logger.Error("failed to compute desired list membership", slog.Any("error", err))
		return
	}

	members, complete := agent.enumerateListItems(ctx)
	if !complete {
		// Diffing against a partial membership would re-add or re-remove
		// entries already settled.
		agent.logger.Warn("list enumeration incomplete, skipping publish cycle")
		return
	}

	currentDIDs := make([]string, 0, len(members))
	for did := range members {
		currentDIDs = append(currentDIDs, did)
	}

	toAdd := slice.Difference(desired, currentDIDs)
	toRemove := slice.Difference(currentDIDs, desired)

	agent.logger.Info("publish cycle computed",
		slog.Int("desired", len(desired)),
		slog.Int("current", len(currentDIDs)),
		slog.Int("to_add", len(toAdd)),
		slog.Int("to_remove", len(toRemove)),
	)

	agent.addListItems(ctx, toAdd)

	if agent.options.PublishAdditiveOnly {
		if len(toRemove) > 0 {
			agent.logger.Info("additive-only mode, keeping surplus members",
				slog.Int("surplus", len(toRemove)),
			)
		}
		return
	}

	agent.removeListItems(ctx, members, toRemove)
}

// enumerateListItems pages through the list's current membership, mapping
// subject DID to the membership record's URI.
func (agent *Agent) enumerateListItems(ctx context.Context) (map[string]string, bool) {
	members := make(map[string]string)
	cursor := ""

	for {
		var page *atproto.ListPage
		err := agent.fetchWithRetry(ctx, "get_list", func(callCtx context.Context) error {
			fetched, fetchErr := agent.client.GetList(callCtx, agent.listURI, constants.UpstreamPageLimit, cursor)
			if fetchErr != nil {
				return fetchErr
			}
			page = fetched
			return nil
		})
		if err != nil {
			agent.logger.Error("failed to enumerate list membership", slog.Any("error", err))
			return members, false
		}

		for _, item := range page.Items {
			members[item.SubjectDID] = item.URI
		}

		if page.Cursor == "" {
			return members, true
		}
		cursor = page.Cursor

		if sleep(ctx, agent.options.PublishPagePause) != nil {
			return members, false
		}
	}
}

// addListItems creates membership records in paced batches.
func (agent *Agent) addListItems(ctx context.Context, subjects []string) {
	batches := slice.Chunk(subjects, agent.options.PublishBatchSize)

	for index, batch := range batches {
		for _, subject := range batch {
			if ctx.Err() != nil {
				return
			}
			agent.ensureListItem(ctx, subject)
		}

		if index < len(batches)-1 {
			if sleep(ctx, agent.options.PublishBatchPause) != nil {
				return
			}
		}
	}
}

// removeListItems deletes membership records for subjects no longer desired.
func (agent *Agent) removeListItems(ctx context.Context, members map[string]string, subjects []string) {
	for _, subject := range subjects {
		if ctx.Err() != nil {
			return
		}

		itemURI := members[subject]
		rkey, err := atproto.RecordKeyFromURI(itemURI)
		if err != nil {
			agent.logger.Warn("unparseable membership uri, skipping removal",
				slog.String("uri", itemURI),
				slog.Any("error", err),
			)
			continue
		}

		err = agent.deps.Governor.Execute(ctx, "delete_listitem", func(callCtx context.Context) error {
			return agent.authorized(callCtx, func(authCtx context.Context) error {
				return agent.client.DeleteRecord(authCtx, agent.row.DID, atproto.CollectionListItem, rkey)
			})
		})
		switch {
		case err == nil, apperr.IsNotFound(err):
			metrics.ListItemsRemovedTotal.Inc()
		default:
			agent.logger.Error("failed to remove subject from moderation list",
				slog.String("subject", subject),
				slog.Any("error", err),
			)
		}
	}
}
