// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"log/slog"
	"sort"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/constants"
)

// EnsureList makes the primary own exactly one moderation list and records
// it as canonical.
//
// Resolution order: adopt the stored list if it still exists upstream; adopt
// a single surviving upstream moderation list; collapse duplicates onto the
// oldest one; create a fresh list only when none exists. The surviving
// list's name and description are realigned when they have drifted.
func (agent *Agent) EnsureList(ctx context.Context) error {
	if !agent.IsPrimary() {
		return nil
	}

	remote, err := agent.enumerateModerationLists(ctx)
	if err != nil {
		return err
	}

	stored, err := agent.deps.Lists.GetByOwner(ctx, agent.row.DID)
	if err != nil && !apperr.IsNotFound(err) {
		return err
	}

	var keep *atproto.ListView

	if stored != nil {
		for index := range remote {
			if remote[index].URI == stored.URI {
				keep = &remote[index]
				break
			}
		}
		if keep == nil {
			agent.logger.Warn("stored moderation list no longer exists upstream",
				slog.String("uri", stored.URI),
			)
			// The dead row would shadow whichever list is adopted next.
			if err := agent.deps.Lists.DeleteByURI(ctx, stored.URI); err != nil {
				agent.logger.Error("failed to drop stale list registration",
					slog.String("uri", stored.URI),
					slog.Any("error", err),
				)
			}
		}
	}

	if keep == nil && len(remote) > 0 {
		// Oldest list wins; later duplicates are collapsed.
		sort.Slice(remote, func(i, j int) bool {
			return remote[i].IndexedAt.Before(remote[j].IndexedAt)
		})
		keep = &remote[0]
	}

	if keep != nil {
		agent.collapseDuplicates(ctx, remote, keep.URI)

		if keep.Name != agent.options.ListName {
			if err := agent.realignList(ctx, keep.URI); err != nil {
				agent.logger.Error("failed to realign list presentation",
					slog.String("uri", keep.URI),
					slog.Any("error", err),
				)
			}
		}

		if _, err := agent.deps.Lists.Register(ctx, keep.URI, keep.CID, agent.row.DID, agent.options.ListName); err != nil {
			return err
		}
		agent.listURI = keep.URI

		agent.logger.Info("moderation list adopted",
			slog.String("uri", keep.URI),
		)
		return nil
	}

	return agent.createList(ctx)
}

// enumerateModerationLists pages through the primary's lists, keeping only
// those declared as moderation lists.
func (agent *Agent) enumerateModerationLists(ctx context.Context) ([]atproto.ListView, error) {
	var moderation []atproto.ListView
	cursor := ""

	for {
		var page *atproto.ListsPage
		err := agent.fetchWithRetry(ctx, "get_lists", func(callCtx context.Context) error {
			fetched, fetchErr := agent.client.GetLists(callCtx, agent.row.DID, constants.UpstreamPageLimit, cursor)
			if fetchErr != nil {
				return fetchErr
			}
			page = fetched
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, view := range page.Lists {
			if view.Purpose == atproto.ListPurposeModeration {
				moderation = append(moderation, view)
			}
		}

		if page.Cursor == "" {
			return moderation, nil
		}
		cursor = page.Cursor
	}
}

// collapseDuplicates deletes every moderation list other than keepURI.
func (agent *Agent) collapseDuplicates(ctx context.Context, remote []atproto.ListView, keepURI string) {
	for _, view := range remote {
		if view.URI == keepURI {
			continue
		}

		rkey, err := atproto.RecordKeyFromURI(view.URI)
		if err != nil {
			agent.logger.Warn("unparseable duplicate list uri, skipping",
				slog.String("uri", view.URI),
			)
			continue
		}

		err = agent.deps.Governor.Execute(ctx, "delete_list", func(callCtx context.Context) error {
			return agent.authorized(callCtx, func(authCtx context.Context) error {
				return agent.client.DeleteRecord(authCtx, agent.row.DID, atproto.CollectionList, rkey)
			})
		})
		if err != nil && !apperr.IsNotFound(err) {
			agent.logger.Error("failed to delete duplicate moderation list",
				slog.String("uri", view.URI),
				slog.Any("error", err),
			)
			continue
		}

		// Its stored registration, if any, must go too.
		if err := agent.deps.Lists.DeleteByURI(ctx, view.URI); err != nil {
			agent.logger.Error("failed to drop duplicate list registration",
				slog.String("uri", view.URI),
				slog.Any("error", err),
			)
		}

		agent.logger.Info("duplicate moderation list removed",
			slog.String("uri", view.URI),
		)
	}
}

// realignList rewrites the list declaration with the configured presentation.
func (agent *Agent) realignList(ctx context.Context, listURI string) error {
	rkey, err := atproto.RecordKeyFromURI(listURI)
	if err != nil {
		return err
	}

	return agent.deps.Governor.Execute(ctx, "put_list", func(callCtx context.Context) error {
		return agent.authorized(callCtx, func(authCtx context.Context) error {
			record := atproto.NewModerationListRecord(agent.options.ListName, agent.options.ListDescription)
			_, putErr := agent.client.PutRecord(authCtx, agent.row.DID, atproto.CollectionList, rkey, record)
			return putErr
		})
	})
}

// createList declares a fresh moderation list and registers it as canonical.
func (agent *Agent) createList(ctx context.Context) error {
	var ref *atproto.RecordRef
	err := agent.deps.Governor.Execute(ctx, "create_list", func(callCtx context.Context) error {
		return agent.authorized(callCtx, func(authCtx context.Context) error {
			record := atproto.NewModerationListRecord(agent.options.ListName, agent.options.ListDescription)
			created, createErr := agent.client.CreateRecord(authCtx, agent.row.DID, atproto.CollectionList, record)
			if createErr != nil {
				return createErr
			}
			ref = created
			return nil
		})
	})
	if err != nil {
		return err
	}

	if _, err := agent.deps.Lists.Register(ctx, ref.URI, ref.CID, agent.row.DID, agent.options.ListName); err != nil {
		return err
	}
	agent.listURI = ref.URI

	agent.logger.Info("moderation list created",
		slog.String("uri", ref.URI),
	)
	return nil
}
