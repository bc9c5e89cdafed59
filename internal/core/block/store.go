// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package block

import "context"

// Store defines the data access contract for mirrored block records.
//
// # Implementations
//
// The canonical implementation is PostgreSQL ([PostgresStore]); tests use an
// in-memory substitute.
type Store interface {
	// Add idempotently upserts a block row keyed by (did, source, direction).
	//
	// Re-observation refreshes last_seen. The insert silently no-ops when the
	// subject DID belongs to a managed account (self-block whitelist); the
	// guard and the upsert execute as one statement so no ingest path can
	// race past it.
	Add(ctx context.Context, params AddParams) error

	// RemoveStale deletes rows with the given (source, direction) whose DID
	// is not in currentDIDs, returning the number of rows pruned.
	RemoveStale(ctx context.Context, sourceAccountID int64, direction Direction, currentDIDs []string) (int64, error)

	// UnsyncedForPrimary returns blocking rows from non-primary sources not
	// yet mirrored by the primary, each annotated with whether the primary
	// already blocks the subject.
	UnsyncedForPrimary(ctx context.Context, primaryAccountID int64) ([]*UnsyncedBlock, error)

	// MarkSynced flags the row as mirrored by the primary.
	MarkSynced(ctx context.Context, blockID int64) error

	// DesiredListDIDs returns the union of all blocking and blocked_by
	// subjects across managed accounts, minus the managed DIDs themselves.
	// This is the target membership of the published moderation list.
	DesiredListDIDs(ctx context.Context) ([]string, error)
}
