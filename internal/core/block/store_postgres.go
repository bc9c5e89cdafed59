// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package block

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Add idempotently upserts a block row keyed by (did, source, direction).
//
// The NOT EXISTS guard against the accounts table and the upsert run as a
// single statement, so the self-block whitelist holds under concurrent
// ingest without an explicit transaction.
func (store *PostgresStore) Add(ctx context.Context, params AddParams) error {
	const query = `
		INSERT INTO blocked_accounts (
			did, handle, reason, source_account_id, block_type, first_seen, last_seen, is_synced
		)
		SELECT $1, $2, $3, $4, $5, $6, $6, FALSE
		WHERE NOT EXISTS (
			SELECT 1 FROM accounts WHERE accounts.did = $1
		)
		ON CONFLICT (did, source_account_id, block_type) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			handle = CASE
				WHEN EXCLUDED.handle <> '' THEN EXCLUDED.handle
				ELSE blocked_accounts.handle
			END`

	_, err := store.pool.Exec(ctx, query,
		params.DID,
		params.Handle,
		params.Reason,
		params.SourceAccountID,
		string(params.Direction),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("postgres_block_store_add_failed: %w", err)
	}

	return nil
}

// RemoveStale deletes rows with the given (source, direction) whose DID is
// not in currentDIDs.
func (store *PostgresStore) RemoveStale(ctx context.Context, sourceAccountID int64, direction Direction, currentDIDs []string) (int64, error) {
	const query = `
		DELETE FROM blocked_accounts
		WHERE source_account_id = $1
		  AND block_type = $2
		  AND NOT (did = ANY($3))`

	// A nil slice must still prune everything for this (source, direction).
	if currentDIDs == nil {
		currentDIDs = []string{}
	}

	tag, err := store.pool.Exec(ctx, query, sourceAccountID, string(direction), currentDIDs)
	if err != nil {
		return 0, fmt.Errorf("postgres_block_store_remove_stale_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// UnsyncedForPrimary returns blocking rows from non-primary sources not yet
// mirrored by the primary.
func (store *PostgresStore) UnsyncedForPrimary(ctx context.Context, primaryAccountID int64) ([]*UnsyncedBlock, error) {
	const query = `
		SELECT
			b.id, b.did, b.handle, b.reason, b.source_account_id, b.block_type,
			b.first_seen, b.last_seen, b.is_synced,
			EXISTS (
				SELECT 1 FROM blocked_accounts p
				WHERE p.did = b.did
				  AND p.source_account_id = $1
				  AND p.block_type = 'blocking'
			) AS already_blocked_by_primary
		FROM blocked_accounts b
		WHERE b.block_type = 'blocking'
		  AND b.source_account_id <> $1
		  AND b.is_synced = FALSE
		ORDER BY b.id`

	rows, err := store.pool.Query(ctx, query, primaryAccountID)
	if err != nil {
		return nil, fmt.Errorf("postgres_block_store_unsynced_failed: %w", err)
	}
	defer rows.Close()

	var result []*UnsyncedBlock
	for rows.Next() {
		row := &UnsyncedBlock{}
		var direction string
		err := rows.Scan(
			&row.ID,
			&row.DID,
			&row.Handle,
			&row.Reason,
			&row.SourceAccountID,
			&direction,
			&row.FirstSeen,
			&row.LastSeen,
			&row.SyncedByPrimary,
			&row.AlreadyBlockedByPrimary,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_block_store_unsynced_scan_failed: %w", err)
		}
		row.Direction = Direction(direction)
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_block_store_unsynced_rows_failed: %w", err)
	}

	return result, nil
}

// MarkSynced flags the row as mirrored by the primary.
func (store *PostgresStore) MarkSynced(ctx context.Context, blockID int64) error {
	const query = "UPDATE blocked_accounts SET is_synced = TRUE WHERE id = $1"

	_, err := store.pool.Exec(ctx, query, blockID)
	if err != nil {
		return fmt.Errorf("postgres_block_store_mark_synced_failed: %w", err)
	}

	return nil
}

// DesiredListDIDs returns the target membership of the published list.
func (store *PostgresStore) DesiredListDIDs(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT b.did
		FROM blocked_accounts b
		WHERE NOT EXISTS (
			SELECT 1 FROM accounts a WHERE a.did = b.did
		)
		ORDER BY b.did`

	rows, err := store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_block_store_desired_failed: %w", err)
	}
	defer rows.Close()

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("postgres_block_store_desired_scan_failed: %w", err)
		}
		dids = append(dids, did)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_block_store_desired_rows_failed: %w", err)
	}

	return dids, nil
}
