// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
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

// Save records seq as the last processed sequence for did.
//
// GREATEST in the conflict clause enforces monotonicity even if a lagging
// writer races a fresh one.
func (store *PostgresStore) Save(ctx context.Context, did string, seq int64) error {
	const query = `
		INSERT INTO firehose_cursors (did, seq)
		VALUES ($1, $2)
		ON CONFLICT (did) DO UPDATE SET
			seq = GREATEST(firehose_cursors.seq, EXCLUDED.seq)`

	_, err := store.pool.Exec(ctx, query, did, seq)
	if err != nil {
		return fmt.Errorf("postgres_cursor_store_save_failed: %w", err)
	}

	return nil
}

// Load returns the last checkpoint for did.
func (store *PostgresStore) Load(ctx context.Context, did string) (int64, bool, error) {
	const query = "SELECT seq FROM firehose_cursors WHERE did = $1"

	var seq int64
	err := store.pool.QueryRow(ctx, query, did).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("postgres_cursor_store_load_failed: %w", err)
	}

	return seq, true, nil
}
