// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package account

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haianhng/skymirror/internal/platform/dberr"
)

// PostgresStore implements the Store interface using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Register upserts an account by handle and returns its row.
//
// The DID replacement rule lives in the ON CONFLICT clause: a placeholder in
// the table yields to a real DID from the caller, but never the other way
// around.
func (store *PostgresStore) Register(ctx context.Context, handle, did string, isPrimary bool) (*Account, error) {
	const query = `
		INSERT INTO accounts (handle, did, is_primary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (handle) DO UPDATE SET
			did = CASE
				WHEN accounts.did LIKE 'pending:%' AND EXCLUDED.did NOT LIKE 'pending:%'
				THEN EXCLUDED.did
				ELSE accounts.did
			END,
			is_primary = EXCLUDED.is_primary,
			updated_at = EXCLUDED.updated_at
		RETURNING id, handle, did, is_primary, created_at, updated_at`

	row := &Account{}
	err := store.pool.QueryRow(ctx, query, handle, did, isPrimary, time.Now()).Scan(
		&row.ID,
		&row.Handle,
		&row.DID,
		&row.IsPrimary,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_store_register_failed: %w", err)
	}

	return row, nil
}

// GetPrimary returns the single primary account.
func (store *PostgresStore) GetPrimary(ctx context.Context) (*Account, error) {
	const query = `
		SELECT id, handle, did, is_primary, created_at, updated_at
		FROM accounts
		WHERE is_primary = TRUE`

	row := &Account{}
	err := store.pool.QueryRow(ctx, query).Scan(
		&row.ID,
		&row.Handle,
		&row.DID,
		&row.IsPrimary,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Primary account")
	}

	return row, nil
}

// List returns every configured account, primary first.
func (store *PostgresStore) List(ctx context.Context) ([]*Account, error) {
	const query = `
		SELECT id, handle, did, is_primary, created_at, updated_at
		FROM accounts
		ORDER BY is_primary DESC, id ASC`

	rows, err := store.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_store_list_failed: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		row := &Account{}
		if err := rows.Scan(&row.ID, &row.Handle, &row.DID, &row.IsPrimary, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres_account_store_list_scan_failed: %w", err)
		}
		accounts = append(accounts, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_account_store_list_rows_failed: %w", err)
	}

	return accounts, nil
}
