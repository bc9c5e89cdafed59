// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package modlist

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

// Register upserts a list row by URI and returns it.
func (store *PostgresStore) Register(ctx context.Context, uri, cid, ownerDID, name string) (*List, error) {
	const query = `
		INSERT INTO mod_lists (list_uri, list_cid, owner_did, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (list_uri) DO UPDATE SET
			list_cid = EXCLUDED.list_cid,
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
		RETURNING id, list_uri, list_cid, owner_did, name, created_at, updated_at`

	row := &List{}
	err := store.pool.QueryRow(ctx, query, uri, cid, ownerDID, name, time.Now()).Scan(
		&row.ID,
		&row.URI,
		&row.CID,
		&row.OwnerDID,
		&row.Name,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres_modlist_store_register_failed: %w", err)
	}

	return row, nil
}

// GetByOwner returns the canonical list for the given owner DID.
func (store *PostgresStore) GetByOwner(ctx context.Context, ownerDID string) (*List, error) {
	const query = `
		SELECT id, list_uri, list_cid, owner_did, name, created_at, updated_at
		FROM mod_lists
		WHERE owner_did = $1
		ORDER BY created_at ASC
		LIMIT 1`

	row := &List{}
	err := store.pool.QueryRow(ctx, query, ownerDID).Scan(
		&row.ID,
		&row.URI,
		&row.CID,
		&row.OwnerDID,
		&row.Name,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Moderation list")
	}

	return row, nil
}

// DeleteByURI removes a list row.
func (store *PostgresStore) DeleteByURI(ctx context.Context, uri string) error {
	const query = "DELETE FROM mod_lists WHERE list_uri = $1"

	_, err := store.pool.Exec(ctx, query, uri)
	if err != nil {
		return fmt.Errorf("postgres_modlist_store_delete_failed: %w", err)
	}

	return nil
}
