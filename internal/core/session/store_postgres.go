// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"fmt"

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

// Load returns the persisted session for handle.
func (store *PostgresStore) Load(ctx context.Context, handle string) (*Session, error) {
	const query = `
		SELECT handle, did, access_jwt, refresh_jwt, access_date, refresh_date
		FROM sessions
		WHERE handle = $1`

	session := &Session{}
	err := store.pool.QueryRow(ctx, query, handle).Scan(
		&session.Handle,
		&session.DID,
		&session.AccessJwt,
		&session.RefreshJwt,
		&session.AccessDate,
		&session.RefreshDate,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Session")
	}

	return session, nil
}

// Save persists the full credential set, replacing any prior one.
func (store *PostgresStore) Save(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO sessions (handle, did, access_jwt, refresh_jwt, access_date, refresh_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (handle) DO UPDATE SET
			did = EXCLUDED.did,
			access_jwt = EXCLUDED.access_jwt,
			refresh_jwt = EXCLUDED.refresh_jwt,
			access_date = EXCLUDED.access_date,
			refresh_date = EXCLUDED.refresh_date`

	_, err := store.pool.Exec(ctx, query,
		session.Handle,
		session.DID,
		session.AccessJwt,
		session.RefreshJwt,
		session.AccessDate,
		session.RefreshDate,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_store_save_failed: %w", err)
	}

	return nil
}

// Delete discards the persisted session for handle.
func (store *PostgresStore) Delete(ctx context.Context, handle string) error {
	const query = "DELETE FROM sessions WHERE handle = $1"

	_, err := store.pool.Exec(ctx, query, handle)
	if err != nil {
		return fmt.Errorf("postgres_session_store_delete_failed: %w", err)
	}

	return nil
}
