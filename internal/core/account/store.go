// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package account

import "context"

// Store defines the data access contract for the managed-account roster.
//
// # Review Process
//
// This interface is placed in a separate file from account.go so entity
// changes and storage-contract changes can be reviewed independently.
//
// # Implementations
//
// The canonical implementation is PostgreSQL ([PostgresStore]); tests use an
// in-memory substitute.
type Store interface {
	// Register upserts an account by handle and returns its row.
	//
	// If the existing row carries a placeholder DID and did is real, the DID
	// is replaced; an already-real DID is never overwritten by a placeholder.
	Register(ctx context.Context, handle, did string, isPrimary bool) (*Account, error)

	// GetPrimary returns the single primary account.
	//
	// Returns [apperr.NotFound] if no primary is registered yet.
	GetPrimary(ctx context.Context) (*Account, error)

	// List returns every configured account, primary first.
	List(ctx context.Context) ([]*Account, error)
}
