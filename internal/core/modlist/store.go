// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package modlist

import "context"

// Store defines the data access contract for moderation-list metadata.
type Store interface {
	// Register upserts a list row by URI and returns it.
	Register(ctx context.Context, uri, cid, ownerDID, name string) (*List, error)

	// GetByOwner returns the canonical list for the given owner DID.
	//
	// Returns [apperr.NotFound] if the owner has no registered list.
	GetByOwner(ctx context.Context, ownerDID string) (*List, error)

	// DeleteByURI removes a list row (used when duplicates on the network
	// are collapsed onto the oldest canonical list).
	DeleteByURI(ctx context.Context, uri string) error
}
