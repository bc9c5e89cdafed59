// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import "context"

// Store defines the persistence contract for upstream credential sets.
//
// A missing session is not an error condition for callers: Load returns
// [apperr.NotFound] and the Manager falls back to a full login.
type Store interface {
	// Load returns the persisted session for handle.
	Load(ctx context.Context, handle string) (*Session, error)

	// Save persists the full credential set, replacing any prior one.
	Save(ctx context.Context, session *Session) error

	// Delete discards the persisted session for handle. Used when stored
	// credentials are rejected upstream and must not be retried.
	Delete(ctx context.Context, handle string) error
}
