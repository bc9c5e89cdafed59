// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package cursor persists per-account firehose checkpoints so a restarted
// consumer resumes where it left off instead of replaying or skipping.
package cursor

import "context"

// Store defines the data access contract for commit-stream checkpoints.
type Store interface {
	// Save records seq as the last processed sequence for did. The stored
	// value is monotonically non-decreasing: an older seq never overwrites a
	// newer one.
	Save(ctx context.Context, did string, seq int64) error

	// Load returns the last checkpoint for did.
	//
	// found is false when the account has never checkpointed, in which case
	// the consumer starts from the live edge.
	Load(ctx context.Context, did string) (seq int64, found bool, err error)
}
