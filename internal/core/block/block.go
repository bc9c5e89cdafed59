// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package block owns the mirrored block records: who blocks whom, observed from
which managed account, in which direction.

Rows arrive from three ingest paths (the firehose consumer, the reconciler's
authoritative enumeration, and the primary's propagation step) and all three
converge on the same idempotent upsert. The self-block
whitelist (no managed DID may ever appear as a subject) is enforced inside
the store, not the callers, precisely because multiple ingest paths exist.
*/
package block

import "time"

// Direction tags which way a block points relative to its source account.
type Direction string

const (
	// DirectionBlocking: the source managed account actively blocks the subject.
	DirectionBlocking Direction = "blocking"

	// DirectionBlockedBy: the external directory reports that the subject
	// blocks the source managed account.
	DirectionBlockedBy Direction = "blocked_by"
)

// Block is one mirrored block record.
type Block struct {
	ID              int64
	DID             string
	Handle          string
	Reason          string
	SourceAccountID int64
	Direction       Direction
	FirstSeen       time.Time
	LastSeen        time.Time
	SyncedByPrimary bool
}

// UnsyncedBlock is a secondary-account block row awaiting primary
// propagation, annotated with whether the primary already blocks the subject.
type UnsyncedBlock struct {
	Block
	AlreadyBlockedByPrimary bool
}

// AddParams carries the upsert key and payload for [Store.Add].
type AddParams struct {
	DID             string
	Handle          string
	Reason          string
	SourceAccountID int64
	Direction       Direction
}
