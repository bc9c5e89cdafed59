// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package atproto is the boundary between Skymirror and the AT Protocol
network.

It defines a narrow [Client] interface covering exactly the operations the
synchronization engine needs (session management, record writes, graph
enumeration) plus a pull-style firehose [Subscription]. The concrete
implementation speaks XRPC over HTTP and websocket.

# Error Classification

Upstream failures are classified ONCE here, into the tagged taxonomy of
[apperr]: rate-limit rejections, expired credentials, duplicate-record
conflicts, transient transport faults, and permanent errors. Callers switch
on the tag and never inspect transport details.
*/
package atproto

import (
	"context"
	"time"
)

// Session is the credential set returned by login/refresh.
type Session struct {
	Handle     string
	DID        string
	AccessJwt  string
	RefreshJwt string
}

// RecordRef identifies a created or updated record.
type RecordRef struct {
	URI string
	CID string
}

// ListView is a list as returned by graph enumeration.
type ListView struct {
	URI       string
	CID       string
	Name      string
	Purpose   string
	IndexedAt time.Time
}

// ListsPage is one page of an account's lists.
type ListsPage struct {
	Lists  []ListView
	Cursor string
}

// ListItemView is one membership entry of a list.
type ListItemView struct {
	// URI addresses the listitem record itself (needed for deletion).
	URI string
	// SubjectDID is the listed account.
	SubjectDID string
}

// ListPage is one page of a list's membership.
type ListPage struct {
	Items  []ListItemView
	Cursor string
}

// BlockedView is one entry of the viewer's block enumeration.
type BlockedView struct {
	DID    string
	Handle string
}

// BlocksPage is one page of the viewer's blocks.
type BlocksPage struct {
	Blocks []BlockedView
	Cursor string
}

// Client is the network operation set the synchronization engine depends on.
//
// Implementations carry per-account authentication state; one Client belongs
// to exactly one managed account.
type Client interface {
	// Login performs a full credential login and installs the session.
	Login(ctx context.Context, handle, password string) (*Session, error)

	// RefreshSession exchanges a refresh token for a fresh token pair and
	// installs it. Returns [apperr.KindAuthExpired] when the refresh token
	// is rejected.
	RefreshSession(ctx context.Context, refreshJwt string) (*Session, error)

	// Resume installs a previously persisted session without any network call.
	Resume(session *Session)

	// CreateRecord writes a new record into the repo/collection.
	// Duplicate creations surface as [apperr.KindConflict].
	CreateRecord(ctx context.Context, repo, collection string, record any) (*RecordRef, error)

	// PutRecord writes a record at a known rkey (upsert semantics upstream).
	PutRecord(ctx context.Context, repo, collection, rkey string, record any) (*RecordRef, error)

	// DeleteRecord removes the record at (repo, collection, rkey).
	DeleteRecord(ctx context.Context, repo, collection, rkey string) error

	// GetLists enumerates lists owned by actor.
	GetLists(ctx context.Context, actor string, limit int, cursor string) (*ListsPage, error)

	// GetList enumerates the membership of the list at listURI.
	GetList(ctx context.Context, listURI string, limit int, cursor string) (*ListPage, error)

	// GetBlocks enumerates the authenticated account's active blocks.
	GetBlocks(ctx context.Context, limit int, cursor string) (*BlocksPage, error)
}
