// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package agent runs the synchronization engine: one Agent per managed account,
each combining a live commit-stream consumer with a periodic reconciler, plus
the primary-only list publisher and propagation duties.

# Division of Labor

The consumer gives low latency: block creations appear in the mirror within
seconds of the commit. The reconciler gives correctness: it periodically
replaces the mirror with the authoritative enumeration, catching deletions
and anything the stream missed. Neither path trusts the other; both funnel
through the same idempotent store upsert.

All upstream writes from all agents pass through one shared [governor.Governor]
so the process observes a single global write budget.
*/
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/account"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/core/cursor"
	"github.com/haianhng/skymirror/internal/core/modlist"
	"github.com/haianhng/skymirror/internal/core/session"
	"github.com/haianhng/skymirror/internal/directory"
	"github.com/haianhng/skymirror/internal/governor"
	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// Deps bundles the shared infrastructure every agent needs.
type Deps struct {
	Accounts  account.Store
	Blocks    block.Store
	Cursors   cursor.Store
	Lists     modlist.Store
	Sessions  *session.Manager
	Governor  *governor.Governor
	Directory *directory.Client
	Logger    *slog.Logger
}

// Options carries the per-deployment knobs the agent loops consult.
type Options struct {
	FirehoseURL     string
	ListName        string
	ListDescription string

	SyncInterval     time.Duration
	FullSyncInterval time.Duration

	PublishBatchSize    int
	PublishBatchPause   time.Duration
	PublishPagePause    time.Duration
	PublishAdditiveOnly bool
}

// Agent drives synchronization for exactly one managed account.
type Agent struct {
	deps    Deps
	options Options

	handle   string
	password string
	client   atproto.Client

	// row is the persisted account record; its DID starts as a placeholder
	// and is resolved on first login.
	row *account.Account

	// listURI is set on the primary agent once the moderation list exists.
	listURI string

	// subscribe dials the commit stream; swappable for tests.
	subscribe func(ctx context.Context, firehoseURL string, cursor int64) (commitStream, error)

	logger *slog.Logger
}

// New binds an agent to its account row and network client.
func New(deps Deps, options Options, row *account.Account, password string, client atproto.Client) *Agent {
	return &Agent{
		deps:     deps,
		options:  options,
		handle:   row.Handle,
		password: password,
		client:   client,
		row:      row,
		subscribe: func(ctx context.Context, firehoseURL string, cursor int64) (commitStream, error) {
			return atproto.Subscribe(ctx, firehoseURL, cursor)
		},
		logger: deps.Logger.With(
			slog.String("handle", row.Handle),
			slog.Bool("primary", row.IsPrimary),
		),
	}
}

// Row returns the agent's persisted account record.
func (agent *Agent) Row() *account.Account { return agent.row }

// IsPrimary reports whether this agent owns the published moderation list.
func (agent *Agent) IsPrimary() bool { return agent.row.IsPrimary }

// ListURI returns the moderation list owned by the primary, or "" before
// EnsureList has run.
func (agent *Agent) ListURI() string { return agent.listURI }

// Connect establishes an upstream session and resolves the account's DID.
//
// Accounts are registered before first login with a placeholder DID; the
// login response carries the real one, which is written back so the
// self-block whitelist covers this account from here on.
func (agent *Agent) Connect(ctx context.Context) error {
	live, err := agent.deps.Sessions.Establish(ctx, agent.client, agent.handle, agent.password)
	if err != nil {
		return err
	}

	if agent.row.DID != live.DID {
		updated, err := agent.deps.Accounts.Register(ctx, agent.row.Handle, live.DID, agent.row.IsPrimary)
		if err != nil {
			return err
		}
		agent.row = updated

		agent.logger.Info("account did resolved",
			slog.String("did", live.DID),
		)
	}

	return nil
}

// authorized runs fn and retries it exactly once after re-establishing the
// session when the upstream rejects the access token mid-flight.
func (agent *Agent) authorized(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || !apperr.IsAuthExpired(err) {
		return err
	}

	agent.logger.Warn("access token rejected mid-operation, re-establishing session")
	if _, reconnectErr := agent.deps.Sessions.Establish(ctx, agent.client, agent.handle, agent.password); reconnectErr != nil {
		return reconnectErr
	}

	return fn(ctx)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
