// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package orchestrator boots the fleet of account agents and supervises their
lifecycles.

Startup is deliberately serialized: accounts are registered with placeholder
identities, logged in one at a time with spacing between them (full logins
are the scarcest upstream resource), the primary's moderation list is
ensured, and only then do the consumer and reconciler loops fan out. An
account whose login is rate limited is skipped for this process lifetime
rather than hammered.

Shutdown is cooperative with bounded patience: cancelling the run context
stops every loop, and stragglers are abandoned after a join timeout so the
process never hangs on a stuck websocket read.
*/
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haianhng/skymirror/internal/agent"
	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/account"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/config"
	"github.com/haianhng/skymirror/internal/platform/constants"
)

// Orchestrator owns the agent fleet for one process.
type Orchestrator struct {
	cfg    *config.Config
	deps   agent.Deps
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func() atproto.Client
}

// New assembles an Orchestrator over shared infrastructure.
func New(cfg *config.Config, deps agent.Deps, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		newClient: func() atproto.Client {
			return atproto.NewXRPCClient(cfg.ServiceURL)
		},
	}
}

// Run starts every agent and blocks until ctx is cancelled and the loops
// have joined (or the join timeout expires).
func (orchestrator *Orchestrator) Run(ctx context.Context) error {
	agents, err := orchestrator.startAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return apperr.Permanent("no accounts could establish a session", nil)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for _, accountAgent := range agents {
		accountAgent := accountAgent

		group.Go(func() error {
			accountAgent.Consume(groupCtx)
			return nil
		})

		var onPass func(context.Context)
		if accountAgent.IsPrimary() {
			onPass = accountAgent.Publish
		}
		group.Go(func() error {
			accountAgent.Reconcile(groupCtx, onPass)
			return nil
		})
	}

	orchestrator.logger.Info("agent fleet running",
		slog.Int("agents", len(agents)),
	)

	<-ctx.Done()
	return orchestrator.join(group)
}

// startAgents registers, logs in, and prepares each managed account.
func (orchestrator *Orchestrator) startAgents(ctx context.Context) ([]*agent.Agent, error) {
	roster, err := orchestrator.cfg.Accounts()
	if err != nil {
		return nil, err
	}

	options := agent.Options{
		FirehoseURL:         orchestrator.cfg.FirehoseURL,
		ListName:            orchestrator.cfg.ListName,
		ListDescription:     orchestrator.cfg.ListDescription,
		FullSyncInterval:    orchestrator.cfg.FullSyncInterval,
		PublishBatchSize:    orchestrator.cfg.PublishBatchSize,
		PublishBatchPause:   orchestrator.cfg.PublishBatchPause,
		PublishPagePause:    orchestrator.cfg.PublishPagePause,
		PublishAdditiveOnly: orchestrator.cfg.PublishAdditiveOnly,
	}

	var agents []*agent.Agent

	for index, credentials := range roster {
		// The whitelist must cover every managed handle before any ingest
		// begins, so registration precedes login and uses a placeholder DID.
		row, err := orchestrator.deps.Accounts.Register(ctx,
			credentials.Handle,
			account.Placeholder(credentials.Handle),
			credentials.Primary,
		)
		if err != nil {
			return nil, err
		}

		agentOptions := options
		if credentials.Primary {
			agentOptions.SyncInterval = orchestrator.cfg.PrimarySyncInterval
		} else {
			agentOptions.SyncInterval = orchestrator.cfg.SecondarySyncInterval
		}

		accountAgent := agent.New(orchestrator.deps, agentOptions, row, credentials.Password, orchestrator.newClient())

		if err := accountAgent.Connect(ctx); err != nil {
			if credentials.Primary {
				// Without the primary there is no list to maintain.
				return nil, err
			}
			orchestrator.logger.Warn("secondary account login failed, skipping for this run",
				slog.String("handle", credentials.Handle),
				slog.Any("error", err),
			)
		} else {
			agents = append(agents, accountAgent)
		}

		// Pace logins; the last account needs no trailing pause.
		if index < len(roster)-1 {
			timer := time.NewTimer(orchestrator.cfg.LoginSpacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	// The primary is always roster[0], hence agents[0] when it connected.
	if len(agents) > 0 && agents[0].IsPrimary() {
		if err := agents[0].EnsureList(ctx); err != nil {
			return nil, err
		}
	}

	return agents, nil
}

// join waits for the loops with bounded patience.
func (orchestrator *Orchestrator) join(group *errgroup.Group) error {
	joined := make(chan error, 1)
	go func() { joined <- group.Wait() }()

	select {
	case err := <-joined:
		orchestrator.logger.Info("agent fleet stopped")
		return err
	case <-time.After(constants.ConsumerJoinTimeout + constants.ReconcilerJoinTimeout):
		orchestrator.logger.Warn("agent loops did not join in time, abandoning")
		return nil
	}
}
