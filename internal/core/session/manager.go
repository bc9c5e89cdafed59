// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/sec"
)

// expiryGuard is subtracted from the access token's own exp claim: a token
// about to expire is refreshed proactively instead of being sent upstream.
const expiryGuard = 5 * time.Minute

// Manager decides, per account, whether stored credentials can be reused,
// must be refreshed, or have to be replaced by a full login.
type Manager struct {
	store      Store
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewManager wires a Manager over the given store.
//
// accessTTL and refreshTTL bound how long locally recorded issue timestamps
// are trusted; the access token's own exp claim is cross-checked as well.
func NewManager(store Store, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// Establish produces a live upstream session for the account and installs it
// into the client.
//
// Decision order:
//  1. No stored session, or the refresh token is older than refreshTTL:
//     full credential login.
//  2. Access token older than accessTTL or expiring per its own exp claim:
//     token refresh, falling back to a full login if the refresh token is
//     rejected upstream.
//  3. Otherwise the stored pair is resumed without any network call.
func (manager *Manager) Establish(ctx context.Context, client atproto.Client, handle, password string) (*atproto.Session, error) {
	stored, err := manager.store.Load(ctx, handle)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, fmt.Errorf("session_manager_load_failed: %w", err)
	}

	if stored == nil || time.Since(stored.RefreshDate) > manager.refreshTTL {
		return manager.login(ctx, client, handle, password)
	}

	accessStale := time.Since(stored.AccessDate) > manager.accessTTL ||
		sec.ExpiresWithin(stored.AccessJwt, expiryGuard)

	if !accessStale {
		live := &atproto.Session{
			Handle:     stored.Handle,
			DID:        stored.DID,
			AccessJwt:  stored.AccessJwt,
			RefreshJwt: stored.RefreshJwt,
		}
		client.Resume(live)

		manager.logger.Debug("session resumed from store",
			slog.String("handle", handle),
		)
		return live, nil
	}

	refreshed, err := client.RefreshSession(ctx, stored.RefreshJwt)
	if err != nil {
		if apperr.IsAuthExpired(err) {
			manager.logger.Warn("stored refresh token rejected, falling back to login",
				slog.String("handle", handle),
			)
			if deleteErr := manager.store.Delete(ctx, handle); deleteErr != nil {
				manager.logger.Error("failed to discard rejected session",
					slog.String("handle", handle),
					slog.Any("error", deleteErr),
				)
			}
			return manager.login(ctx, client, handle, password)
		}
		return nil, err
	}

	now := time.Now()
	if saveErr := manager.store.Save(ctx, &Session{
		Handle:      refreshed.Handle,
		DID:         refreshed.DID,
		AccessJwt:   refreshed.AccessJwt,
		RefreshJwt:  refreshed.RefreshJwt,
		AccessDate:  now,
		RefreshDate: stored.RefreshDate,
	}); saveErr != nil {
		manager.logger.Error("failed to persist refreshed session",
			slog.String("handle", handle),
			slog.Any("error", saveErr),
		)
	}

	manager.logger.Info("session refreshed",
		slog.String("handle", handle),
	)
	return refreshed, nil
}

// login performs a full credential login and persists the resulting pair.
func (manager *Manager) login(ctx context.Context, client atproto.Client, handle, password string) (*atproto.Session, error) {
	live, err := client.Login(ctx, handle, password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if saveErr := manager.store.Save(ctx, &Session{
		Handle:      live.Handle,
		DID:         live.DID,
		AccessJwt:   live.AccessJwt,
		RefreshJwt:  live.RefreshJwt,
		AccessDate:  now,
		RefreshDate: now,
	}); saveErr != nil {
		manager.logger.Error("failed to persist new session",
			slog.String("handle", handle),
			slog.Any("error", saveErr),
		)
	}

	manager.logger.Info("full login performed",
		slog.String("handle", handle),
	)
	return live, nil
}
