// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// memoryStore is a map-backed Store for tests.
type memoryStore struct {
	sessions map[string]*Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (store *memoryStore) Load(_ context.Context, handle string) (*Session, error) {
	stored, found := store.sessions[handle]
	if !found {
		return nil, apperr.NotFound("Session")
	}
	copied := *stored
	return &copied, nil
}

func (store *memoryStore) Save(_ context.Context, session *Session) error {
	copied := *session
	store.sessions[session.Handle] = &copied
	return nil
}

func (store *memoryStore) Delete(_ context.Context, handle string) error {
	delete(store.sessions, handle)
	return nil
}

// fakeClient records which session operations were invoked. The embedded
// interface panics on anything the manager should never call.
type fakeClient struct {
	atproto.Client

	loginCalls   int
	refreshCalls int
	resumed      *atproto.Session
	refreshErr   error
}

func (client *fakeClient) Login(_ context.Context, handle, _ string) (*atproto.Session, error) {
	client.loginCalls++
	return &atproto.Session{
		Handle:     handle,
		DID:        "did:plc:resolved",
		AccessJwt:  "access-from-login",
		RefreshJwt: "refresh-from-login",
	}, nil
}

func (client *fakeClient) RefreshSession(_ context.Context, _ string) (*atproto.Session, error) {
	client.refreshCalls++
	if client.refreshErr != nil {
		return nil, client.refreshErr
	}
	return &atproto.Session{
		Handle:     "mirror.example",
		DID:        "did:plc:resolved",
		AccessJwt:  "access-from-refresh",
		RefreshJwt: "refresh-from-refresh",
	}, nil
}

func (client *fakeClient) Resume(session *atproto.Session) {
	client.resumed = session
}

// signedToken mints an HS256 token whose exp claim lies at the given offset.
func signedToken(t *testing.T, expIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(expIn).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func testManager(store Store) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, 115*time.Minute, 55*24*time.Hour, logger)
}

func TestEstablish_NoStoredSessionLogsIn(t *testing.T) {
	store := newMemoryStore()
	client := &fakeClient{}

	live, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, 1, client.loginCalls)
	assert.Equal(t, "did:plc:resolved", live.DID)

	saved, err := store.Load(context.Background(), "mirror.example")
	require.NoError(t, err)
	assert.Equal(t, "access-from-login", saved.AccessJwt)
	assert.WithinDuration(t, time.Now(), saved.RefreshDate, time.Minute)
}

func TestEstablish_FreshSessionIsResumed(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save(context.Background(), &Session{
		Handle:      "mirror.example",
		DID:         "did:plc:resolved",
		AccessJwt:   signedToken(t, time.Hour),
		RefreshJwt:  "stored-refresh",
		AccessDate:  time.Now().Add(-time.Minute),
		RefreshDate: time.Now().Add(-time.Hour),
	}))
	client := &fakeClient{}

	live, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Zero(t, client.loginCalls)
	assert.Zero(t, client.refreshCalls)
	require.NotNil(t, client.resumed)
	assert.Equal(t, "stored-refresh", live.RefreshJwt)
}

func TestEstablish_StaleAccessTokenIsRefreshed(t *testing.T) {
	store := newMemoryStore()
	refreshDate := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, store.Save(context.Background(), &Session{
		Handle:      "mirror.example",
		DID:         "did:plc:resolved",
		AccessJwt:   signedToken(t, time.Hour),
		RefreshJwt:  "stored-refresh",
		AccessDate:  time.Now().Add(-3 * time.Hour),
		RefreshDate: refreshDate,
	}))
	client := &fakeClient{}

	live, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Zero(t, client.loginCalls)
	assert.Equal(t, 1, client.refreshCalls)
	assert.Equal(t, "access-from-refresh", live.AccessJwt)

	// The refresh keeps the original full-login timestamp.
	saved, err := store.Load(context.Background(), "mirror.example")
	require.NoError(t, err)
	assert.WithinDuration(t, refreshDate, saved.RefreshDate, time.Second)
}

func TestEstablish_ImminentExpiryForcesRefresh(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save(context.Background(), &Session{
		Handle: "mirror.example",
		DID:    "did:plc:resolved",
		// Locally recorded as fresh, but the token itself disagrees.
		AccessJwt:   signedToken(t, time.Minute),
		RefreshJwt:  "stored-refresh",
		AccessDate:  time.Now().Add(-time.Minute),
		RefreshDate: time.Now().Add(-time.Hour),
	}))
	client := &fakeClient{}

	_, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, 1, client.refreshCalls)
}

func TestEstablish_ExpiredRefreshTokenForcesLogin(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save(context.Background(), &Session{
		Handle:      "mirror.example",
		DID:         "did:plc:resolved",
		AccessJwt:   signedToken(t, time.Hour),
		RefreshJwt:  "stored-refresh",
		AccessDate:  time.Now(),
		RefreshDate: time.Now().Add(-60 * 24 * time.Hour),
	}))
	client := &fakeClient{}

	_, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, 1, client.loginCalls)
	assert.Zero(t, client.refreshCalls)
}

func TestEstablish_RejectedRefreshFallsBackToLogin(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save(context.Background(), &Session{
		Handle:      "mirror.example",
		DID:         "did:plc:resolved",
		AccessJwt:   signedToken(t, time.Hour),
		RefreshJwt:  "revoked-refresh",
		AccessDate:  time.Now().Add(-3 * time.Hour),
		RefreshDate: time.Now().Add(-time.Hour),
	}))
	client := &fakeClient{refreshErr: apperr.AuthExpired("refresh token revoked", nil)}

	live, err := testManager(store).Establish(context.Background(), client, "mirror.example", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, 1, client.refreshCalls)
	assert.Equal(t, 1, client.loginCalls)
	assert.Equal(t, "access-from-login", live.AccessJwt)
}
