// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	saved := &Session{
		Handle:      "mirror.example",
		DID:         "did:plc:resolved",
		AccessJwt:   "access",
		RefreshJwt:  "refresh",
		AccessDate:  time.Now().Truncate(time.Second),
		RefreshDate: time.Now().Add(-time.Hour).Truncate(time.Second),
	}

	require.NoError(t, store.Save(ctx, saved))

	loaded, err := store.Load(ctx, "mirror.example")
	require.NoError(t, err)
	assert.Equal(t, saved.DID, loaded.DID)
	assert.Equal(t, saved.AccessJwt, loaded.AccessJwt)
	assert.True(t, saved.AccessDate.Equal(loaded.AccessDate))

	require.NoError(t, store.Delete(ctx, "mirror.example"))

	_, err = store.Load(ctx, "mirror.example")
	assert.True(t, apperr.IsNotFound(err))
}

func TestFileStore_MissingSessionIsNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "never-seen.example")
	assert.True(t, apperr.IsNotFound(err))
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "never-seen.example"))
}
