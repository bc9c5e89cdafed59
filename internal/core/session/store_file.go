// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// FileStore persists sessions as one JSON file per handle under a directory.
//
// Intended for single-host deployments without Postgres session storage; the
// files contain live credentials and are written with owner-only permissions.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file_session_store_mkdir_failed: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load returns the persisted session for handle.
func (store *FileStore) Load(_ context.Context, handle string) (*Session, error) {
	data, err := os.ReadFile(store.path(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("file_session_store_load_failed: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("file_session_store_decode_failed: %w", err)
	}

	return session, nil
}

// Save persists the full credential set, replacing any prior one.
//
// The write goes through a temp file and rename so a crash mid-write never
// leaves a truncated session behind.
func (store *FileStore) Save(_ context.Context, session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("file_session_store_encode_failed: %w", err)
	}

	target := store.path(session.Handle)
	temp := target + ".tmp"

	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return fmt.Errorf("file_session_store_write_failed: %w", err)
	}
	if err := os.Rename(temp, target); err != nil {
		return fmt.Errorf("file_session_store_rename_failed: %w", err)
	}

	return nil
}

// Delete discards the persisted session for handle.
func (store *FileStore) Delete(_ context.Context, handle string) error {
	err := os.Remove(store.path(handle))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file_session_store_delete_failed: %w", err)
	}
	return nil
}

// path maps a handle to its session file. Handles are DNS names, but the
// replacement keeps any surprise separator out of the filesystem path.
func (store *FileStore) path(handle string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(handle)
	return filepath.Join(store.dir, safe+".json")
}
