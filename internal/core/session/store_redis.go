// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/constants"
)

// RedisStore keeps sessions in Redis with a TTL matching the refresh-token
// lifetime. An evicted entry only costs one extra upstream login.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed implementation of the Store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load returns the persisted session for handle.
func (store *RedisStore) Load(ctx context.Context, handle string) (*Session, error) {
	data, err := store.client.Get(ctx, key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("redis_session_store_load_failed: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("redis_session_store_decode_failed: %w", err)
	}

	return session, nil
}

// Save persists the full credential set, replacing any prior one.
func (store *RedisStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_store_encode_failed: %w", err)
	}

	err = store.client.Set(ctx, key(session.Handle), data, constants.DefaultRefreshTokenTTL).Err()
	if err != nil {
		return fmt.Errorf("redis_session_store_save_failed: %w", err)
	}

	return nil
}

// Delete discards the persisted session for handle.
func (store *RedisStore) Delete(ctx context.Context, handle string) error {
	if err := store.client.Del(ctx, key(handle)).Err(); err != nil {
		return fmt.Errorf("redis_session_store_delete_failed: %w", err)
	}
	return nil
}

func key(handle string) string {
	return constants.RedisPrefixSession + handle
}
