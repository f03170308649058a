package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session state as JSON values in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore whose keys expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get returns the state for the album or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, sessionID, albumID string) (State, error) {
	raw, err := s.client.Get(ctx, key(sessionID, albumID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("get session ranking: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decode session ranking: %w", err)
	}
	return state, nil
}

// Put overwrites the state for the album and resets its expiry.
func (s *RedisStore) Put(ctx context.Context, sessionID, albumID string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session ranking: %w", err)
	}

	if err := s.client.Set(ctx, key(sessionID, albumID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session ranking: %w", err)
	}
	return nil
}
