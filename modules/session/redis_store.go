package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cinegen-server/modules/workflow"
)

const keyPrefix = "cinegen:session:"

// RedisStore - JSON snapshots under cinegen:session:<id>, refreshed TTL on every save
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (workflow.State, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return workflow.State{}, ErrNotFound
	}
	if err != nil {
		return workflow.State{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return workflow.State{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st workflow.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}
