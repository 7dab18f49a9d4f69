package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"cinegen-server/modules/workflow"
)

// MemoryStore - process-local snapshots with TTL, used when Redis is not configured
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(ttl, ttl/2)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (workflow.State, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return workflow.State{}, ErrNotFound
	}
	st, ok := v.(workflow.State)
	if !ok {
		return workflow.State{}, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, st workflow.State) error {
	s.cache.Set(id, st.Clone(), cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}
