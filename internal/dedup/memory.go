package dedup

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryStoreSize = 4096

// MemoryStore is a per-process marker store. Suitable for the inline delivery
// mode and tests; queued multi-worker deployments need the DB store so every
// worker sees the same markers.
type MemoryStore struct {
	cache *expirable.LRU[string, struct{}]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, struct{}](memoryStoreSize, nil, ttl),
	}
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}

func (s *MemoryStore) Mark(_ context.Context, key string) error {
	s.cache.Add(key, struct{}{})
	return nil
}
