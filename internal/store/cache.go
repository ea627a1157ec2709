package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore memoizes successful lookups. Misses and errors always reach
// the backend so a newly registered key is usable at once.
type CachedStore struct {
	Store
	names *expirable.LRU[string, string]
}

// NewCachedStore wraps backend with an LRU of size entries, each kept for ttl.
func NewCachedStore(backend Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: backend,
		names: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *CachedStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if name, ok := c.names.Get(key); ok {
		return name, true, nil
	}
	name, found, err := c.Store.Lookup(ctx, key)
	if err != nil || !found {
		return name, found, err
	}
	c.names.Add(key, name)
	return name, true, nil
}

// Len returns the number of cached names.
func (c *CachedStore) Len() int {
	return c.names.Len()
}
