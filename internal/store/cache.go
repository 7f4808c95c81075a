package store

import (
	"context"
	"sync"
	"time"

	"github.com/diewo77/go-members/internal/models"
)

// CachingStore wraps a UserStore and caches store lookups. Stores are
// reference data, so a short TTL is enough to pick up reseeding.
// Misses and errors are never cached.
type CachingStore struct {
	UserStore

	mu    sync.RWMutex
	cache map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	store     models.Store
	expiresAt time.Time
}

// NewCachingStore wraps inner with a store cache of the given ttl.
func NewCachingStore(inner UserStore, ttl time.Duration) *CachingStore {
	return &CachingStore{
		UserStore: inner,
		cache:     make(map[string]*cacheEntry),
		ttl:       ttl,
		now:       time.Now,
	}
}

// GetStoreByID returns the store, using the cache if available.
func (c *CachingStore) GetStoreByID(ctx context.Context, id string) (*models.Store, error) {
	c.mu.RLock()
	entry, ok := c.cache[id]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		st := entry.store
		return &st, nil
	}

	st, err := c.UserStore.GetStoreByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = &cacheEntry{store: *st, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return st, nil
}

// Invalidate removes one store from the cache.
func (c *CachingStore) Invalidate(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

// InvalidateAll clears the cache. Call it after reseeding stores.
func (c *CachingStore) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[string]*cacheEntry)
	c.mu.Unlock()
}
