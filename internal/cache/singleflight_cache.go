// Package cache provides the in-process implementation of
// domain.StockCache: a TTL-bounded map guarded by a mutex, with
// singleflight collapsing concurrent loader calls for the same key.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flashsale/checkout/internal/domain"
)

type entry struct {
	stock     int32
	expiresAt time.Time
}

// SingleflightCache is a mutex-guarded map of product_id -> stock, with
// a singleflight group collapsing concurrent cache-miss loads.
type SingleflightCache struct {
	mu    sync.Mutex
	items map[string]entry
	group singleflight.Group
	now   func() time.Time
}

var _ domain.StockCache = (*SingleflightCache)(nil)

// New returns an empty SingleflightCache.
func New() *SingleflightCache {
	return &SingleflightCache{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Get returns the cached stock for productID and true if the entry has
// not yet expired.
func (c *SingleflightCache) Get(productID string) (int32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[productID]
	if !ok || c.now().After(e.expiresAt) {
		return 0, false
	}
	return e.stock, true
}

// Put writes through a freshly computed stock value with the given TTL.
func (c *SingleflightCache) Put(productID string, stock int32, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[productID] = entry{stock: stock, expiresAt: c.now().Add(ttl)}
}

// Invalidate drops any cached entry for productID. Called after every
// Store write that changes available_stock.
func (c *SingleflightCache) Invalidate(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, productID)
}

// WithSingleflight collapses concurrent misses for productID so loader
// runs at most once; other callers block on its result and receive a
// copy, never a second call into the Store.
func (c *SingleflightCache) WithSingleflight(productID string, loader func() (int32, error)) (int32, error) {
	v, err, _ := c.group.Do(productID, func() (interface{}, error) {
		return loader()
	})
	if err != nil {
		return 0, err
	}
	return v.(int32), nil
}
