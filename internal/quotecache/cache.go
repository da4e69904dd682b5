// Package quotecache holds the latest known quote per pooled stock code
// and detects which codes changed since they were last emitted, grounded
// on the Python original's realtime_data dict and emit_updates's
// last_emitted_data comparison (blueprints/stock_pool_manager - redis.py).
package quotecache

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

// Membership is the subset check the cache uses to enforce that it never
// holds a quote for a code outside the interest set.
type Membership interface {
	Contains(code model.StockCode) bool
}

// Cache is the process-wide quote cache. It is a strict subset of the
// pool: PutMany silently drops codes the pool doesn't recognize, and
// Delete, called when the pool evicts a code, is the only way entries
// disappear.
type Cache struct {
	log  *zap.Logger
	pool Membership

	mu    sync.Mutex
	quota map[model.StockCode]model.Quote
	// lastEmitted mirrors quota's shape but is only updated by Delta,
	// tracking what the Gateway has already sent out.
	lastEmitted map[model.StockCode]model.Quote
}

// New creates a Cache backed by pool's membership check.
func New(log *zap.Logger, pool Membership) *Cache {
	return &Cache{
		log:         log,
		pool:        pool,
		quota:       make(map[model.StockCode]model.Quote),
		lastEmitted: make(map[model.StockCode]model.Quote),
	}
}

// Get returns the present entries among codes, omitting any not cached.
func (c *Cache) Get(codes []model.StockCode) map[model.StockCode]model.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[model.StockCode]model.Quote, len(codes))
	for _, code := range codes {
		if q, ok := c.quota[code]; ok {
			out[code] = q
		}
	}
	return out
}

// PutMany writes new quote values, enforcing two invariants: a code not in
// the pool is dropped rather than cached, and an older reading (by
// LastUpdated) never overwrites a newer one already stored — out-of-order
// scraper batches or retried fetches must not regress a fresher value.
func (c *Cache) PutMany(values map[model.StockCode]model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for code, q := range values {
		if !c.pool.Contains(code) {
			continue
		}
		if existing, ok := c.quota[code]; ok && !q.NewerThan(existing) {
			continue
		}
		c.quota[code] = q
	}
}

// Delta returns the subset of newMap whose (price, change_pct) differs
// from what was last emitted, and marks those codes as emitted with
// their new value. Calling Delta twice in a row with the same map yields
// an empty result the second time.
func (c *Cache) Delta(newMap map[model.StockCode]model.Quote) map[model.StockCode]model.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := make(map[model.StockCode]model.Quote)
	for code, q := range newMap {
		prev, seen := c.lastEmitted[code]
		if seen && prev.Equal(q) {
			continue
		}
		changed[code] = q
		c.lastEmitted[code] = q
	}
	return changed
}

// Delete removes code from both the quote store and the emission
// tracking, called when its PoolEntry is evicted so the cache stays a
// strict subset of the pool.
func (c *Cache) Delete(codes []model.StockCode) {
	if len(codes) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.quota, code)
		delete(c.lastEmitted, code)
	}
}

// Size returns the number of cached quotes, for metrics.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quota)
}
