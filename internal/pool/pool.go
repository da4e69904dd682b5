// Package pool implements the interest set: the authoritative record of
// which stock codes at least one dashboard currently cares about, and
// which callers contributed that interest. Grounded on the Python
// original's stock_pool_manager.py RealtimeUpdater.stocks_pool plus its
// stock_update_queue draining loop (pool_update_task), adapted to Go
// channels and a plain mutex in the style of socket.go's channelsMutex.
package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/metrics"
	"github.com/zheewang/stockrealtime/internal/model"
)

type enqueueMsg struct {
	caller model.CallerTag
	codes  []model.StockCode
}

// Pool is the process-wide interest set. All mutation to the entries map
// happens inside Apply, called from a single maintenance loop; Enqueue
// only ever posts to the ingress channel and never touches the map, so it
// is safe to call from any goroutine (HTTP handlers, the Gateway) without
// taking a lock.
type Pool struct {
	log *zap.Logger

	ingress chan enqueueMsg

	mu      sync.Mutex
	entries map[model.StockCode]*model.PoolEntry
}

// New creates a Pool with ingress channel capacity backlog, sized to
// absorb bursts of dashboard enqueues between scheduler ticks without
// blocking callers.
func New(log *zap.Logger, backlog int) *Pool {
	return &Pool{
		log:     log,
		ingress: make(chan enqueueMsg, backlog),
		entries: make(map[model.StockCode]*model.PoolEntry),
	}
}

// Enqueue posts an interest message for codes from caller. It is
// idempotent on duplicate codes and never blocks longer than it takes to
// push onto a buffered channel; if the channel is full the message is
// dropped and logged, since a missed enqueue is self-healing (the caller
// or the next dashboard refresh will enqueue again).
func (p *Pool) Enqueue(caller model.CallerTag, codes []model.StockCode) {
	if len(codes) == 0 {
		return
	}
	select {
	case p.ingress <- enqueueMsg{caller: caller, codes: codes}:
	default:
		metrics.PoolEnqueuesDropped.Inc()
		p.log.Warn("pool ingress full, dropping enqueue", zap.String("caller", string(caller)), zap.Int("codes", len(codes)))
	}
}

// Apply drains the ingress queue, unioning each message's caller into the
// pool entries it names and creating entries as needed. Called once per
// maintenance tick by the Engine; the critical section touches only the
// entries map and performs no I/O.
func (p *Pool) Apply(now time.Time) int {
	applied := 0
	for {
		var msg enqueueMsg
		select {
		case msg = <-p.ingress:
		default:
			return applied
		}
		ts := now.UnixNano()
		p.mu.Lock()
		for _, code := range msg.codes {
			entry, ok := p.entries[code]
			if !ok {
				e := model.NewPoolEntry(msg.caller, ts)
				p.entries[code] = &e
			} else {
				entry.AddSource(msg.caller)
				if ts > entry.LastTouched {
					entry.LastTouched = ts
				}
			}
		}
		p.mu.Unlock()
		applied += len(msg.codes)
	}
}

// Evict removes entries whose LastTouched is older than ttl, returning the
// evicted codes so the caller (the Engine's maintenance loop) can also
// clear them from the quote cache, preserving the pool/cache containment
// invariant.
func (p *Pool) Evict(now time.Time, ttl time.Duration) []model.StockCode {
	cutoff := now.Add(-ttl).UnixNano()
	var evicted []model.StockCode

	p.mu.Lock()
	for code, entry := range p.entries {
		if entry.LastTouched < cutoff {
			evicted = append(evicted, code)
			delete(p.entries, code)
		}
	}
	p.mu.Unlock()

	if len(evicted) > 0 {
		p.log.Debug("evicted stale pool entries", zap.Int("count", len(evicted)))
	}
	return evicted
}

// Source identifies which upstream source a pool entry routes to.
type Source int

const (
	SourceFast Source = iota
	SourceSlow
	SourceScrape
)

// SnapshotFor returns the codes currently routed to source. Routing is a
// pure function of an entry's Sources set, recomputed every call: entries
// whose sources include watchlist route to fast; everything else routes
// to slow and scrape.
func (p *Pool) SnapshotFor(source Source) []model.StockCode {
	p.mu.Lock()
	defer p.mu.Unlock()

	var codes []model.StockCode
	for code, entry := range p.entries {
		isWatchlist := entry.HasSource(model.CallerWatchlist)
		switch source {
		case SourceFast:
			if isWatchlist {
				codes = append(codes, code)
			}
		case SourceSlow, SourceScrape:
			if !isWatchlist {
				codes = append(codes, code)
			}
		}
	}
	return codes
}

// Contains reports whether code currently has a pool entry.
func (p *Pool) Contains(code model.StockCode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[code]
	return ok
}

// Size returns the number of entries currently in the pool, for metrics.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// AllCodes returns every code currently in the pool, used by the Gateway's
// `all` dashboard expansion.
func (p *Pool) AllCodes() []model.StockCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes := make([]model.StockCode, 0, len(p.entries))
	for code := range p.entries {
		codes = append(codes, code)
	}
	return codes
}

// CodesForCaller returns every code whose sources include caller, used by
// refresh_request's dashboard-to-caller-tag mapping.
func (p *Pool) CodesForCaller(caller model.CallerTag) []model.StockCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	var codes []model.StockCode
	for code, entry := range p.entries {
		if entry.HasSource(caller) {
			codes = append(codes, code)
		}
	}
	return codes
}
