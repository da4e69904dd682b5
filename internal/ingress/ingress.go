// Package ingress is the thin entry point dashboard-facing handlers call
// to register interest in a stock code before composing their own
// historical response. It does no I/O itself: it only forwards to the
// pool's ingress channel, mirroring stock_pool_manager.py's pattern of
// every dashboard route pushing onto stock_update_queue rather than
// mutating stocks_pool directly.
package ingress

import (
	"context"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

// Enqueuer is the subset of Pool that Ingress depends on.
type Enqueuer interface {
	Enqueue(caller model.CallerTag, codes []model.StockCode)
}

// Prioritizer lets Refresh jump a code straight to the front of the
// scraper's queue instead of waiting for the next routine sweep.
type Prioritizer interface {
	RequestPriorityFetch(ctx context.Context, codes []model.StockCode) error
}

// Ingress routes dashboard-originated interest into the pool under the
// caller tag that identifies which dashboard asked for it.
type Ingress struct {
	pool        Enqueuer
	prioritizer Prioritizer
	log         *zap.Logger
}

// New returns an Ingress writing into pool. prioritizer may be nil, in
// which case Refresh only enqueues into the pool's normal routing.
func New(pool Enqueuer, prioritizer Prioritizer, log *zap.Logger) *Ingress {
	return &Ingress{pool: pool, prioritizer: prioritizer, log: log}
}

// Watchlist registers codes as watch-list interest (fast, per-code
// polling).
func (i *Ingress) Watchlist(codes []model.StockCode) {
	i.pool.Enqueue(model.CallerWatchlist, codes)
}

// Strategy registers codes as strategy-dashboard interest (slow/scrape
// batch polling).
func (i *Ingress) Strategy(codes []model.StockCode) {
	i.pool.Enqueue(model.CallerStrategy, codes)
}

// LimitUp registers codes as limit-up-dashboard interest.
func (i *Ingress) LimitUp(codes []model.StockCode) {
	i.pool.Enqueue(model.CallerLimitUp, codes)
}

// Bootstrap registers codes read from the watch-list file at startup,
// before the scheduler's first tick, mirroring AppServer.py's
// sync_latest_stocks() call ahead of start().
func (i *Ingress) Bootstrap(codes []model.StockCode) {
	i.pool.Enqueue(model.CallerBootstrap, codes)
}

// Refresh registers codes from an explicit dashboard refresh_request and,
// if a prioritizer is wired, also requests an immediate scrape fetch
// rather than waiting for the next routine sweep. The fast/watchlist path
// already answers refreshes quickly on its own, so the priority fetch is
// fire-and-forget with its own background context: a refresh button must
// not block on it, and its outcome surfaces later through the normal
// delta-emission path regardless.
func (i *Ingress) Refresh(codes []model.StockCode) {
	i.pool.Enqueue(model.CallerRefresh, codes)
	if i.prioritizer == nil || len(codes) == 0 {
		return
	}
	go func() {
		if err := i.prioritizer.RequestPriorityFetch(context.Background(), codes); err != nil {
			i.log.Warn("priority refresh fetch failed", zap.Error(err))
		}
	}()
}
