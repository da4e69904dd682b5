// Package scheduler runs one tick loop per data source, grounded on the
// Python original's RealtimeUpdater.data_update_task/pool_update_task
// pair: recompute which pooled codes are stale, fetch or dispatch them,
// then sleep until the next wake-up per the trading calendar.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zheewang/stockrealtime/internal/calendar"
	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/metrics"
	"github.com/zheewang/stockrealtime/internal/model"
	"github.com/zheewang/stockrealtime/internal/pool"
	"github.com/zheewang/stockrealtime/internal/quotecache"
	"github.com/zheewang/stockrealtime/internal/upstream"
)

// Emitter hands a set of changed quotes to whatever pushes them out to
// subscribers; implemented by the Subscription Gateway.
type Emitter interface {
	Emit(delta map[model.StockCode]model.Quote)
}

// Fetcher is satisfied by upstream.FastClient and upstream.SlowClient: a
// synchronous round trip that returns what it got.
type Fetcher interface {
	Fetch(ctx context.Context, codes []model.StockCode) upstream.FetchResult
}

// Dispatcher is satisfied by upstream.ScrapeClient: fire-and-forget, the
// reply arrives later through the Scraper Coordinator's sink.
type Dispatcher interface {
	Dispatch(ctx context.Context, codes []model.StockCode) error
}

// Loop owns one source's tick cadence. Exactly one fetch or dispatch runs
// at a time per Loop: the dispatch semaphore is a weight-1 TryAcquire, so a
// round trip that outlives the tick interval causes the next tick to skip
// rather than pile up concurrent requests against the same source.
type Loop struct {
	name    string
	source  pool.Source
	pool    *pool.Pool
	cache   *quotecache.Cache
	cal     *calendar.Calendar
	cfg     config.SourceConfig
	emitter Emitter
	log     *zap.Logger

	sem  *semaphore.Weighted
	work func(ctx context.Context, codes []model.StockCode)

	nowFn func() time.Time
}

func newLoop(name string, source pool.Source, p *pool.Pool, cache *quotecache.Cache, cal *calendar.Calendar, cfg config.SourceConfig, emitter Emitter, log *zap.Logger) *Loop {
	return &Loop{
		name:    name,
		source:  source,
		pool:    p,
		cache:   cache,
		cal:     cal,
		cfg:     cfg,
		emitter: emitter,
		log:     log,
		sem:     semaphore.NewWeighted(1),
		nowFn:   time.Now,
	}
}

// NewFastLoop drives the watch-list-exclusive low-latency source.
func NewFastLoop(p *pool.Pool, cache *quotecache.Cache, cal *calendar.Calendar, cfg config.SourceConfig, fetcher Fetcher, emitter Emitter, log *zap.Logger) *Loop {
	l := newLoop("fast", pool.SourceFast, p, cache, cal, cfg, emitter, log)
	l.work = func(ctx context.Context, codes []model.StockCode) { l.ingest(ctx, codes, fetcher) }
	return l
}

// NewSlowLoop drives the batched non-watch-list source.
func NewSlowLoop(p *pool.Pool, cache *quotecache.Cache, cal *calendar.Calendar, cfg config.SourceConfig, fetcher Fetcher, emitter Emitter, log *zap.Logger) *Loop {
	l := newLoop("slow", pool.SourceSlow, p, cache, cal, cfg, emitter, log)
	l.work = func(ctx context.Context, codes []model.StockCode) { l.ingest(ctx, codes, fetcher) }
	return l
}

// NewScrapeLoop drives the external-worker source. It never writes the
// cache itself; the Scraper Coordinator's sink does that when a fetch
// session finishes, asynchronously with respect to this loop's ticks.
func NewScrapeLoop(p *pool.Pool, cache *quotecache.Cache, cal *calendar.Calendar, cfg config.SourceConfig, dispatcher Dispatcher, log *zap.Logger) *Loop {
	l := newLoop("scrape", pool.SourceScrape, p, cache, cal, cfg, nil, log)
	l.work = func(ctx context.Context, codes []model.StockCode) {
		if err := dispatcher.Dispatch(ctx, codes); err != nil {
			l.log.Warn("scrape dispatch failed", zap.Error(err), zap.Int("codes", len(codes)))
		}
	}
	return l
}

func (l *Loop) ingest(ctx context.Context, codes []model.StockCode, fetcher Fetcher) {
	started := l.nowFn()
	result := fetcher.Fetch(ctx, codes)

	status := "ok"
	if len(result.Failed) > 0 {
		status = "error"
		l.log.Debug("source fetch left codes unresolved", zap.String("source", l.name), zap.Int("failed", len(result.Failed)))
	}
	metrics.RecordFetch(l.name, status, l.nowFn().Sub(started).Seconds())

	if len(result.Quotes) == 0 {
		return
	}
	l.cache.PutMany(result.Quotes)
	if delta := l.cache.Delta(result.Quotes); len(delta) > 0 && l.emitter != nil {
		metrics.RecordQuotesEmitted(l.name, len(delta))
		l.emitter.Emit(delta)
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		now := l.nowFn()
		codes := l.pool.SnapshotFor(l.source)
		expired := expiredCodes(codes, l.cache, l.cfg.StalenessSeconds, now)

		if l.cfg.BatchSize > 0 && len(expired) > l.cfg.BatchSize {
			expired = expired[:l.cfg.BatchSize]
		}

		if len(expired) > 0 {
			if l.sem.TryAcquire(1) {
				go func(codes []model.StockCode) {
					defer l.sem.Release(1)
					l.work(ctx, codes)
				}(expired)
			} else {
				l.log.Debug("previous dispatch still in flight, skipping tick", zap.String("source", l.name))
			}
		}

		wait := l.cal.NextWakeUp(now, l.cfg.TradingInterval, l.cfg.NonTradingInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// expiredCodes returns the codes among codes that are either uncached or
// older than staleness, as of now.
func expiredCodes(codes []model.StockCode, cache *quotecache.Cache, staleness time.Duration, now time.Time) []model.StockCode {
	if len(codes) == 0 {
		return nil
	}
	cached := cache.Get(codes)
	var out []model.StockCode
	for _, code := range codes {
		q, ok := cached[code]
		if !ok {
			out = append(out, code)
			continue
		}
		if now.UnixNano()-q.LastUpdated >= int64(staleness) {
			out = append(out, code)
		}
	}
	return out
}
