// Package engine wires every other package into a single running
// process: the interest set, the quote cache, the three source
// schedules, the scraper coordinator, the subscription gateway, and the
// watch-list file. Grounded on AppServer.py's sync_latest_stocks() ->
// start() bootstrap ordering, with one service object coordinating worker
// goroutines under an errgroup.
package engine

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zheewang/stockrealtime/internal/calendar"
	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/data"
	"github.com/zheewang/stockrealtime/internal/gateway"
	"github.com/zheewang/stockrealtime/internal/ingress"
	"github.com/zheewang/stockrealtime/internal/metrics"
	"github.com/zheewang/stockrealtime/internal/model"
	"github.com/zheewang/stockrealtime/internal/pool"
	"github.com/zheewang/stockrealtime/internal/quotecache"
	"github.com/zheewang/stockrealtime/internal/scheduler"
	"github.com/zheewang/stockrealtime/internal/scraper"
	"github.com/zheewang/stockrealtime/internal/server"
	"github.com/zheewang/stockrealtime/internal/upstream"
	"github.com/zheewang/stockrealtime/internal/watchlist"
)

// cacheSink adapts the Scraper Coordinator's batch delivery onto the same
// cache-write-then-emit path the scheduler's fast/slow loops use, so a
// scrape reply and a slow-source tick look identical from the Gateway's
// point of view.
type cacheSink struct {
	cache   *quotecache.Cache
	emitter scheduler.Emitter
	log     *zap.Logger
}

func (s *cacheSink) OnBatch(batch map[model.StockCode]model.Quote) {
	if len(batch) == 0 {
		return
	}
	delta := s.cache.Delta(batch)
	s.cache.PutMany(batch)
	if len(delta) > 0 {
		metrics.RecordQuotesEmitted("scrape", len(delta))
		s.emitter.Emit(delta)
	}
}

// Engine owns every long-lived component and coordinates their
// lifecycle.
type Engine struct {
	cfg  *config.Config
	log  *zap.Logger
	conn *data.Conn

	pool      *pool.Pool
	cache     *quotecache.Cache
	cal       *calendar.Calendar
	watchlist *watchlist.Store
	gateway   *gateway.Gateway
	ingress   *ingress.Ingress
	scraper   *scraper.Coordinator
	metrics   *metrics.Server
	http      *server.Server

	loops []*scheduler.Loop
}

// New builds an Engine from cfg. conn's Cache (Redis) backs the scraper's
// message bus; conn.DB, if non-nil, is unused by the core loop and is
// only held so callers can build historical-data routes alongside this
// engine's own routes on the same process.
func New(cfg *config.Config, conn *data.Conn, log *zap.Logger) *Engine {
	now := time.Now()
	loc := now.Location()
	cal := calendar.New(loc, calendar.GenerateWeekdays(now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0), loc))

	p := pool.New(log, 4096)
	cache := quotecache.New(log, p)
	wl := watchlist.New(cfg.WatchlistPath)
	gw := gateway.New(p, cache, log)

	coord := scraper.New(conn.Cache, cfg.Queue, cfg.ScraperMaxAttempts, cfg.ScraperMinTimeout, cfg.ScraperPerCodeBudget, &cacheSink{cache: cache, emitter: gw, log: log}, log)
	ing := ingress.New(p, coord, log)
	gw.SetRefresher(ing)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	fastClient := upstream.NewFastClient(cfg.Sources["fast"], httpClient, log)
	slowClient := upstream.NewSlowClient(cfg.Sources["slow"], httpClient, log)
	scrapeClient := upstream.NewScrapeClient(coord)

	loops := []*scheduler.Loop{
		scheduler.NewFastLoop(p, cache, cal, cfg.Sources["fast"], fastClient, gw, log),
		scheduler.NewSlowLoop(p, cache, cal, cfg.Sources["slow"], slowClient, gw, log),
		scheduler.NewScrapeLoop(p, cache, cal, cfg.Sources["scrape"], scrapeClient, log),
	}

	metricsSrv := metrics.NewServer(":9090", metrics.SizeFuncs{
		PoolSize:    func() float64 { return float64(p.Size()) },
		CacheSize:   func() float64 { return float64(cache.Size()) },
		GatewaySize: func() float64 { return float64(gw.Size()) },
	})

	httpSrv := server.New(cfg.ServerHost+":"+cfg.ServerPort, gw, wl, ing, log)

	return &Engine{
		cfg: cfg, log: log, conn: conn,
		pool: p, cache: cache, cal: cal, watchlist: wl, gateway: gw, ingress: ing,
		scraper: coord, metrics: metricsSrv, http: httpSrv, loops: loops,
	}
}

// Start seeds the pool from the watch-list file, then launches every
// worker goroutine under ctx. It returns once every goroutine has
// returned (normally only on ctx cancellation or a fatal error from one
// of them), mirroring errgroup.WithContext's fail-fast semantics.
func (e *Engine) Start(ctx context.Context) error {
	seed, err := e.watchlist.Load()
	if err != nil {
		return err
	}
	e.ingress.Bootstrap(seed)
	e.pool.Apply(time.Now())

	e.metrics.Start(e.log)
	e.http.Start(e.log)

	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range e.loops {
		loop := loop
		g.Go(func() error { return loop.Run(gctx) })
	}
	g.Go(func() error { return e.scraper.Run(gctx, e.cfg.ScraperMinTimeout/2) })
	g.Go(func() error { return e.maintain(gctx) })

	return g.Wait()
}

// maintain periodically drains the pool's ingress queue and evicts
// entries that have gone untouched past PoolTTL, keeping the quote cache
// in sync so its keys never outlive the pool entries they came from.
func (e *Engine) maintain(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			e.pool.Apply(now)
			if evicted := e.pool.Evict(now, e.cfg.PoolTTL); len(evicted) > 0 {
				e.cache.Delete(evicted)
			}
		}
	}
}

// Stop gracefully shuts down the HTTP and metrics servers. The worker
// goroutines launched by Start exit on their own once ctx (passed to
// Start) is cancelled; Stop only needs to tear down listeners.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.http.Stop(ctx); err != nil {
		e.log.Warn("http server shutdown error", zap.Error(err))
	}
	return e.metrics.Stop(ctx)
}
