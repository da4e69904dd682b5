package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

// PoolView is the subset of the Interest Set the Gateway needs to resolve
// a refresh_realtime_data request's dashboard names into codes.
type PoolView interface {
	CodesForCaller(caller model.CallerTag) []model.StockCode
	AllCodes() []model.StockCode
}

// CacheView is the subset of the Quote Cache the Gateway needs to answer a
// refresh_realtime_data request with an immediate snapshot.
type CacheView interface {
	Get(codes []model.StockCode) map[model.StockCode]model.Quote
}

// Refresher lets the Gateway nudge a priority fetch for the codes behind a
// refresh_realtime_data request, instead of only answering from whatever
// is cached.
type Refresher interface {
	Refresh(codes []model.StockCode)
}

// dashboardCallers maps a refresh_realtime_data dashboard name onto the
// caller tag whose pool membership answers it. "all" is handled
// separately: it expands to every pooled code regardless of caller.
var dashboardCallers = map[string]model.CallerTag{
	"watchlist": model.CallerWatchlist,
	"strategy":  model.CallerStrategy,
	"limitup":   model.CallerLimitUp,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the process-wide set of connected dashboard sessions.
type Gateway struct {
	pool  PoolView
	cache CacheView
	log   *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	nextID    func() string
	refresher Refresher
}

// New builds a Gateway over pool and cache.
func New(pool PoolView, cache CacheView, log *zap.Logger) *Gateway {
	return &Gateway{
		pool:    pool,
		cache:   cache,
		log:     log,
		clients: make(map[*Client]struct{}),
		nextID:  newClientID,
	}
}

// SetRefresher wires a Refresher the Gateway calls on every
// refresh_realtime_data that names specific dashboards (not on an "all"
// request), in addition to answering from cache. Called once by
// the Engine after construction, since Ingress itself depends on the pool
// the Gateway is also built from.
func (g *Gateway) SetRefresher(r Refresher) {
	g.refresher = r
}

// ServeHTTP upgrades the connection and runs the session until the client
// disconnects, mirroring HandleWebSocket's split of a detached writePump
// alongside a blocking readPump on the handler's own goroutine.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("gateway upgrade failed", zap.Error(err))
		return
	}
	client := newClient(g.nextID(), conn, g.log)

	g.mu.Lock()
	g.clients[client] = struct{}{}
	g.mu.Unlock()

	go client.writePump()
	g.readPump(client)
}

func (g *Gateway) readPump(c *Client) {
	defer g.disconnect(c)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := parseClientMessage(raw)
		if err != nil {
			g.log.Debug("gateway client sent unparseable message", zap.Error(err))
			continue
		}
		if msg.Action == "refresh_realtime_data" {
			g.handleRefreshRequest(c, msg.Dashboards)
		}
	}
}

func (g *Gateway) disconnect(c *Client) {
	c.close()
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
}

// handleRefreshRequest resolves dashboards into a code set, switches the
// client's subscription to that set, and pushes an immediate snapshot of
// whatever is already cached for it.
func (g *Gateway) handleRefreshRequest(c *Client, dashboards []string) {
	codes, all := g.codesForDashboards(dashboards)
	c.setSubscription(codes, all)

	snapshotCodes := codes
	if all {
		snapshotCodes = g.pool.AllCodes()
	}
	if g.refresher != nil && !all {
		g.refresher.Refresh(snapshotCodes)
	}
	snapshot := g.cache.Get(snapshotCodes)
	if len(snapshot) == 0 {
		return
	}
	payload, err := marshalQuotes(snapshot)
	if err != nil {
		g.log.Error("marshal refresh snapshot failed", zap.Error(err))
		return
	}
	c.enqueue(payload)
}

func (g *Gateway) codesForDashboards(dashboards []string) ([]model.StockCode, bool) {
	var codes []model.StockCode
	for _, name := range dashboards {
		if name == "all" {
			return nil, true
		}
		caller, ok := dashboardCallers[name]
		if !ok {
			g.log.Debug("refresh_realtime_data named an unknown dashboard", zap.String("dashboard", name))
			continue
		}
		codes = append(codes, g.pool.CodesForCaller(caller)...)
	}
	return codes, false
}

// Emit pushes delta to every subscribed client, filtered to the codes each
// one asked for. Satisfies scheduler.Emitter.
func (g *Gateway) Emit(delta map[model.StockCode]model.Quote) {
	if len(delta) == 0 {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for c := range g.clients {
		relevant := make(map[model.StockCode]model.Quote)
		for code, q := range delta {
			if c.wants(code) {
				relevant[code] = q
			}
		}
		if len(relevant) == 0 {
			continue
		}
		payload, err := marshalQuotes(relevant)
		if err != nil {
			g.log.Error("marshal emit payload failed", zap.Error(err))
			continue
		}
		c.enqueue(payload)
	}
}

// Size returns the number of connected clients, for metrics.
func (g *Gateway) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// outgoingQuote is the wire shape of one emitted quote:
// {RealtimePrice, RealtimeChange}, matching the realtime_update event
// documented for this transport.
type outgoingQuote struct {
	RealtimePrice  string `json:"RealtimePrice"`
	RealtimeChange string `json:"RealtimeChange"`
}

// marshalQuotes emits the quote map directly, with no envelope:
// {code: {RealtimePrice, RealtimeChange}, ...}.
func marshalQuotes(quotes map[model.StockCode]model.Quote) ([]byte, error) {
	out := make(map[model.StockCode]outgoingQuote, len(quotes))
	for code, q := range quotes {
		out[code] = outgoingQuote{
			RealtimePrice:  q.Price.String(),
			RealtimeChange: q.ChangePct.String(),
		}
	}
	return json.Marshal(out)
}

func newClientID() string {
	return uuid.NewString()
}
