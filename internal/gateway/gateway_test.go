package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

type fakePool struct {
	byCaller map[model.CallerTag][]model.StockCode
	all      []model.StockCode
}

func (p *fakePool) CodesForCaller(caller model.CallerTag) []model.StockCode { return p.byCaller[caller] }
func (p *fakePool) AllCodes() []model.StockCode                             { return p.all }

type fakeCache struct {
	values map[model.StockCode]model.Quote
}

func (c *fakeCache) Get(codes []model.StockCode) map[model.StockCode]model.Quote {
	out := make(map[model.StockCode]model.Quote)
	for _, code := range codes {
		if q, ok := c.values[code]; ok {
			out[code] = q
		}
	}
	return out
}

func newTestServer(t *testing.T, g *Gateway) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	server := httptest.NewServer(g)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return server, conn
}

func TestRefreshRequestDeliversSnapshot(t *testing.T) {
	pool := &fakePool{byCaller: map[model.CallerTag][]model.StockCode{
		model.CallerWatchlist: {"000001"},
	}}
	cache := &fakeCache{values: map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromInt(10), ChangePct: decimal.NewFromInt(1)},
	}}
	g := New(pool, cache, zap.NewNop())
	_, conn := newTestServer(t, g)

	require.NoError(t, conn.WriteJSON(refreshRequest{Action: "refresh_realtime_data", Dashboards: []string{"watchlist"}}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[model.StockCode]outgoingQuote
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg, model.StockCode("000001"))
	assert.Equal(t, "10", msg["000001"].RealtimePrice)
}

func TestEmitOnlyReachesSubscribedClients(t *testing.T) {
	pool := &fakePool{
		byCaller: map[model.CallerTag][]model.StockCode{model.CallerWatchlist: {"000001"}},
		all:      []model.StockCode{"000001", "600519"},
	}
	cache := &fakeCache{values: map[model.StockCode]model.Quote{}}
	g := New(pool, cache, zap.NewNop())
	_, conn := newTestServer(t, g)

	require.NoError(t, conn.WriteJSON(refreshRequest{Action: "refresh_realtime_data", Dashboards: []string{"watchlist"}}))
	time.Sleep(50 * time.Millisecond) // let the server process the subscription

	g.Emit(map[model.StockCode]model.Quote{
		"600519": {Price: decimal.NewFromInt(1800)},
	})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "client subscribed only to watchlist codes must not receive 600519's update")
}

func TestEmitReachesAllSubscribers(t *testing.T) {
	pool := &fakePool{all: []model.StockCode{"000001", "600519"}}
	cache := &fakeCache{values: map[model.StockCode]model.Quote{}}
	g := New(pool, cache, zap.NewNop())
	_, conn := newTestServer(t, g)

	require.NoError(t, conn.WriteJSON(refreshRequest{Action: "refresh_realtime_data", Dashboards: []string{"all"}}))
	time.Sleep(50 * time.Millisecond)

	g.Emit(map[model.StockCode]model.Quote{
		"600519": {Price: decimal.NewFromInt(1800), ChangePct: decimal.NewFromInt(-1)},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[model.StockCode]outgoingQuote
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg, model.StockCode("600519"))
}

func TestCodesForDashboardsUnknownNameIsSkippedNotFatal(t *testing.T) {
	pool := &fakePool{byCaller: map[model.CallerTag][]model.StockCode{model.CallerStrategy: {"000002"}}}
	g := New(pool, &fakeCache{}, zap.NewNop())

	codes, all := g.codesForDashboards([]string{"not-a-real-dashboard", "strategy"})

	assert.False(t, all)
	assert.Equal(t, []model.StockCode{"000002"}, codes)
}

type fakeRefresher struct {
	mu   sync.Mutex
	seen [][]model.StockCode
}

func (r *fakeRefresher) Refresh(codes []model.StockCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, codes)
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestRefreshRequestNudgesRefresherForNamedDashboard(t *testing.T) {
	pool := &fakePool{byCaller: map[model.CallerTag][]model.StockCode{model.CallerWatchlist: {"000001"}}}
	g := New(pool, &fakeCache{values: map[model.StockCode]model.Quote{}}, zap.NewNop())
	refresher := &fakeRefresher{}
	g.SetRefresher(refresher)
	_, conn := newTestServer(t, g)

	require.NoError(t, conn.WriteJSON(refreshRequest{Action: "refresh_realtime_data", Dashboards: []string{"watchlist"}}))

	require.Eventually(t, func() bool { return refresher.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRefreshRequestForAllSkipsRefresher(t *testing.T) {
	pool := &fakePool{all: []model.StockCode{"000001", "600519"}}
	g := New(pool, &fakeCache{values: map[model.StockCode]model.Quote{}}, zap.NewNop())
	refresher := &fakeRefresher{}
	g.SetRefresher(refresher)
	_, conn := newTestServer(t, g)

	require.NoError(t, conn.WriteJSON(refreshRequest{Action: "refresh_realtime_data", Dashboards: []string{"all"}}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, refresher.count())
}

func TestMarshalQuotesRoundTrip(t *testing.T) {
	payload, err := marshalQuotes(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.5), ChangePct: decimal.NewFromFloat(1.23), LastUpdated: 42},
	})
	require.NoError(t, err)

	var decoded map[model.StockCode]outgoingQuote
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "10.5", decoded["000001"].RealtimePrice)
	assert.Equal(t, "1.23", decoded["000001"].RealtimeChange)
}
