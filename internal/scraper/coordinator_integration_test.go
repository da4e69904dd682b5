package scraper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/adapters"
	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/model"
)

// fakeSink collects the batches the Coordinator hands it, standing in for
// the Quote Cache the real Engine wires up.
type fakeSink struct {
	batches chan map[model.StockCode]model.Quote
}

func (f *fakeSink) OnBatch(batch map[model.StockCode]model.Quote) {
	f.batches <- batch
}

// TestCoordinatorRoundTripsThroughRedis exercises the full request/reply
// protocol against a real Redis instance: a fake worker BLPops the request
// off the low-priority queue and publishes back a batch plus the done
// marker, the way selenium_server.py's fetch_stock_data does.
func TestCoordinatorRoundTripsThroughRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)
	bus := goredis.NewClient(opts)
	t.Cleanup(func() { _ = bus.Close() })

	queueCfg := config.QueueConfig{
		RequestChannel:    "scrape:request",
		ReplyChannel:      "scrape:reply",
		HighPriorityQueue: "scrape:tasks:high",
		LowPriorityQueue:  "scrape:tasks:low",
	}
	sink := &fakeSink{batches: make(chan map[model.StockCode]model.Quote, 1)}
	coord := New(bus, queueCfg, 3, 5*time.Second, time.Second, sink, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coord.Run(runCtx, 200*time.Millisecond)

	require.NoError(t, coord.RequestFetch(ctx, []model.StockCode{"000001", "600519"}))

	// fake worker: pop the request, reply with one batch then the marker.
	popped, err := bus.BLPop(ctx, 5*time.Second, queueCfg.LowPriorityQueue).Result()
	require.NoError(t, err)
	require.Len(t, popped, 2)

	var req requestMessage
	require.NoError(t, json.Unmarshal([]byte(popped[1]), &req))
	require.ElementsMatch(t, []string{"000001", "600519"}, req.Codes)

	reply := replyMessage{
		SessionID: req.SessionID,
		Batch: map[string]adapters.ScrapeRecord{
			"000001": {RealtimePrice: rawNumber(`"10.50"`), RealtimeChange: rawNumber(`"1.23"`)},
			"600519": {RealtimePrice: rawNumber(`"1800.00"`), RealtimeChange: rawNumber(`"-0.50"`)},
		},
		Done: true,
	}
	payload, err := json.Marshal(reply)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, queueCfg.ReplyChannel, payload).Err())

	select {
	case batch := <-sink.batches:
		require.Len(t, batch, 2)
		require.Contains(t, batch, model.StockCode("000001"))
		require.Contains(t, batch, model.StockCode("600519"))
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator never delivered the batch to the sink")
	}
}

func rawNumber(s string) json.RawMessage { return json.RawMessage(s) }
