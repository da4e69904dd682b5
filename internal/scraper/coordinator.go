package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/metrics"
	"github.com/zheewang/stockrealtime/internal/model"
	"github.com/zheewang/stockrealtime/internal/upstream"
)

var _ upstream.ScraperRequester = (*Coordinator)(nil)

// Sink receives the quotes a fetch session collected, as soon as the
// session finishes (by completion marker, full coverage, or a deadline
// passing after its last allowed attempt).
type Sink interface {
	OnBatch(batch map[model.StockCode]model.Quote)
}

// Coordinator issues fetch sessions to the external scraper worker over a
// Redis list (request) and pubsub channel (reply), in the same
// RPush/Subscribe/watchdog shape as queue.go's QueueTask/subscribeToUpdates
// pair.
type Coordinator struct {
	bus   *redis.Client
	queue config.QueueConfig

	maxAttempts   int
	minTimeout    time.Duration
	perCodeBudget time.Duration

	sink  Sink
	log   *zap.Logger
	now   func() time.Time
	newID func() string

	sessions *sessionTable
}

// New builds a Coordinator over an already-connected bus. Only queue's
// list and reply-channel names are used here; its Host/Port/DB fields are
// not read.
func New(bus *redis.Client, queue config.QueueConfig, maxAttempts int, minTimeout, perCodeBudget time.Duration, sink Sink, log *zap.Logger) *Coordinator {
	return &Coordinator{
		bus:           bus,
		queue:         queue,
		maxAttempts:   maxAttempts,
		minTimeout:    minTimeout,
		perCodeBudget: perCodeBudget,
		sink:          sink,
		log:           log,
		now:           time.Now,
		newID:         uuid.NewString,
		sessions:      newSessionTable(),
	}
}

// RequestFetch satisfies upstream.ScraperRequester: a routine staleness
// sweep, published to the low-priority queue.
func (c *Coordinator) RequestFetch(ctx context.Context, codes []model.StockCode) error {
	return c.publish(ctx, codes, c.queue.LowPriorityQueue)
}

// RequestPriorityFetch is for a session triggered by a user waiting on a
// dashboard right now (an explicit refresh), published to the high-priority
// queue ahead of routine sweeps.
func (c *Coordinator) RequestPriorityFetch(ctx context.Context, codes []model.StockCode) error {
	return c.publish(ctx, codes, c.queue.HighPriorityQueue)
}

func (c *Coordinator) publish(ctx context.Context, codes []model.StockCode, queueName string) error {
	if len(codes) == 0 {
		return nil
	}
	id := c.newID()
	deadline := deadlineFor(c.now(), c.minTimeout, c.perCodeBudget, len(codes))
	c.sessions.create(id, codes, deadline)

	payload, err := marshalRequest(id, codes)
	if err != nil {
		return fmt.Errorf("marshal scrape request %s: %w", id, err)
	}
	if err := c.bus.RPush(ctx, queueName, payload).Err(); err != nil {
		c.sessions.drop(id)
		return fmt.Errorf("push scrape request %s to %s: %w", id, queueName, err)
	}
	return nil
}

// Run subscribes to the reply channel and the deadline watchdog loop until
// ctx is cancelled. Call it once from the Engine's worker group.
func (c *Coordinator) Run(ctx context.Context, watchdogInterval time.Duration) error {
	pubsub := c.bus.Subscribe(ctx, c.queue.ReplyChannel)
	defer pubsub.Close()

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	replies := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-replies:
			if !ok {
				return nil
			}
			c.handleReply(msg.Payload)
		case <-ticker.C:
			c.sweepExpired(ctx)
		}
	}
}

func (c *Coordinator) handleReply(payload string) {
	reply, err := unmarshalReply([]byte(payload))
	if err != nil {
		c.log.Warn("scrape reply unparseable", zap.Error(err))
		return
	}
	quotes := reply.quotes(c.now().UnixNano())
	session, finished := c.sessions.applyReply(reply.SessionID, quotes, reply.Done)
	if session == nil {
		c.log.Debug("scrape reply for unknown or already-finished session", zap.String("session_id", reply.SessionID))
		return
	}
	if finished {
		metrics.RecordScrapeSessionOutcome("completed")
		c.finalize(session)
	}
}

func (c *Coordinator) sweepExpired(ctx context.Context) {
	for _, session := range c.sessions.expired(c.now().UnixNano()) {
		if session.Satisfied() {
			continue // reply and expiry raced; handleReply already finalized it
		}
		if session.Attempts >= c.maxAttempts {
			c.log.Warn("scrape session exhausted retries, giving up on remaining codes",
				zap.String("session_id", session.SessionID),
				zap.Int("remaining", len(session.CodesRemaining)))
			c.sessions.drop(session.SessionID)
			metrics.RecordScrapeSessionOutcome("dropped")
			c.finalize(session)
			continue
		}

		remaining := session.RemainingCodes()
		deadline := deadlineFor(c.now(), c.minTimeout, c.perCodeBudget, len(remaining))
		c.sessions.retry(session, deadline)
		metrics.RecordScrapeSessionOutcome("retried")

		payload, err := marshalRequest(session.SessionID, remaining)
		if err != nil {
			c.log.Error("re-marshal scrape retry failed", zap.Error(err))
			continue
		}
		if err := c.bus.RPush(ctx, c.queue.LowPriorityQueue, payload).Err(); err != nil {
			c.log.Error("re-push scrape retry failed", zap.Error(err))
		}
	}
}

func (c *Coordinator) finalize(session *model.FetchSession) {
	if len(session.Received) == 0 {
		return
	}
	c.sink.OnBatch(session.Received)
}
