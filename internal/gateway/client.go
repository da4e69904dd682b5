// Package gateway is the Subscription Gateway: it holds one websocket
// session per connected dashboard and pushes quote deltas to whichever
// sessions asked for them. Grounded on socket.go's Client/writePump/
// readPump/close shape and realtime.go's channel-subscriber map and
// broadcastToChannel drop policy, adapted to a per-code rather than
// per-channel-name subscription.
package gateway

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

// Client is one connected dashboard session.
type Client struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *zap.Logger

	mu            sync.Mutex
	subscribed    map[model.StockCode]struct{}
	subscribedAll bool
}

func newClient(id string, ws *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		id:         id,
		ws:         ws,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		log:        log,
		subscribed: make(map[model.StockCode]struct{}),
	}
}

func (c *Client) setSubscription(codes []model.StockCode, all bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedAll = all
	c.subscribed = make(map[model.StockCode]struct{}, len(codes))
	for _, code := range codes {
		c.subscribed[code] = struct{}{}
	}
}

func (c *Client) wants(code model.StockCode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribedAll {
		return true
	}
	_, ok := c.subscribed[code]
	return ok
}

// enqueue drops the message rather than blocking if the client's send
// buffer is full, matching realtime.go's broadcastToChannel policy: a slow
// reader loses updates, it does not stall the rest of the fleet.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warn("gateway client send buffer full, dropping update", zap.String("client", c.id))
	}
}

// writePump drains send onto the websocket until done closes or a write
// fails, then closes the connection.
func (c *Client) writePump() {
	defer c.ws.Close()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

type refreshRequest struct {
	Action     string   `json:"action"`
	Dashboards []string `json:"dashboards"`
}

func parseClientMessage(raw []byte) (refreshRequest, error) {
	var msg refreshRequest
	err := json.Unmarshal(raw, &msg)
	return msg, err
}
