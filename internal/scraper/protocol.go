// Package scraper coordinates fetch sessions against the external
// headless-browser worker over a Redis list+pubsub bus. Grounded on
// queue.go's shape (RPush a job, Subscribe for status, watchdog for
// retry) and selenium_server.py's batch/completion-marker wire protocol.
package scraper

import (
	"encoding/json"

	"github.com/zheewang/stockrealtime/internal/adapters"
	"github.com/zheewang/stockrealtime/internal/model"
)

// requestMessage is pushed (RPush) onto the high or low priority queue for
// the worker to pop. The wire field is "stocks", matching
// selenium_server.py's fetch task dict.
type requestMessage struct {
	SessionID string   `json:"session_id"`
	Codes     []string `json:"stocks"`
}

// replyMessage is published on the reply channel by the worker, once per
// batch plus a final message with Done set, matching selenium_server.py's
// fetch_stock_data: stream each successful batch of 30, then {"done": true}.
type replyMessage struct {
	SessionID string                            `json:"session_id"`
	Batch     map[string]adapters.ScrapeRecord `json:"batch,omitempty"`
	Done      bool                              `json:"done"`
}

func (r replyMessage) quotes(now int64) map[model.StockCode]model.Quote {
	batch := make(map[model.StockCode]adapters.ScrapeRecord, len(r.Batch))
	for code, rec := range r.Batch {
		batch[model.StockCode(code)] = rec
	}
	return adapters.NormalizeScrape(batch, now)
}

func marshalRequest(sessionID string, codes []model.StockCode) ([]byte, error) {
	symbols := make([]string, len(codes))
	for i, c := range codes {
		symbols[i] = string(c)
	}
	return json.Marshal(requestMessage{SessionID: sessionID, Codes: symbols})
}

func unmarshalReply(payload []byte) (replyMessage, error) {
	var msg replyMessage
	err := json.Unmarshal(payload, &msg)
	return msg, err
}
