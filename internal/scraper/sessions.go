package scraper

import (
	"sync"
	"time"

	"github.com/zheewang/stockrealtime/internal/model"
)

// sessionTable tracks in-flight FetchSessions. Kept separate from the bus
// plumbing so the retry/expiry decisions can be unit tested without a
// Redis connection.
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*model.FetchSession
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*model.FetchSession)}
}

func (t *sessionTable) create(id string, codes []model.StockCode, deadline int64) *model.FetchSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := model.NewFetchSession(id, codes, deadline)
	t.sessions[id] = s
	return s
}

func (t *sessionTable) applyReply(id string, batch map[model.StockCode]model.Quote, done bool) (*model.FetchSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	s.ApplyBatch(batch)
	finished := done || s.Satisfied()
	if finished {
		delete(t.sessions, id)
	}
	return s, finished
}

// expired returns the sessions whose deadline has passed, as of now.
func (t *sessionTable) expired(now int64) []*model.FetchSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*model.FetchSession
	for _, s := range t.sessions {
		if now >= s.Deadline {
			out = append(out, s)
		}
	}
	return out
}

func (t *sessionTable) retry(s *model.FetchSession, deadline int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.Attempts++
	s.Deadline = deadline
}

func (t *sessionTable) drop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// deadlineFor computes a session's deadline: at least minTimeout, scaled up
// for large batches by perCodeBudget, mirroring selenium_server.py's 60s
// retry window scaled to however many codes are in the batch.
func deadlineFor(now time.Time, minTimeout, perCodeBudget time.Duration, codeCount int) int64 {
	budget := time.Duration(codeCount) * perCodeBudget
	if budget < minTimeout {
		budget = minTimeout
	}
	return now.Add(budget).UnixNano()
}
