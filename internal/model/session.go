package model

// FetchSession tracks one in-flight request to the external scraper
// worker. The coordinator finishes it when CodesRemaining empties or the
// worker's completion marker arrives, and retries or drops it once
// Deadline passes. Satisfied reports only the first of these conditions.
type FetchSession struct {
	SessionID      string
	CodesRemaining map[StockCode]struct{}
	Attempts       int
	Deadline       int64 // unix nanos
	Received       map[StockCode]Quote
}

// NewFetchSession creates a session requesting codes, with attempts at 1
// (the initial publish counts as the first attempt).
func NewFetchSession(sessionID string, codes []StockCode, deadline int64) *FetchSession {
	remaining := make(map[StockCode]struct{}, len(codes))
	for _, c := range codes {
		remaining[c] = struct{}{}
	}
	return &FetchSession{
		SessionID:      sessionID,
		CodesRemaining: remaining,
		Attempts:       1,
		Deadline:       deadline,
		Received:       make(map[StockCode]Quote),
	}
}

// ApplyBatch merges a batch reply into the session: codes present in the
// batch move from CodesRemaining to Received. Codes outside
// CodesRemaining (duplicates from a prior attempt, or codes the session
// never asked for) are accepted into Received but otherwise ignored —
// batches may arrive out of order or repeat, and the merge must tolerate
// both.
func (s *FetchSession) ApplyBatch(batch map[StockCode]Quote) {
	for code, q := range batch {
		s.Received[code] = q
		delete(s.CodesRemaining, code)
	}
}

// Satisfied reports whether the session has nothing left to wait for.
func (s *FetchSession) Satisfied() bool {
	return len(s.CodesRemaining) == 0
}

// RemainingCodes returns the codes still outstanding, for a retry publish.
func (s *FetchSession) RemainingCodes() []StockCode {
	codes := make([]StockCode, 0, len(s.CodesRemaining))
	for c := range s.CodesRemaining {
		codes = append(codes, c)
	}
	return codes
}
