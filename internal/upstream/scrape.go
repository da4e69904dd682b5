package upstream

import (
	"context"

	"github.com/zheewang/stockrealtime/internal/model"
)

// ScraperRequester is the subset of the Scraper Coordinator this client
// needs: issuing a new fetch session. Declared here, implemented by
// internal/scraper, to avoid a dependency cycle between the two packages.
type ScraperRequester interface {
	RequestFetch(ctx context.Context, codes []model.StockCode) error
}

// ScrapeClient forwards code lists to the Scraper Coordinator without
// waiting for a reply; the coordinator writes the cache and triggers
// emission asynchronously, once per fetch session when that session
// finishes. Individual reply batches are not delivered as they arrive.
type ScrapeClient struct {
	requester ScraperRequester
}

// NewScrapeClient builds a ScrapeClient over requester.
func NewScrapeClient(requester ScraperRequester) *ScrapeClient {
	return &ScrapeClient{requester: requester}
}

// Dispatch forwards codes to the coordinator. It does not return a
// FetchResult: the scrape path never blocks the scheduler tick on a
// reply, so there is nothing to report synchronously.
func (s *ScrapeClient) Dispatch(ctx context.Context, codes []model.StockCode) error {
	if len(codes) == 0 {
		return nil
	}
	return s.requester.RequestFetch(ctx, codes)
}
