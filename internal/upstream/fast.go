// Package upstream issues the actual requests to the fast, slow, and
// scrape sources, applying each source's rate limit. Grounded on the
// Python original's RealtimeUpdater.get_realtime_data branch-per-source
// logic (blueprints/stock_pool_manager.py), split into one client type
// per source, one file per client.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/adapters"
	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/model"
)

// FetchResult is what every upstream client returns: the quotes it
// managed to obtain, plus the codes it didn't — the scheduler decides
// whether and when to retry those.
type FetchResult struct {
	Quotes map[model.StockCode]model.Quote
	Failed []model.StockCode
}

// httpDoer is satisfied by *http.Client; narrowed for testability.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FastClient issues per-code HTTP GETs against the low-latency source.
type FastClient struct {
	cfg    config.SourceConfig
	http   httpDoer
	log    *zap.Logger
	nowFn  func() time.Time
	sleep  func(time.Duration)
}

// NewFastClient builds a FastClient from cfg, using client for requests.
func NewFastClient(cfg config.SourceConfig, client httpDoer, log *zap.Logger) *FastClient {
	return &FastClient{cfg: cfg, http: client, log: log, nowFn: time.Now, sleep: time.Sleep}
}

// Fetch requests codes, which the Loop has already capped at
// cfg.BatchSize before dispatch. It tries a batched multi-code call first
// when a URL template is configured, falling back to sequential per-code
// requests on any parse failure of the batch response.
func (f *FastClient) Fetch(ctx context.Context, codes []model.StockCode) FetchResult {
	if f.cfg.URLTemplate != "" {
		if result, ok := f.fetchBatch(ctx, codes); ok {
			return result
		}
	}
	return f.fetchPerCode(ctx, codes)
}

func (f *FastClient) fetchBatch(ctx context.Context, codes []model.StockCode) (FetchResult, bool) {
	symbols := make([]string, len(codes))
	for i, c := range codes {
		symbols[i] = c.PrefixSymbol()
	}
	url := fmt.Sprintf(f.cfg.URLTemplate, strings.Join(symbols, ","))

	body, err := f.get(ctx, url)
	if err != nil {
		f.log.Debug("fast batch request failed, falling back to per-code", zap.Error(err))
		return FetchResult{}, false
	}

	var records []adapters.FastRecord
	if err := json.Unmarshal(body, &records); err != nil {
		f.log.Debug("fast batch response unparseable, falling back to per-code", zap.Error(err))
		return FetchResult{}, false
	}

	now := f.nowFn().UnixNano()
	quotes := adapters.NormalizeFast(records, now)
	return FetchResult{Quotes: quotes, Failed: missing(codes, quotes)}, true
}

func (f *FastClient) fetchPerCode(ctx context.Context, codes []model.StockCode) FetchResult {
	result := FetchResult{Quotes: make(map[model.StockCode]model.Quote, len(codes))}
	now := f.nowFn().UnixNano()

	for i, code := range codes {
		if i > 0 && f.cfg.RateLimitSeconds > 0 {
			f.sleep(f.cfg.RateLimitSeconds)
		}

		record, err := f.fetchOne(ctx, code)
		if err != nil {
			result.Failed = append(result.Failed, code)
			continue
		}
		quotes := adapters.NormalizeFast([]adapters.FastRecord{record}, now)
		q, ok := quotes[code]
		if !ok {
			result.Failed = append(result.Failed, code)
			continue
		}
		result.Quotes[code] = q
	}
	return result
}

func (f *FastClient) fetchOne(ctx context.Context, code model.StockCode) (adapters.FastRecord, error) {
	url := fmt.Sprintf(f.cfg.MainURL, code.PrefixSymbol())
	body, err := f.get(ctx, url)
	if err != nil && f.cfg.BackupURL != "" {
		url = fmt.Sprintf(f.cfg.BackupURL, code.PrefixSymbol())
		body, err = f.get(ctx, url)
	}
	if err != nil {
		return adapters.FastRecord{}, err
	}

	var record adapters.FastRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return adapters.FastRecord{}, fmt.Errorf("parse fast response for %s: %w", code, err)
	}
	record.Code = code
	return record, nil
}

func (f *FastClient) get(ctx context.Context, url string) ([]byte, error) {
	return doGet(ctx, f.http, url)
}

// doGet issues a GET and returns the body, shared by all upstream
// clients that speak plain HTTP+JSON.
func doGet(ctx context.Context, doer httpDoer, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("non-2xx status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func missing(requested []model.StockCode, got map[model.StockCode]model.Quote) []model.StockCode {
	var out []model.StockCode
	for _, c := range requested {
		if _, ok := got[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}
