package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/adapters"
	"github.com/zheewang/stockrealtime/internal/config"
	"github.com/zheewang/stockrealtime/internal/model"
)

// SlowClient issues one HTTP call per batch_size chunk against the
// batched multi-code source, sleeping between chunks to respect its
// per-minute quota.
type SlowClient struct {
	cfg   config.SourceConfig
	http  httpDoer
	log   *zap.Logger
	nowFn func() time.Time
	sleep func(time.Duration)
}

// NewSlowClient builds a SlowClient from cfg.
func NewSlowClient(cfg config.SourceConfig, client httpDoer, log *zap.Logger) *SlowClient {
	return &SlowClient{cfg: cfg, http: client, log: log, nowFn: time.Now, sleep: time.Sleep}
}

// Fetch joins codes into comma-separated chunks of at most BatchSize,
// issuing one HTTP call per chunk and sleeping 60/PerMinuteQuota seconds
// between chunks.
func (s *SlowClient) Fetch(ctx context.Context, codes []model.StockCode) FetchResult {
	result := FetchResult{Quotes: make(map[model.StockCode]model.Quote, len(codes))}
	now := s.nowFn().UnixNano()

	chunkSleep := s.chunkInterval()
	for i := 0; i < len(codes); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(codes) {
			end = len(codes)
		}
		chunk := codes[i:end]

		if i > 0 && chunkSleep > 0 {
			s.sleep(chunkSleep)
		}

		records, err := s.fetchChunk(ctx, chunk)
		if err != nil {
			s.log.Debug("slow source chunk failed", zap.Error(err), zap.Int("chunk_size", len(chunk)))
			result.Failed = append(result.Failed, chunk...)
			continue
		}
		quotes := adapters.NormalizeSlow(records, now)
		for code, q := range quotes {
			result.Quotes[code] = q
		}
		result.Failed = append(result.Failed, missing(chunk, quotes)...)
	}
	return result
}

func (s *SlowClient) chunkInterval() time.Duration {
	if s.cfg.PerMinuteQuota <= 0 {
		return 0
	}
	return time.Minute / time.Duration(s.cfg.PerMinuteQuota)
}

func (s *SlowClient) fetchChunk(ctx context.Context, chunk []model.StockCode) ([]adapters.SlowRecord, error) {
	symbols := make([]string, len(chunk))
	for i, c := range chunk {
		symbols[i] = c.SuffixSymbol()
	}
	url := fmt.Sprintf(s.cfg.MainURL, strings.Join(symbols, ","))

	body, err := s.get(ctx, url)
	if err != nil && s.cfg.BackupURL != "" {
		url = fmt.Sprintf(s.cfg.BackupURL, strings.Join(symbols, ","))
		body, err = s.get(ctx, url)
	}
	if err != nil {
		return nil, err
	}

	var records []adapters.SlowRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse slow response: %w", err)
	}
	return records, nil
}

func (s *SlowClient) get(ctx context.Context, url string) ([]byte, error) {
	return doGet(ctx, s.http, url)
}
