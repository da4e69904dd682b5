// Package adapters normalizes each upstream source's wire records into
// the engine's uniform Quote type. Grounded on the Python original's
// DataAdapter.tushare_adapter / mairui_adapter / selenium_adapter
// (blueprints/stock_pool_manager.py), one function per source here in
// place of one static method per source there.
package adapters

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zheewang/stockrealtime/internal/model"
)

// FastRecord is one reply from the low-latency per-code source. The
// fields arrive as either JSON numbers or numeric strings depending on
// the upstream, hence json.RawMessage.
type FastRecord struct {
	Code      model.StockCode `json:"code"`
	Price     json.RawMessage `json:"price"`
	PrevClose json.RawMessage `json:"prev_close"`
	ChangePct json.RawMessage `json:"change_pct,omitempty"`
	Name      string          `json:"name,omitempty"`
}

// SlowRecord is one row from the batched multi-code source's response.
type SlowRecord struct {
	Code      model.StockCode `json:"code"`
	Price     json.RawMessage `json:"price"`
	PrevClose json.RawMessage `json:"prev_close"`
	ChangePct json.RawMessage `json:"change_pct,omitempty"`
	Name      string          `json:"name,omitempty"`
}

// ScrapeRecord is one entry in a batch message from the external scraper
// worker: {code: {RealtimePrice, RealtimeChange}}, matching the field
// names selenium_server.py emits.
type ScrapeRecord struct {
	RealtimePrice  json.RawMessage `json:"RealtimePrice"`
	RealtimeChange json.RawMessage `json:"RealtimeChange,omitempty"`
}

// NormalizeFast converts fast-source records into quotes. Missing or
// non-numeric prices drop the code (not the batch); an explicit
// change_pct field is authoritative over the derived value.
func NormalizeFast(records []FastRecord, now int64) map[model.StockCode]model.Quote {
	out := make(map[model.StockCode]model.Quote, len(records))
	for _, r := range records {
		price, ok := parseDecimal(r.Price)
		if !ok {
			continue
		}
		q := model.Quote{Price: price, LastUpdated: now}
		if pct, ok := parseDecimal(r.ChangePct); ok {
			q.ChangePct = model.RoundChangePct(pct)
		} else {
			prevClose, _ := parseDecimal(r.PrevClose)
			q.ChangePct = model.ChangePctFrom(price, prevClose)
		}
		out[r.Code] = q
	}
	return out
}

// NormalizeSlow converts batched-source records into quotes. Same
// contract as NormalizeFast; kept as a distinct function because the two
// sources' wire shapes can diverge independently over time.
func NormalizeSlow(records []SlowRecord, now int64) map[model.StockCode]model.Quote {
	out := make(map[model.StockCode]model.Quote, len(records))
	for _, r := range records {
		price, ok := parseDecimal(r.Price)
		if !ok {
			continue
		}
		q := model.Quote{Price: price, LastUpdated: now}
		if pct, ok := parseDecimal(r.ChangePct); ok {
			q.ChangePct = model.RoundChangePct(pct)
		} else {
			prevClose, _ := parseDecimal(r.PrevClose)
			q.ChangePct = model.ChangePctFrom(price, prevClose)
		}
		out[r.Code] = q
	}
	return out
}

// NormalizeScrape converts one batch reply from the scraper worker into
// quotes. The worker has already computed RealtimeChange itself
// (selenium_server.py does this from scraped "最新"/"昨收" table cells),
// so it is always authoritative here; no prevClose field is available to
// derive from.
func NormalizeScrape(batch map[model.StockCode]ScrapeRecord, now int64) map[model.StockCode]model.Quote {
	out := make(map[model.StockCode]model.Quote, len(batch))
	for code, r := range batch {
		price, ok := parseDecimal(r.RealtimePrice)
		if !ok {
			continue
		}
		q := model.Quote{Price: price, LastUpdated: now}
		if pct, ok := parseDecimal(r.RealtimeChange); ok {
			q.ChangePct = model.RoundChangePct(pct)
		}
		out[code] = q
	}
	return out
}

// parseDecimal accepts a JSON number or a numeric string (quoted or not)
// and returns false for anything else, including an absent field: missing
// numeric fields parse as zero, non-numeric strings fail the code (the
// zero case is handled by the caller treating a missing price as a skip,
// and a missing prevClose as an explicit zero via the second return
// value).
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if asString == "" {
			return decimal.Zero, false
		}
		if _, err := strconv.ParseFloat(asString, 64); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(asString)
		return d, err == nil
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err == nil {
		return decimal.NewFromFloat(asFloat), true
	}
	return decimal.Zero, false
}
