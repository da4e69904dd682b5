package adapters

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheewang/stockrealtime/internal/model"
)

func raw(v string) json.RawMessage { return json.RawMessage(v) }

func TestNormalizeFastDerivesChangePct(t *testing.T) {
	records := []FastRecord{
		{Code: "000001", Price: raw(`"10.10"`), PrevClose: raw(`"10.00"`)},
	}
	out := NormalizeFast(records, 1)
	require.Contains(t, out, model.StockCode("000001"))
	assert.True(t, out["000001"].ChangePct.Equal(decimal.NewFromFloat(1.00)))
}

func TestNormalizeFastPrefersAuthoritativeChangePct(t *testing.T) {
	records := []FastRecord{
		{Code: "000001", Price: raw(`10.10`), PrevClose: raw(`10.00`), ChangePct: raw(`2.5`)},
	}
	out := NormalizeFast(records, 1)
	assert.True(t, out["000001"].ChangePct.Equal(decimal.NewFromFloat(2.5)))
}

func TestNormalizeFastSkipsInvalidPriceWithoutFailingBatch(t *testing.T) {
	records := []FastRecord{
		{Code: "000001", Price: raw(`"not-a-number"`)},
		{Code: "600519", Price: raw(`"20.00"`), PrevClose: raw(`"19.80"`)},
	}
	out := NormalizeFast(records, 1)
	assert.NotContains(t, out, model.StockCode("000001"))
	assert.Contains(t, out, model.StockCode("600519"))
}

func TestNormalizeFastMissingPrevCloseYieldsZeroChange(t *testing.T) {
	records := []FastRecord{{Code: "000001", Price: raw(`"10.10"`)}}
	out := NormalizeFast(records, 1)
	assert.True(t, out["000001"].ChangePct.IsZero())
}

func TestNormalizeSlowBatch(t *testing.T) {
	records := []SlowRecord{
		{Code: "000001", Price: raw(`"10.10"`), PrevClose: raw(`"10.00"`)},
		{Code: "600519", Price: raw(`"1800.00"`), PrevClose: raw(`"1790.00"`)},
	}
	out := NormalizeSlow(records, 1)
	assert.Len(t, out, 2)
}

func TestNormalizeScrapeUsesWorkerComputedChange(t *testing.T) {
	batch := map[model.StockCode]ScrapeRecord{
		"000001": {RealtimePrice: raw(`"10.10"`), RealtimeChange: raw(`"1.00"`)},
	}
	out := NormalizeScrape(batch, 1)
	require.Contains(t, out, model.StockCode("000001"))
	assert.True(t, out["000001"].ChangePct.Equal(decimal.NewFromFloat(1.00)))
}

func TestNormalizeScrapeSkipsMissingPrice(t *testing.T) {
	batch := map[model.StockCode]ScrapeRecord{
		"000001": {},
	}
	out := NormalizeScrape(batch, 1)
	assert.Empty(t, out)
}
