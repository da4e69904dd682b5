package quotecache

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zheewang/stockrealtime/internal/model"
)

type fakePool struct{ codes map[model.StockCode]struct{} }

func (f fakePool) Contains(code model.StockCode) bool {
	_, ok := f.codes[code]
	return ok
}

func TestPutManyDropsCodesOutsidePool(t *testing.T) {
	pool := fakePool{codes: map[model.StockCode]struct{}{"000001": {}}}
	c := New(zap.NewNop(), pool)

	c.PutMany(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.1), LastUpdated: 1},
		"999999": {Price: decimal.NewFromFloat(1), LastUpdated: 1},
	})

	got := c.Get([]model.StockCode{"000001", "999999"})
	assert.Len(t, got, 1)
	assert.Contains(t, got, model.StockCode("000001"))
}

func TestPutManyNeverRegressesToOlderReading(t *testing.T) {
	pool := fakePool{codes: map[model.StockCode]struct{}{"000001": {}}}
	c := New(zap.NewNop(), pool)

	c.PutMany(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.5), LastUpdated: 10},
	})
	c.PutMany(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.1), LastUpdated: 5},
	})

	got := c.Get([]model.StockCode{"000001"})
	assert.True(t, got["000001"].Price.Equal(decimal.NewFromFloat(10.5)))
}

func TestDeltaSuppressesUnchangedOnSecondCall(t *testing.T) {
	pool := fakePool{codes: map[model.StockCode]struct{}{"000001": {}}}
	c := New(zap.NewNop(), pool)

	newMap := map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.1), ChangePct: decimal.NewFromFloat(1), LastUpdated: 1},
	}

	first := c.Delta(newMap)
	assert.Len(t, first, 1)

	second := c.Delta(newMap)
	assert.Empty(t, second)
}

func TestDeltaEmitsOnlyChangedCodes(t *testing.T) {
	pool := fakePool{codes: map[model.StockCode]struct{}{"000001": {}, "600519": {}}}
	c := New(zap.NewNop(), pool)

	c.Delta(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.1), LastUpdated: 1},
		"600519": {Price: decimal.NewFromFloat(20), LastUpdated: 1},
	})

	changed := c.Delta(map[model.StockCode]model.Quote{
		"000001": {Price: decimal.NewFromFloat(10.1), LastUpdated: 2}, // unchanged price
		"600519": {Price: decimal.NewFromFloat(21), LastUpdated: 2},   // changed price
	})

	assert.Len(t, changed, 1)
	assert.Contains(t, changed, model.StockCode("600519"))
}

func TestDeleteRemovesFromBothMaps(t *testing.T) {
	pool := fakePool{codes: map[model.StockCode]struct{}{"000001": {}}}
	c := New(zap.NewNop(), pool)
	c.PutMany(map[model.StockCode]model.Quote{"000001": {Price: decimal.NewFromFloat(1), LastUpdated: 1}})
	c.Delta(map[model.StockCode]model.Quote{"000001": {Price: decimal.NewFromFloat(1), LastUpdated: 1}})

	c.Delete([]model.StockCode{"000001"})

	assert.Empty(t, c.Get([]model.StockCode{"000001"}))
	// after delete, re-seeing the same value counts as a fresh change
	changed := c.Delta(map[model.StockCode]model.Quote{"000001": {Price: decimal.NewFromFloat(1), LastUpdated: 2}})
	assert.Len(t, changed, 1)
}
