package model

import "github.com/shopspring/decimal"

// Quote is the normalized record every source adapter produces and the
// quote cache stores: a price, a percent change rounded to two places, and
// the monotonic time it was observed.
type Quote struct {
	Price       decimal.Decimal
	ChangePct   decimal.Decimal
	LastUpdated int64 // unix nanos, monotonic for a given code
}

// Equal reports whether two quotes carry the same price and change, the
// fields the cache's delta check compares. LastUpdated is deliberately
// excluded: two reads of an unchanged quote still differ in timestamp.
func (q Quote) Equal(other Quote) bool {
	return q.Price.Equal(other.Price) && q.ChangePct.Equal(other.ChangePct)
}

// NewerThan reports whether q was observed after other.
func (q Quote) NewerThan(other Quote) bool {
	return q.LastUpdated > other.LastUpdated
}

// ChangePctFrom derives change_pct as (price-prevClose)/prevClose*100,
// rounded half-away-from-zero to two decimal places (decimal.Round's
// native rounding mode). It returns zero when prevClose is zero, per the
// spec's explicit edge case.
func ChangePctFrom(price, prevClose decimal.Decimal) decimal.Decimal {
	if prevClose.IsZero() {
		return decimal.Zero
	}
	pct := price.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100))
	return pct.Round(2)
}

// RoundChangePct rounds an upstream-supplied change percentage to two
// places. Used when the source already reports change_pct directly, which
// is authoritative over the derived value.
func RoundChangePct(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
