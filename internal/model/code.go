// Package model holds the data types shared across the realtime update engine.
package model

import "fmt"

// StockCode is a 6-character ticker. Its leading digit determines the
// exchange it trades on.
type StockCode string

// Exchange identifies which of the two mainland exchanges a code belongs to.
type Exchange int

const (
	ExchangeUnknown Exchange = iota
	ExchangeShenzhen
	ExchangeShanghai
)

// Exchange classifies the code by its leading digit: 0 or 3 is Shenzhen,
// 6 is Shanghai. Codes that don't match either prefix are ExchangeUnknown.
func (c StockCode) Exchange() Exchange {
	if len(c) == 0 {
		return ExchangeUnknown
	}
	switch c[0] {
	case '0', '3':
		return ExchangeShenzhen
	case '6':
		return ExchangeShanghai
	default:
		return ExchangeUnknown
	}
}

// SuffixSymbol renders the code in "NNNNNN.SZ" / "NNNNNN.SH" form, the
// convention the slow source expects.
func (c StockCode) SuffixSymbol() string {
	switch c.Exchange() {
	case ExchangeShenzhen:
		return fmt.Sprintf("%s.SZ", string(c))
	case ExchangeShanghai:
		return fmt.Sprintf("%s.SH", string(c))
	default:
		return string(c)
	}
}

// PrefixSymbol renders the code in "sz000001" / "sh600519" form, the
// convention the fast source expects.
func (c StockCode) PrefixSymbol() string {
	switch c.Exchange() {
	case ExchangeShenzhen:
		return "sz" + string(c)
	case ExchangeShanghai:
		return "sh" + string(c)
	default:
		return string(c)
	}
}
