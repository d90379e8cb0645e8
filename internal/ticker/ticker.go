// Package ticker defines the domain identifiers shared by every component:
// the traded instrument (Ticker), the second-resolution bucket key
// (Second), and the exact-decimal amount helpers the candle pipeline
// relies on end to end.
package ticker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange identifies the venue a Ticker trades on.
type Exchange string

const (
	Binance Exchange = "BINANCE"
)

// Ticker is a traded instrument on a specific exchange, e.g. BTCUSDT.BINANCE.
type Ticker struct {
	Symbol   string
	Exchange Exchange
}

// Build constructs a Ticker from an exchange-native symbol (already upper
// cased, e.g. "BTCUSDT") and the exchange it was observed on.
func Build(symbol string, exchange Exchange) Ticker {
	return Ticker{Symbol: strings.ToUpper(symbol), Exchange: exchange}
}

// String renders the canonical "SYMBOL.EXCHANGE" form used in query params
// and log fields.
func (t Ticker) String() string {
	return t.Symbol + "." + string(t.Exchange)
}

// Parse splits a canonical "SYMBOL.EXCHANGE" string back into a Ticker.
func Parse(s string) (Ticker, error) {
	idx := strings.LastIndexByte(s, '.')
	if idx <= 0 || idx == len(s)-1 {
		return Ticker{}, fmt.Errorf("ticker: malformed %q, want SYMBOL.EXCHANGE", s)
	}
	return Ticker{
		Symbol:   strings.ToUpper(s[:idx]),
		Exchange: Exchange(strings.ToUpper(s[idx+1:])),
	}, nil
}

// ForPair builds the synthetic ticker used by the conversion endpoint, e.g.
// from=ETH, to=USDT -> ETHUSDT.BINANCE.
func ForPair(from, to string, exchange Exchange) Ticker {
	return Build(strings.ToUpper(from)+strings.ToUpper(to), exchange)
}

// Second truncates t to whole-second resolution, the bucket granularity the
// aggregator and store operate on.
func Second(t time.Time) time.Time {
	return t.Truncate(time.Second).UTC()
}

// DecimalPlaces is the schema's fixed fractional precision (numeric(38,18)).
const DecimalPlaces = 18

// RoundAmount rounds d to the storage precision without changing its scale
// semantics elsewhere in the pipeline (parsing keeps full precision; only
// persistence and API responses round).
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(DecimalPlaces)
}
