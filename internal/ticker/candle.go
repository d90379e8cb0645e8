package ticker

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a single executed trade observed on an exchange's stream.
type Trade struct {
	Ticker    Ticker
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// Candle is the OHLCV aggregate for one ticker over one second.
type Candle struct {
	Ticker       Ticker          `json:"ticker"`
	BucketSecond time.Time       `json:"-"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       decimal.Decimal `json:"volume"`
}

// MarshalJSON renders Ticker and the bucket second in the wire shape query
// clients expect: Ticker as its canonical string and the bucket as a plain
// Unix-second integer rather than an RFC3339 timestamp.
func (c Candle) MarshalJSON() ([]byte, error) {
	type alias struct {
		Ticker string          `json:"ticker"`
		T      int64           `json:"t"`
		Open   decimal.Decimal `json:"open"`
		High   decimal.Decimal `json:"high"`
		Low    decimal.Decimal `json:"low"`
		Close  decimal.Decimal `json:"close"`
		Volume decimal.Decimal `json:"volume"`
	}
	return json.Marshal(alias{
		Ticker: c.Ticker.String(),
		T:      c.BucketSecond.Unix(),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	})
}

// NewCandle seeds a Candle from the first trade to land in its bucket.
func NewCandle(t Trade) *Candle {
	return &Candle{
		Ticker:       t.Ticker,
		BucketSecond: Second(t.Timestamp),
		Open:         t.Price,
		High:         t.Price,
		Low:          t.Price,
		Close:        t.Price,
		Volume:       t.Volume,
	}
}

// Update folds a further trade landing in the same bucket into the candle.
// Open is never touched once set; High/Low widen monotonically; Close always
// tracks the latest trade; Volume accumulates.
func (c *Candle) Update(t Trade) {
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume = c.Volume.Add(t.Volume)
}
