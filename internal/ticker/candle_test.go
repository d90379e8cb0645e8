package ticker_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(price, volume string, ts time.Time) ticker.Trade {
	return ticker.Trade{
		Ticker:    ticker.Build("BTCUSDT", ticker.Binance),
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.RequireFromString(volume),
		Timestamp: ts,
	}
}

func TestNewCandleSingleTrade(t *testing.T) {
	ts := time.Date(2026, 7, 30, 10, 0, 0, 500_000_000, time.UTC)
	c := ticker.NewCandle(trade("100", "1", ts))

	assert.True(t, c.Open.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.High.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("1")))
	assert.Equal(t, ticker.Second(ts), c.BucketSecond)
}

func TestCandleUpdateWidensHighLowTracksCloseAccumulatesVolume(t *testing.T) {
	ts := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	c := ticker.NewCandle(trade("100", "1", ts))

	c.Update(trade("105", "0.5", ts.Add(200*time.Millisecond)))
	c.Update(trade("95", "0.2", ts.Add(400*time.Millisecond)))
	c.Update(trade("101", "0.3", ts.Add(600*time.Millisecond)))

	assert.True(t, c.Open.Equal(decimal.RequireFromString("100")), "open never changes once set")
	assert.True(t, c.High.Equal(decimal.RequireFromString("105")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("95")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("101")), "close tracks the latest trade")
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("2")))
}

func TestCandleMarshalJSONWireShape(t *testing.T) {
	ts := time.Date(2026, 7, 30, 10, 0, 5, 0, time.UTC)
	c := *ticker.NewCandle(trade("100", "1", ts))

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "BTCUSDT.BINANCE", got["ticker"])
	assert.Equal(t, float64(ts.Unix()), got["t"], "bucket second is a plain unix integer, not RFC3339")
	assert.NotContains(t, got, "BucketSecond")
}

func TestRoundAmount(t *testing.T) {
	d := decimal.RequireFromString("1.23456789012345678901234")
	rounded := ticker.RoundAmount(d)
	want := decimal.RequireFromString("1.234567890123456789")
	assert.True(t, rounded.Equal(want), "got %s want %s", rounded, want)
}
