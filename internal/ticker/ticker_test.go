package ticker_test

import (
	"testing"

	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	tests := []struct {
		symbol   string
		exchange ticker.Exchange
	}{
		{"btcusdt", ticker.Binance},
		{"ETHUSDT", ticker.Binance},
	}

	for _, tt := range tests {
		tkr := ticker.Build(tt.symbol, tt.exchange)
		got, err := ticker.Parse(tkr.String())
		require.NoError(t, err)
		assert.Equal(t, tkr, got)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"BTCUSDT", ".BINANCE", "BTCUSDT.", ""} {
		_, err := ticker.Parse(s)
		assert.Error(t, err, "input %q should fail to parse", s)
	}
}

func TestForPair(t *testing.T) {
	tkr := ticker.ForPair("eth", "usdt", ticker.Binance)
	assert.Equal(t, "ETHUSDT.BINANCE", tkr.String())
}
