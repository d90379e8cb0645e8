package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/httpapi"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	candle *ticker.Candle
	code   apperror.Code
}

func (f fakeLookup) LookupCandle(tkr ticker.Ticker, ts *int64) (*ticker.Candle, apperror.Code) {
	return f.candle, f.code
}

func newTestLogger() logger.LoggerInterface {
	return logger.New(nil, logger.LevelError, "test", nil)
}

func TestCandlesHandlerMissingTicker(t *testing.T) {
	h := httpapi.NewCandlesHandler(fakeLookup{}, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/candles", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperror.CodeRequiredField), body["detail"])
}

func TestCandlesHandlerMalformedTicker(t *testing.T) {
	h := httpapi.NewCandlesHandler(fakeLookup{}, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/candles?ticker=BTCUSDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCandlesHandlerLookupMiss(t *testing.T) {
	h := httpapi.NewCandlesHandler(fakeLookup{code: apperror.CodeTickerNotInMemory}, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/candles?ticker=BTCUSDT.BINANCE", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperror.CodeTickerNotInMemory), body["detail"])
}

func TestCandlesHandlerSuccess(t *testing.T) {
	candle := ticker.Candle{
		Ticker:       ticker.Build("BTCUSDT", ticker.Binance),
		BucketSecond: time.Unix(1700000000, 0).UTC(),
		Open:         decimal.RequireFromString("100"),
		High:         decimal.RequireFromString("105"),
		Low:          decimal.RequireFromString("95"),
		Close:        decimal.RequireFromString("102"),
		Volume:       decimal.RequireFromString("3"),
	}
	h := httpapi.NewCandlesHandler(fakeLookup{candle: &candle}, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/candles?ticker=BTCUSDT.BINANCE&timestamp=1700000000", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT.BINANCE", body["ticker"])
	assert.Equal(t, float64(1700000000), body["t"])
}
