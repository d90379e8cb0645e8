package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Pantilei/crypto-converter/internal/httpapi"
	"github.com/Pantilei/crypto-converter/internal/httpclient"
	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDurableStore struct {
	candle *ticker.Candle
	err    error
}

func (f fakeDurableStore) GetLatestCandle(ctx context.Context, tkr ticker.Ticker, till time.Time) (*ticker.Candle, error) {
	return f.candle, f.err
}

// assertDecimalField parses body[field] (rendered quoted, per shopspring's
// default MarshalJSON) and compares it by value rather than by exact digit
// string.
func assertDecimalField(t *testing.T, body map[string]string, field, want string) {
	t.Helper()
	got, err := decimal.NewFromString(body[field])
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s = %s, want %s", field, got, want)
}

func TestConvertHandlerMissingParams(t *testing.T) {
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{}, time.Minute, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/convert?amount=1&from=ETH", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertHandlerNonPositiveAmount(t *testing.T) {
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{}, time.Minute, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/convert?amount=0&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertHandlerFallsBackToStoreWhenMemoryNil(t *testing.T) {
	candle := &ticker.Candle{
		Ticker:       ticker.ForPair("ETH", "USDT", ticker.Binance),
		BucketSecond: time.Now().UTC(),
		Close:        decimal.RequireFromString("3000"),
	}
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{candle: candle}, time.Minute, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/convert?amount=2&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assertDecimalField(t, body, "amount", "6000")
	assertDecimalField(t, body, "conversion_rate", "3000")
}

func TestConvertHandlerConversionNotPossible(t *testing.T) {
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{}, time.Minute, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/convert?amount=1&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conversion_not_possible", body["detail"])
}

func TestConvertHandlerStaleQuoteWithoutExplicitTimestamp(t *testing.T) {
	candle := &ticker.Candle{
		Ticker:       ticker.ForPair("ETH", "USDT", ticker.Binance),
		BucketSecond: time.Now().UTC().Add(-time.Hour),
		Close:        decimal.RequireFromString("3000"),
	}
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{candle: candle}, time.Minute, newTestLogger())
	req := httptest.NewRequest(http.MethodGet, "/convert?amount=1&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quotes_outdated", body["detail"])
}

func TestConvertHandlerExplicitTimestampBypassesStalenessCheck(t *testing.T) {
	old := time.Now().UTC().Add(-time.Hour)
	candle := &ticker.Candle{
		Ticker:       ticker.ForPair("ETH", "USDT", ticker.Binance),
		BucketSecond: old,
		Close:        decimal.RequireFromString("3000"),
	}
	h := httpapi.NewConvertHandler(nil, "", fakeDurableStore{candle: candle}, time.Minute, newTestLogger())
	url := fmt.Sprintf("/convert?amount=1&from=ETH&to=USDT&timestamp=%d", old.Unix())
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "an explicit timestamp opts out of the staleness check")
}

func TestConvertHandlerPrefersMemoryOverStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"t": time.Now().Unix(), "close": "3100"})
	}))
	defer server.Close()

	memClient, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("test"))
	require.NoError(t, err)

	storeCandle := &ticker.Candle{
		Ticker:       ticker.ForPair("ETH", "USDT", ticker.Binance),
		BucketSecond: time.Now().UTC(),
		Close:        decimal.RequireFromString("1"),
	}
	h := httpapi.NewConvertHandler(memClient, server.URL, fakeDurableStore{candle: storeCandle}, time.Minute, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/convert?amount=1&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assertDecimalField(t, body, "conversion_rate", "3100")
}

func TestConvertHandlerFallsBackToStoreWhenMemoryErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	memClient, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("test"))
	require.NoError(t, err)

	storeCandle := &ticker.Candle{
		Ticker:       ticker.ForPair("ETH", "USDT", ticker.Binance),
		BucketSecond: time.Now().UTC(),
		Close:        decimal.RequireFromString("3200"),
	}
	h := httpapi.NewConvertHandler(memClient, server.URL, fakeDurableStore{candle: storeCandle}, time.Minute, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/convert?amount=1&from=ETH&to=USDT", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assertDecimalField(t, body, "conversion_rate", "3200")
}
