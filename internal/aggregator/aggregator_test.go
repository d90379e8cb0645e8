package aggregator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Pantilei/crypto-converter/internal/aggregator"
	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/config"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for internal/storage, recording every
// upsert so tests can assert on flush behavior without a database.
type fakeStore struct {
	mu          sync.Mutex
	upserts     [][]ticker.Candle
	removedTill []time.Time
	warm        []ticker.Candle
}

func (s *fakeStore) BulkUpsert(ctx context.Context, candles []ticker.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]ticker.Candle, len(candles))
	copy(cp, candles)
	s.upserts = append(s.upserts, cp)
	return nil
}

func (s *fakeStore) RemoveOldCandles(ctx context.Context, till time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removedTill = append(s.removedTill, till)
	return nil
}

func (s *fakeStore) WarmupCandles(ctx context.Context, from time.Time, fn func(ticker.Candle) error) error {
	for _, c := range s.warm {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, batch := range s.upserts {
		n += len(batch)
	}
	return n
}

func testConfig() config.TradesToCandlesConfig {
	return config.TradesToCandlesConfig{
		FlushToDBPeriod:    3600,
		BufferInterval:     3600,
		BufferCleanPeriod:  3600,
		StorageMaxInterval: 30,
		StorageCleanPeriod: 3600,
	}
}

func trade(symbol, price, volume string, ts time.Time) ticker.Trade {
	return ticker.Trade{
		Ticker:    ticker.Build(symbol, ticker.Binance),
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.RequireFromString(volume),
		Timestamp: ts,
	}
}

func TestSingleTradeCreatesCandle(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	ts := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	trades := make(chan ticker.Trade, 1)
	trades <- trade("BTCUSDT", "100", "1", ts)
	close(trades)
	agg.Intake(context.Background(), trades)

	c, code := agg.LookupCandle(tkr, nil)
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, c.Open.Equal(decimal.RequireFromString("100")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("100")))
}

func TestSecondTradeMutatesSameBucket(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	ts := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	trades := make(chan ticker.Trade, 2)
	trades <- trade("BTCUSDT", "100", "1", ts)
	trades <- trade("BTCUSDT", "110", "2", ts.Add(400*time.Millisecond))
	close(trades)
	agg.Intake(context.Background(), trades)

	c, code := agg.LookupCandle(tkr, nil)
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, c.Open.Equal(decimal.RequireFromString("100")), "open unchanged by second trade")
	assert.True(t, c.High.Equal(decimal.RequireFromString("110")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("110")))
	assert.True(t, c.Volume.Equal(decimal.RequireFromString("3")))
}

func TestBucketBoundaryCreatesSeparateCandles(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	secOne := time.Date(2026, 7, 30, 10, 0, 0, 999_000_000, time.UTC)
	secTwo := time.Date(2026, 7, 30, 10, 0, 1, 1_000_000, time.UTC)

	trades := make(chan ticker.Trade, 2)
	trades <- trade("BTCUSDT", "100", "1", secOne)
	trades <- trade("BTCUSDT", "200", "1", secTwo)
	close(trades)
	agg.Intake(context.Background(), trades)

	first, code := agg.LookupCandle(tkr, ptr(secOne.Unix()))
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, first.Close.Equal(decimal.RequireFromString("100")))

	second, code := agg.LookupCandle(tkr, ptr(secTwo.Unix()))
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, second.Close.Equal(decimal.RequireFromString("200")))
}

func TestLookupCandleClosestLessThan(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	trades := make(chan ticker.Trade, 2)
	trades <- trade("BTCUSDT", "100", "1", base)
	trades <- trade("BTCUSDT", "105", "1", base.Add(5*time.Second))
	close(trades)
	agg.Intake(context.Background(), trades)

	// No exact bucket at +3s; resolution must fall back to the bucket
	// strictly before it, i.e. base.
	c, code := agg.LookupCandle(tkr, ptr(base.Add(3*time.Second).Unix()))
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("100")))
}

func TestLookupCandleTooOldTimestamp(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	base := time.Date(2026, 7, 30, 10, 0, 10, 0, time.UTC)

	trades := make(chan ticker.Trade, 1)
	trades <- trade("BTCUSDT", "100", "1", base)
	close(trades)
	agg.Intake(context.Background(), trades)

	_, code := agg.LookupCandle(tkr, ptr(base.Add(-5*time.Second).Unix()))
	assert.Equal(t, apperror.CodeTooOldTimestamp, code)
}

func TestLookupCandleUnknownTicker(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	_, code := agg.LookupCandle(ticker.Build("DOESNOTEXIST", ticker.Binance), nil)
	assert.Equal(t, apperror.CodeTickerNotInMemory, code)
}

func TestLookupCandleNoTimestampReturnsLatest(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	tkr := ticker.Build("BTCUSDT", ticker.Binance)
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	trades := make(chan ticker.Trade, 2)
	trades <- trade("BTCUSDT", "100", "1", base)
	trades <- trade("BTCUSDT", "150", "1", base.Add(10*time.Second))
	close(trades)
	agg.Intake(context.Background(), trades)

	c, code := agg.LookupCandle(tkr, nil)
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("150")), "omitted timestamp resolves to the latest bucket")
}

// TestFlushIsIdempotent exercises the double-flush no-op property: a second
// flush with no new trades between calls must not upsert anything further.
func TestFlushIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())

	trades := make(chan ticker.Trade, 1)
	trades <- trade("BTCUSDT", "100", "1", time.Now().UTC())
	close(trades)
	agg.Intake(context.Background(), trades)

	ctx := context.Background()
	agg.Shutdown(ctx) // triggers the final flush

	firstCount := store.upsertCount()
	assert.Equal(t, 1, firstCount)

	// Shutdown again (idempotent on an already-cancelled aggregator): no new
	// dirty buckets exist, so flush is a no-op and upsertCount is unchanged.
	agg.Shutdown(ctx)
	assert.Equal(t, firstCount, store.upsertCount())
}

// TestWarmupThenLookupRoundTrips verifies a candle loaded from durable
// storage at startup is resolvable exactly as if it had just been ingested.
func TestWarmupThenLookupRoundTrips(t *testing.T) {
	tkr := ticker.Build("ETHUSDT", ticker.Binance)
	bucket := ticker.Second(time.Now().UTC())
	store := &fakeStore{
		warm: []ticker.Candle{{
			Ticker:       tkr,
			BucketSecond: bucket,
			Open:         decimal.RequireFromString("3000"),
			High:         decimal.RequireFromString("3010"),
			Low:          decimal.RequireFromString("2990"),
			Close:        decimal.RequireFromString("3005"),
			Volume:       decimal.RequireFromString("12"),
		}},
	}
	agg := aggregator.New(store, logger.New(nil, logger.LevelError, "test", nil), testConfig())
	require.NoError(t, agg.Warmup(context.Background()))

	c, code := agg.LookupCandle(tkr, ptr(bucket.Unix()))
	require.Equal(t, apperror.Code(""), code)
	assert.True(t, c.Close.Equal(decimal.RequireFromString("3005")))
}

func ptr(v int64) *int64 { return &v }
