// Package aggregator buckets an unbounded trade stream into per-second
// OHLCV candles, keeps a recent window in memory, and periodically flushes
// dirty buckets to durable storage while evicting old ones.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/config"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
)

// Store is the durable persistence contract the aggregator depends on.
// internal/storage implements it; defining it here (rather than importing
// internal/storage) keeps the aggregator ignorant of Postgres specifics.
type Store interface {
	BulkUpsert(ctx context.Context, candles []ticker.Candle) error
	RemoveOldCandles(ctx context.Context, till time.Time) error
	// WarmupCandles streams every candle with bucket_start >= from to fn, in
	// a lazy, cursor-backed scan.
	WarmupCandles(ctx context.Context, from time.Time, fn func(ticker.Candle) error) error
}

// Aggregator is the two-level in-memory candle buffer plus its periodic
// maintenance duties.
type Aggregator struct {
	mu     sync.RWMutex
	buffer map[ticker.Ticker]map[int64]*ticker.Candle
	dirty  map[ticker.Ticker]map[int64]struct{}
	sorted map[ticker.Ticker][]int64

	store Store
	log   logger.LoggerInterface
	cfg   config.TradesToCandlesConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Aggregator. Call Warmup then Start.
func New(store Store, log logger.LoggerInterface, cfg config.TradesToCandlesConfig) *Aggregator {
	return &Aggregator{
		buffer: make(map[ticker.Ticker]map[int64]*ticker.Candle),
		dirty:  make(map[ticker.Ticker]map[int64]struct{}),
		sorted: make(map[ticker.Ticker][]int64),
		store:  store,
		log:    log,
		cfg:    cfg,
	}
}

// Warmup loads every candle with bucket_start >= now-bufferInterval from
// durable storage into buffer. dirty remains empty — warmed-up candles are
// already durable.
func (a *Aggregator) Warmup(ctx context.Context) error {
	from := time.Now().UTC().Add(-a.cfg.BufferIntervalDuration())

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.store.WarmupCandles(ctx, from, func(c ticker.Candle) error {
		sec := c.BucketSecond.Unix()
		byTicker, ok := a.buffer[c.Ticker]
		if !ok {
			byTicker = make(map[int64]*ticker.Candle)
			a.buffer[c.Ticker] = byTicker
		}
		cc := c
		byTicker[sec] = &cc
		a.insertSortedLocked(c.Ticker, sec)
		return nil
	})
}

// Intake is the single-consumer loop draining the shared trade channel.
// It returns when trades is closed or ctx is cancelled.
func (a *Aggregator) Intake(ctx context.Context, trades <-chan ticker.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			a.ingest(t)
		}
	}
}

func (a *Aggregator) ingest(t ticker.Trade) {
	sec := t.Timestamp.UnixMilli() / 1000

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.dirty[t.Ticker]; !ok {
		a.dirty[t.Ticker] = make(map[int64]struct{})
	}
	a.dirty[t.Ticker][sec] = struct{}{}

	byTicker, ok := a.buffer[t.Ticker]
	if !ok {
		byTicker = make(map[int64]*ticker.Candle)
		a.buffer[t.Ticker] = byTicker
	}

	if c, ok := byTicker[sec]; ok {
		c.Update(t)
		return
	}

	byTicker[sec] = ticker.NewCandle(t)
	a.insertSortedLocked(t.Ticker, sec)
}

// insertSortedLocked keeps a.sorted[tkr] ascending, inserting sec via
// binary search. Caller must hold a.mu.
func (a *Aggregator) insertSortedLocked(tkr ticker.Ticker, sec int64) {
	secs := a.sorted[tkr]
	i := sort.Search(len(secs), func(i int) bool { return secs[i] >= sec })
	if i < len(secs) && secs[i] == sec {
		return
	}
	secs = append(secs, 0)
	copy(secs[i+1:], secs[i:])
	secs[i] = sec
	a.sorted[tkr] = secs
}

// Start launches the three periodic duties. Call Warmup first.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(3)
	go a.runPeriodic(ctx, "flush", a.cfg.FlushToDBInterval(), a.flush)
	go a.runPeriodic(ctx, "buffer-clean", a.cfg.BufferCleanInterval(), a.cleanBuffer)
	go a.runPeriodic(ctx, "storage-clean", a.cfg.StorageCleanInterval(), a.cleanStorage)
}

func (a *Aggregator) runPeriodic(ctx context.Context, name string, period time.Duration, fn func(context.Context) error) {
	defer a.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(ctx); err != nil {
				a.log.Warn(ctx, "periodic duty failed", "duty", name, "error", err.Error())
			}
		}
	}
}

// flush snapshots every dirty bucket, upserts it, and on success clears
// exactly the snapshotted keys — never a blanket dirty reset, so buckets
// marked dirty by trades arriving during the upsert are not lost.
func (a *Aggregator) flush(ctx context.Context) error {
	type key struct {
		t   ticker.Ticker
		sec int64
	}

	a.mu.RLock()
	var snapshot []ticker.Candle
	var keys []key
	for tkr, secs := range a.dirty {
		byTicker := a.buffer[tkr]
		for sec := range secs {
			if c, ok := byTicker[sec]; ok {
				snapshot = append(snapshot, *c)
				keys = append(keys, key{tkr, sec})
			}
		}
	}
	a.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	if err := a.store.BulkUpsert(ctx, snapshot); err != nil {
		return err
	}

	a.mu.Lock()
	for i, k := range keys {
		secs, ok := a.dirty[k.t]
		if !ok {
			continue
		}
		// A trade that landed during the upsert changed the candle after it
		// was snapshotted; keep its key dirty so the next flush writes it.
		if c, ok := a.buffer[k.t][k.sec]; ok && (!c.Close.Equal(snapshot[i].Close) ||
			!c.High.Equal(snapshot[i].High) || !c.Low.Equal(snapshot[i].Low) ||
			!c.Volume.Equal(snapshot[i].Volume)) {
			continue
		}
		delete(secs, k.sec)
		if len(secs) == 0 {
			delete(a.dirty, k.t)
		}
	}
	a.mu.Unlock()

	return nil
}

// cleanBuffer evicts buckets older than bufferInterval+flushPeriod, widened
// past the raw bufferInterval so a bucket survives until its final flush
// has had a chance to run.
func (a *Aggregator) cleanBuffer(_ context.Context) error {
	cutoff := time.Now().UTC().Add(-a.cfg.BufferIntervalDuration() - a.cfg.FlushToDBInterval()).Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	for tkr, byTicker := range a.buffer {
		secs := a.sorted[tkr]
		cut := sort.Search(len(secs), func(i int) bool { return secs[i] > cutoff })
		for _, sec := range secs[:cut] {
			delete(byTicker, sec)
		}
		a.sorted[tkr] = secs[cut:]
		if len(byTicker) == 0 {
			delete(a.buffer, tkr)
			delete(a.sorted, tkr)
		}
	}
	return nil
}

func (a *Aggregator) cleanStorage(ctx context.Context) error {
	till := time.Now().UTC().Add(-a.cfg.StorageMaxIntervalDuration())
	return a.store.RemoveOldCandles(ctx, till)
}

// Shutdown cancels the periodic duties and intake, then performs one final
// flush so in-flight dirty buckets survive restart.
func (a *Aggregator) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.flush(ctx); err != nil {
		a.log.Error(ctx, "final flush failed", "error", err.Error())
	}
}

// LookupCandle implements the /candles resolution rule: exact bucket if
// present, else the closest bucket strictly before ts, else the latest
// bucket if ts is absent or beyond it.
func (a *Aggregator) LookupCandle(tkr ticker.Ticker, ts *int64) (*ticker.Candle, apperror.Code) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byTicker, ok := a.buffer[tkr]
	if !ok {
		return nil, apperror.CodeTickerNotInMemory
	}
	secs := a.sorted[tkr]
	if len(secs) == 0 {
		return nil, apperror.CodeNoCandlesForTicker
	}

	maxSec := secs[len(secs)-1]
	if ts == nil || *ts > maxSec {
		c := *byTicker[maxSec]
		return &c, ""
	}

	if c, exact := byTicker[*ts]; exact {
		cc := *c
		return &cc, ""
	}

	i := sort.Search(len(secs), func(i int) bool { return secs[i] >= *ts })
	if i == 0 {
		return nil, apperror.CodeTooOldTimestamp
	}
	c := *byTicker[secs[i-1]]
	return &c, ""
}
