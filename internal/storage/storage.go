// Package storage is the durable candle store: a Postgres-backed gateway
// implementing bulk upsert, windowed deletion, latest-candle lookup, and a
// lazy cursor-backed range scan for warmup.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
)

const tracerName = "github.com/Pantilei/crypto-converter/internal/storage"

// Schema is the candles_1s table definition. Migrations themselves are an
// out-of-scope collaborator; this is documentation of the contract storage
// code below assumes.
const Schema = `
CREATE TABLE IF NOT EXISTS candles_1s (
	id          BIGSERIAL PRIMARY KEY,
	ticker      VARCHAR(100)   NOT NULL,
	t           TIMESTAMPTZ    NOT NULL,
	open        NUMERIC(38,18) NOT NULL,
	close       NUMERIC(38,18) NOT NULL,
	high        NUMERIC(38,18) NOT NULL,
	low         NUMERIC(38,18) NOT NULL,
	volume      NUMERIC(38,18) NOT NULL,
	UNIQUE (ticker, t)
);
CREATE INDEX IF NOT EXISTS candles_1s_t_idx ON candles_1s (t);
`

// Store is the Postgres-backed Durable Store Gateway.
type Store struct {
	pool   *pgxpool.Pool
	log    logger.LoggerInterface
	tracer trace.Tracer
}

// Connect opens a connection pool and verifies connectivity. A failure here
// is the one fatal-at-startup condition the spec calls out.
func Connect(ctx context.Context, dsn string, log logger.LoggerInterface) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	return &Store{pool: pool, log: log, tracer: otel.Tracer(tracerName)}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the pool can reach Postgres, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// BulkUpsert is idempotent on (ticker, t); conflicting rows are overwritten
// with the new OHLCV values. An empty slice is a no-op.
func (s *Store) BulkUpsert(ctx context.Context, candles []ticker.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "storage.bulk_upsert",
		trace.WithAttributes(attribute.Int("candles", len(candles))))
	defer span.End()

	batch := &pgx.Batch{}
	const stmt = `
INSERT INTO candles_1s (ticker, t, open, close, high, low, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (ticker, t) DO UPDATE SET
	open = EXCLUDED.open,
	close = EXCLUDED.close,
	high = EXCLUDED.high,
	low = EXCLUDED.low,
	volume = EXCLUDED.volume`

	for _, c := range candles {
		batch.Queue(stmt, c.Ticker.String(), c.BucketSecond,
			c.Open, c.Close, c.High, c.Low, c.Volume)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range candles {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			return apperror.New(apperror.CodeStorageUnavailable, apperror.WithCause(err),
				apperror.WithContext("bulk upsert"))
		}
	}
	return nil
}

// RemoveOldCandles deletes every row with bucket_start < till.
func (s *Store) RemoveOldCandles(ctx context.Context, till time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.remove_old_candles")
	defer span.End()

	_, err := s.pool.Exec(ctx, `DELETE FROM candles_1s WHERE t < $1`, till)
	if err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeStorageUnavailable, apperror.WithCause(err),
			apperror.WithContext("remove old candles"))
	}
	return nil
}

// GetLatestCandle returns the candle for ticker with the greatest
// bucket_start <= till, or nil if none exists.
func (s *Store) GetLatestCandle(ctx context.Context, tkr ticker.Ticker, till time.Time) (*ticker.Candle, error) {
	ctx, span := s.tracer.Start(ctx, "storage.get_latest_candle",
		trace.WithAttributes(attribute.String("ticker", tkr.String())))
	defer span.End()

	const q = `
SELECT t, open, close, high, low, volume
FROM candles_1s
WHERE ticker = $1 AND t <= $2
ORDER BY t DESC
LIMIT 1`

	row := s.pool.QueryRow(ctx, q, tkr.String(), till)
	var c ticker.Candle
	c.Ticker = tkr
	if err := row.Scan(&c.BucketSecond, &c.Open, &c.Close, &c.High, &c.Low, &c.Volume); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeStorageUnavailable, apperror.WithCause(err),
			apperror.WithContext("get latest candle"))
	}
	return &c, nil
}

// WarmupCandles streams every candle with bucket_start >= from to fn, in
// ascending bucket order, via a server-side cursor so it never materializes the
// whole result set in memory.
func (s *Store) WarmupCandles(ctx context.Context, from time.Time, fn func(ticker.Candle) error) error {
	ctx, span := s.tracer.Start(ctx, "storage.warmup_candles")
	defer span.End()

	const q = `
SELECT ticker, t, open, close, high, low, volume
FROM candles_1s
WHERE t >= $1
ORDER BY t`

	rows, err := s.pool.Query(ctx, q, from)
	if err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeStorageUnavailable, apperror.WithCause(err),
			apperror.WithContext("warmup scan"))
	}
	defer rows.Close()

	for rows.Next() {
		var tickerStr string
		var c ticker.Candle
		if err := rows.Scan(&tickerStr, &c.BucketSecond, &c.Open, &c.Close, &c.High, &c.Low, &c.Volume); err != nil {
			span.RecordError(err)
			return apperror.New(apperror.CodeStorageUnavailable, apperror.WithCause(err),
				apperror.WithContext("warmup scan row"))
		}
		tkr, err := ticker.Parse(tickerStr)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed ticker row", "ticker", tickerStr, "error", err.Error())
			continue
		}
		c.Ticker = tkr
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}
