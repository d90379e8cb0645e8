package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/circuitbreaker"
	"github.com/Pantilei/crypto-converter/internal/httpclient"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
)

const convertTracerName = "github.com/Pantilei/crypto-converter/internal/httpapi.convert"

// DurableStore is the subset of internal/storage.Store the conversion
// fallback needs.
type DurableStore interface {
	GetLatestCandle(ctx context.Context, tkr ticker.Ticker, till time.Time) (*ticker.Candle, error)
}

// quoteResponse is the subset of the candle endpoint's JSON this handler
// needs from the memory-service fallback attempt.
type quoteResponse struct {
	T     int64           `json:"t"`
	Close decimal.Decimal `json:"close"`
}

// ConvertHandler serves GET /convert?amount=A&from=F&to=T&timestamp=ts?.
type ConvertHandler struct {
	memClient  httpclient.Client
	memBaseURL string
	store      DurableStore
	breaker    *gobreaker.CircuitBreaker[*ticker.Candle]
	staleAfter time.Duration
	log        logger.LoggerInterface
	tracer     trace.Tracer
}

// NewConvertHandler builds the conversion frontend. memClient/memBaseURL
// reach the ingest process's candle endpoint; store is the durable
// fallback, guarded by a circuit breaker so a down database degrades
// straight to conversion_not_possible instead of being hammered per request.
func NewConvertHandler(memClient httpclient.Client, memBaseURL string, store DurableStore, staleAfter time.Duration, log logger.LoggerInterface) *ConvertHandler {
	return &ConvertHandler{
		memClient:  memClient,
		memBaseURL: memBaseURL,
		store:      store,
		breaker:    circuitbreaker.New[*ticker.Candle](circuitbreaker.DefaultConfig("durable-store")),
		staleAfter: staleAfter,
		log:        log,
		tracer:     otel.Tracer(convertTracerName),
	}
}

func (h *ConvertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "httpapi.convert")
	defer span.End()

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeDetail(w, http.StatusBadRequest, apperror.CodeRequiredField)
		return
	}

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || amount.Sign() <= 0 {
		writeDetail(w, http.StatusBadRequest, apperror.CodeInvalidInput)
		return
	}

	var ts *int64
	if raw := q.Get("timestamp"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, apperror.CodeInvalidFormat)
			return
		}
		ts = &parsed
	}

	tkr := ticker.ForPair(from, to, ticker.Binance)
	span.SetAttributes(attribute.String("ticker", tkr.String()))

	till := time.Now().UTC()
	if ts != nil {
		till = time.Unix(*ts, 0).UTC()
	}

	candle := h.tryMemory(ctx, tkr, ts)
	if candle == nil {
		candle = h.tryStore(ctx, tkr, till)
	}

	if candle == nil {
		writeDetail(w, http.StatusNotFound, apperror.CodeConversionNotPossible)
		return
	}

	if ts == nil && time.Since(candle.BucketSecond) > h.staleAfter {
		writeDetail(w, http.StatusNotFound, apperror.CodeQuotesOutdated)
		return
	}

	rate := ticker.RoundAmount(candle.Close)
	converted := ticker.RoundAmount(amount.Mul(candle.Close))
	writeJSON(w, map[string]decimal.Decimal{
		"amount":          converted,
		"conversion_rate": rate,
	})
}

// tryMemory asks the ingest process's own candle endpoint. A network
// failure or non-2xx is treated as an expected fallback trigger, not an
// error — the storage path picks up from here.
func (h *ConvertHandler) tryMemory(ctx context.Context, tkr ticker.Ticker, ts *int64) *ticker.Candle {
	if h.memClient == nil {
		return nil
	}

	url := fmt.Sprintf("%s/candles?ticker=%s", h.memBaseURL, tkr.String())
	if ts != nil {
		url = fmt.Sprintf("%s&timestamp=%d", url, *ts)
	}

	resp, err := h.memClient.NewRequest().Get(ctx, url)
	if err != nil {
		h.log.Debug(ctx, "memory candle service unreachable, falling back to storage", "error", err.Error())
		return nil
	}
	if resp.IsError() {
		h.log.Debug(ctx, "memory candle service returned non-2xx, falling back to storage", "status", resp.StatusCode)
		return nil
	}

	var q quoteResponse
	if err := json.Unmarshal(resp.Body(), &q); err != nil {
		h.log.Warn(ctx, "memory candle service returned unparsable body", "error", err.Error())
		return nil
	}

	return &ticker.Candle{Ticker: tkr, BucketSecond: time.Unix(q.T, 0).UTC(), Close: q.Close}
}

// tryStore queries the durable store behind a circuit breaker.
func (h *ConvertHandler) tryStore(ctx context.Context, tkr ticker.Ticker, till time.Time) *ticker.Candle {
	candle, err := h.breaker.Execute(func() (*ticker.Candle, error) {
		return h.store.GetLatestCandle(ctx, tkr, till)
	})
	if err != nil {
		h.log.Warn(ctx, "durable store lookup failed", "ticker", tkr.String(), "error", err.Error())
		return nil
	}
	return candle
}
