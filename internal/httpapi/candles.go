package httpapi

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
)

const candlesTracerName = "github.com/Pantilei/crypto-converter/internal/httpapi.candles"

// CandleLookup is the aggregator's memory-only query surface.
type CandleLookup interface {
	LookupCandle(tkr ticker.Ticker, ts *int64) (*ticker.Candle, apperror.Code)
}

// CandlesHandler serves GET /candles?ticker=T&timestamp=ts?.
type CandlesHandler struct {
	agg    CandleLookup
	log    logger.LoggerInterface
	tracer trace.Tracer
}

// NewCandlesHandler builds the candle-lookup frontend.
func NewCandlesHandler(agg CandleLookup, log logger.LoggerInterface) *CandlesHandler {
	return &CandlesHandler{agg: agg, log: log, tracer: otel.Tracer(candlesTracerName)}
}

func (h *CandlesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "httpapi.candles")
	defer span.End()

	q := r.URL.Query()
	tickerStr := q.Get("ticker")
	if tickerStr == "" {
		writeDetail(w, http.StatusBadRequest, apperror.CodeRequiredField)
		return
	}

	tkr, err := ticker.Parse(tickerStr)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, apperror.CodeInvalidFormat)
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

	span.SetAttributes(attribute.String("ticker", tkr.String()))

	candle, code := h.agg.LookupCandle(tkr, ts)
	if code != "" {
		h.log.Debug(ctx, "candle lookup miss", "ticker", tkr.String(), "code", string(code))
		writeDetail(w, http.StatusNotFound, code)
		return
	}

	writeJSON(w, candle)
}
