// Package binance implements the connector.Adapter for Binance's spot
// trade stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pantilei/crypto-converter/internal/apperror"
	"github.com/Pantilei/crypto-converter/internal/connector"
	"github.com/Pantilei/crypto-converter/internal/httpclient"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/ticker"
)

const tracerName = "github.com/Pantilei/crypto-converter/internal/connector/binance"

const exchangeInfoPath = "/api/v3/exchangeInfo"

// Config controls how the adapter splits symbols into connections and
// paces subscription frames.
type Config struct {
	WebSocketURL      string
	RESTURL           string
	SymbolsPerStream  int           // max symbols handled per connection
	MaxSubsPerMessage int           // max symbols per SUBSCRIBE frame
	SubDelay          time.Duration // pause between SUBSCRIBE frames
	RetryPeriod       time.Duration
}

// Adapter implements connector.Adapter for Binance aggTrade streams.
type Adapter struct {
	cfg    Config
	log    logger.LoggerInterface
	client httpclient.Client
	tracer trace.Tracer
}

// NewAdapter builds a Binance adapter.
func NewAdapter(cfg Config, log logger.LoggerInterface) (*Adapter, error) {
	tracer := otel.Tracer(tracerName)
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("binance"),
		httpclient.WithBaseURL(cfg.RESTURL),
		httpclient.WithRequestTimeout(10*time.Second),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("binance adapter: build http client: %w", err)
	}

	return &Adapter{cfg: cfg, log: log, client: client, tracer: tracer}, nil
}

func (a *Adapter) Name() string               { return "binance" }
func (a *Adapter) WSURL() string              { return a.cfg.WebSocketURL }
func (a *Adapter) RetryPeriod() time.Duration { return a.cfg.RetryPeriod }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
	} `json:"symbols"`
}

// fetchSymbols retrieves the tradable symbol universe, sorted
// lexicographically for deterministic connection assignment.
func (a *Adapter) fetchSymbols(ctx context.Context) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "binance.exchange_info")
	defer span.End()

	var result exchangeInfoResponse
	resp, err := a.client.NewRequest().SetResult(&result).Get(ctx, exchangeInfoPath)
	if err != nil {
		return nil, apperror.New(apperror.CodeBinanceConnectionFailed,
			apperror.WithCause(err), apperror.WithContext("fetching exchangeInfo"))
	}
	if resp.IsError() {
		return nil, apperror.New(apperror.CodeBinanceAPIError,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	symbols := make([]string, 0, len(result.Symbols))
	for _, s := range result.Symbols {
		symbols = append(symbols, strings.ToUpper(s.Symbol))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// SubscriptionPlan implements connector.Adapter.
func (a *Adapter) SubscriptionPlan(ctx context.Context) ([]connector.ConnectionPlan, error) {
	symbols, err := a.fetchSymbols(ctx)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, apperror.New(apperror.CodeBinanceAPIError, apperror.WithContext("exchangeInfo returned no symbols"))
	}

	perStream := a.cfg.SymbolsPerStream
	if perStream <= 0 {
		perStream = len(symbols)
	}
	perMessage := a.cfg.MaxSubsPerMessage
	if perMessage <= 0 {
		perMessage = len(symbols)
	}

	var plans []connector.ConnectionPlan
	for start := 0; start < len(symbols); start += perStream {
		end := start + perStream
		if end > len(symbols) {
			end = len(symbols)
		}
		connSymbols := symbols[start:end]

		var messages [][]byte
		for mstart := 0; mstart < len(connSymbols); mstart += perMessage {
			mend := mstart + perMessage
			if mend > len(connSymbols) {
				mend = len(connSymbols)
			}
			frame, err := buildSubscribeFrame(connSymbols[mstart:mend])
			if err != nil {
				return nil, err
			}
			messages = append(messages, frame)
		}

		plans = append(plans, connector.ConnectionPlan{
			Messages:        messages,
			PerMessageDelay: a.cfg.SubDelay,
		})
	}

	return plans, nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     string   `json:"id"`
}

func buildSubscribeFrame(symbols []string) ([]byte, error) {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(s) + "@aggTrade"
	}
	req := subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: uuid.NewString()}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("binance adapter: marshal subscribe frame: %w", err)
	}
	return data, nil
}

// aggTradeFrame is the subset of Binance's aggTrade stream event this
// pipeline consumes.
type aggTradeFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// ParseFrame implements connector.Adapter. Non-aggTrade frames (subscribe
// acks, errors) are expected and return a plain error for the caller to
// log at debug level.
func (a *Adapter) ParseFrame(data []byte) (*ticker.Trade, error) {
	var f aggTradeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("binance: not json: %w", err)
	}
	if f.EventType != "aggTrade" || f.Symbol == "" {
		return nil, fmt.Errorf("binance: not an aggTrade frame")
	}

	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return nil, fmt.Errorf("binance: invalid price %q: %w", f.Price, err)
	}
	volume, err := decimal.NewFromString(f.Quantity)
	if err != nil {
		return nil, fmt.Errorf("binance: invalid quantity %q: %w", f.Quantity, err)
	}

	return &ticker.Trade{
		Ticker:    ticker.Build(f.Symbol, ticker.Binance),
		Price:     price,
		Volume:    volume,
		Timestamp: time.UnixMilli(f.TradeTime),
	}, nil
}
