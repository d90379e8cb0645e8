package main

import (
	"context"
	"net/http"
	"time"

	"github.com/Pantilei/crypto-converter/internal/aggregator"
	"github.com/Pantilei/crypto-converter/internal/config"
	"github.com/Pantilei/crypto-converter/internal/connector"
	"github.com/Pantilei/crypto-converter/internal/connector/binance"
	"github.com/Pantilei/crypto-converter/internal/di"
	"github.com/Pantilei/crypto-converter/internal/httpapi"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/monolith"
	"github.com/Pantilei/crypto-converter/internal/storage"
)

const tokenStore di.Token = "store"

// ingestModule wires the connector->dispatcher->aggregator pipeline and
// mounts the candle endpoint onto mux.
type ingestModule struct {
	cfg *config.IngestConfig
	mux *http.ServeMux
	log logger.LoggerInterface
}

func (m *ingestModule) RegisterServices(c *di.Container) error {
	return di.RegisterToken(c, tokenStore, func(c *di.Container) (*storage.Store, error) {
		return storage.Connect(context.Background(), m.cfg.Storage.DSN, m.log)
	})
}

func (m *ingestModule) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	storeAny, _ := mono.Services().Get(tokenStore)
	store := storeAny.(*storage.Store)

	agg := aggregator.New(store, log, m.cfg.TradesToCandles)
	if err := agg.Warmup(ctx); err != nil {
		log.Warn(ctx, "warmup failed, starting with empty buffer", "error", err.Error())
	}
	agg.Start(ctx)

	adapter, err := binance.NewAdapter(binance.Config{
		WebSocketURL:      m.cfg.Binance.WebSocketURL,
		RESTURL:           m.cfg.Binance.RESTURL,
		SymbolsPerStream:  m.cfg.Binance.SymbolsPerStream,
		MaxSubsPerMessage: m.cfg.Binance.MaxSubsPerMessage,
		SubDelay:          m.cfg.Binance.SubDelay(),
		RetryPeriod:       m.cfg.Binance.RetryPeriod(),
	}, log)
	if err != nil {
		return err
	}

	conn := connector.New(log, 1000, adapter)
	trades, err := conn.Run(ctx)
	if err != nil {
		return err
	}
	go agg.Intake(ctx, trades)

	m.mux.Handle("/candles", httpapi.NewCandlesHandler(agg, log))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		agg.Shutdown(shutdownCtx)
		conn.Stop()
		store.Close()
	}()

	return nil
}
