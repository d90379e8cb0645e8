package main

import (
	"context"
	"net/http"
	"time"

	"github.com/Pantilei/crypto-converter/internal/config"
	"github.com/Pantilei/crypto-converter/internal/di"
	"github.com/Pantilei/crypto-converter/internal/httpapi"
	"github.com/Pantilei/crypto-converter/internal/httpclient"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/monolith"
	"github.com/Pantilei/crypto-converter/internal/storage"
)

const tokenStore di.Token = "store"

// quoteModule wires the currency_conversion process: a circuit-broken
// fallback from the ingest process's candle endpoint to durable storage.
type quoteModule struct {
	cfg *config.QuoteConfig
	mux *http.ServeMux
	log logger.LoggerInterface
}

func (m *quoteModule) RegisterServices(c *di.Container) error {
	return di.RegisterToken(c, tokenStore, func(c *di.Container) (*storage.Store, error) {
		return storage.Connect(context.Background(), m.cfg.Storage.DSN, m.log)
	})
}

func (m *quoteModule) Startup(ctx context.Context, mono monolith.Monolith) error {
	storeAny, _ := mono.Services().Get(tokenStore)
	store := storeAny.(*storage.Store)

	memClient, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("quote-consumer"),
		httpclient.WithBaseURL(m.cfg.QuoteConsumerService),
		httpclient.WithRequestTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}

	convertHandler := httpapi.NewConvertHandler(memClient, m.cfg.QuoteConsumerService, store, m.cfg.StaleAfter(), m.log)
	m.mux.Handle("/convert", httpapi.CORS(m.cfg.AllowedOrigins, convertHandler))

	go func() {
		<-ctx.Done()
		store.Close()
	}()

	return nil
}
