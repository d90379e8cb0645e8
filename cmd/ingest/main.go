// Command ingest runs the quote_consumer process: it subscribes to an
// exchange's trade stream, aggregates trades into one-second candles, and
// serves the memory-only candle lookup endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Pantilei/crypto-converter/internal/apm"
	"github.com/Pantilei/crypto-converter/internal/config"
	"github.com/Pantilei/crypto-converter/internal/health"
	"github.com/Pantilei/crypto-converter/internal/logger"
	"github.com/Pantilei/crypto-converter/internal/metrics"
	"github.com/Pantilei/crypto-converter/internal/monolith"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ingest %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadIngestConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting ingest service", "version", version, "port", cfg.Port)

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
		)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	mono := monolith.New(log)

	mux := http.NewServeMux()
	module := &ingestModule{cfg: cfg, mux: mux, log: log}

	if err := mono.RegisterModules(module); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	healthServer := health.NewServer(cfg.Port, version)
	healthServer.RegisterCheck("storage", func(ctx context.Context) (bool, string) {
		storeAny, ok := mono.Services().Get(tokenStore)
		if !ok {
			return false, "store not registered"
		}
		pinger, ok := storeAny.(interface{ Ping(context.Context) error })
		if !ok {
			return true, ""
		}
		if err := pinger.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})
	healthMux := healthServer.Mux()
	mux.Handle("/health", healthMux)
	mux.Handle("/ready", healthMux)
	mux.Handle("/live", healthMux)
	mux.Handle("/metrics", promhttp.Handler())

	if err := mono.StartModules(ctx, module); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "http server listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
