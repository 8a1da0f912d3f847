package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"btcFootprint/config"
	"btcFootprint/internal/adapters/binanceclient"
	"btcFootprint/internal/adapters/logger"
	"btcFootprint/internal/app"
	"btcFootprint/internal/cache"
	"btcFootprint/internal/footprint"
	"btcFootprint/internal/httpapi"
	"btcFootprint/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		Symbol:       cfg.Symbol,
		BaseURL:      cfg.BinanceBaseURL,
		Logger:       appLogger,
		Metrics:      appMetrics,
		Klines:       binanceclient.RetryPolicy{Attempts: cfg.KlinesRetries, Timeout: cfg.KlinesTimeout()},
		Trades:       binanceclient.RetryPolicy{Attempts: cfg.TradesRetries, Timeout: cfg.TradesTimeout()},
		Depth:        binanceclient.RetryPolicy{Attempts: cfg.DepthRetries, Timeout: cfg.DepthTimeout()},
		RetryBackoff: cfg.RetryBackoff(),
		RateLimit:    cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,

		RetryBackoffFactor: cfg.RetryBackoffFactor,
		RetryBackoffMax:    cfg.RetryBackoffMax(),
		RetryJitter:        cfg.RetryJitter,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized", map[string]interface{}{"symbol": binanceClient.Symbol()})

	// 5. Aggregator and response cache
	aggregator, err := footprint.NewAggregator(footprint.Config{
		Trades:  binanceClient,
		Logger:  appLogger,
		Metrics: appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize aggregator")
		log.Fatalf("FATAL: Failed to initialize aggregator: %v", err)
	}

	responseCache, err := cache.New(cache.Config{
		TTL:          cfg.CacheTTL(),
		OrderBookTTL: cfg.OrderBookTTL(),
		Window:       cfg.KlineLimit,
		Logger:       appLogger,
		Metrics:      appMetrics,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize response cache")
		log.Fatalf("FATAL: Failed to initialize response cache: %v", err)
	}

	// 6. Initialize Application Service
	footprintService, err := app.NewFootprintService(cfg, appLogger, binanceClient, aggregator, responseCache)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize footprint service")
		log.Fatalf("FATAL: Failed to initialize footprint service: %v", err)
	}

	// 7. HTTP server
	// Write timeout covers a full uncached series: klines plus the enriched trade fetches.
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(httpapi.NewHandler(footprintService, appLogger), registry),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		appLogger.Info(context.Background(), "HTTP server listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(context.Background(), err, "HTTP server failed")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	appLogger.Info(context.Background(), "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
