package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"btcFootprint/config"
	"btcFootprint/internal/adapters/binanceclient"
	"btcFootprint/internal/adapters/logger"
	"btcFootprint/internal/adapters/sqlite"
	"btcFootprint/internal/domain"
	"btcFootprint/internal/footprint"
	"btcFootprint/internal/ports"
	"btcFootprint/internal/utils"
)

var (
	interval = flag.String("interval", "", "candle interval (default DEFAULT_INTERVAL)")
	step     = flag.Float64("step", 0, "price bucket step (default DEFAULT_STEP)")
	filter   = flag.String("filter", "", "trade filter mode: none, min_qty, percentile or top_n (default DEFAULT_FILTER_MODE)")
	limit    = flag.Int("limit", 0, "number of candles (default KLINE_LIMIT)")
	enrich   = flag.Int("enrich", -1, "trailing candles enriched with trades (default ENRICH_BARS)")
	format   = flag.String("format", "csv", "output format: csv or sqlite")
	out      = flag.String("out", "", "output file (default data/footprint_<symbol>_<interval>_<step>.csv or data/footprint.db)")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	applyDefaults(cfg)

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	ctx := context.Background()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		Symbol:       cfg.Symbol,
		BaseURL:      cfg.BinanceBaseURL,
		Logger:       appLogger,
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
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	aggregator, err := footprint.NewAggregator(footprint.Config{Trades: binanceClient, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize aggregator: %v", err)
	}

	// 4. Fetch and aggregate
	fmt.Printf("Fetching %d %s candles for %s, step %g, filter %s...\n", *limit, *interval, cfg.Symbol, *step, *filter)
	klines, err := binanceClient.GetKlines(ctx, *interval, *limit)
	if err != nil {
		appLogger.Warn(ctx, "Klines unavailable", map[string]interface{}{"error": err.Error()})
	}

	fp, err := aggregator.Aggregate(ctx, klines, footprint.SeriesConfig{
		Interval: *interval,
		Step:     *step,
		Enrich:   footprint.TrailingEnrich(*enrich),
		Filter: footprint.TradeFilter{
			Mode:          domain.FilterMode(*filter),
			Percentile:    cfg.DefaultFilterPercentile,
			MinQtyPercent: cfg.DefaultFilterMinQty,
			TopN:          cfg.DefaultFilterTopN,
		},
		Fill:     domain.LevelFill(cfg.LevelFill),
		Location: cfg.Location,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to aggregate footprint: %v", err)
	}
	if fp.Failed() {
		log.Fatalf("FATAL: No data: %s", fp.Stats.Error)
	}

	// 5. Write output
	switch *format {
	case "csv":
		path := *out
		if path == "" {
			path = fmt.Sprintf("data/footprint_%s_%s_%g.csv", cfg.Symbol, *interval, *step)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			log.Fatalf("FATAL: Failed to create output directory: %v", err)
		}
		if err := utils.WriteBarsToCSV(fp.Bars, path); err != nil {
			log.Fatalf("FATAL: Error writing CSV: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": path, "bars": len(fp.Bars)})

	case "sqlite":
		path := *out
		if path == "" {
			path = "data/footprint.db"
		}
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: path, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open repository: %v", err)
		}
		// log.Fatalf skips defers, so the repository is closed explicitly on both paths.
		n, err := repo.SaveBars(ctx, ports.SeriesKey{Symbol: cfg.Symbol, Interval: *interval, Step: *step}, fp.Bars)
		if closeErr := repo.Close(); closeErr != nil {
			appLogger.Error(ctx, closeErr, "Failed to close repository", map[string]interface{}{"database": path})
		}
		if err != nil {
			log.Fatalf("FATAL: Failed to save bars: %v", err)
		}
		appLogger.Info(ctx, "Saved to", map[string]interface{}{"database": path, "bars": n})

	default:
		log.Fatalf("FATAL: unknown format %q, want csv or sqlite", *format)
	}
}

func applyDefaults(cfg *config.Config) {
	if *interval == "" {
		*interval = cfg.DefaultInterval
	}
	if *step == 0 {
		*step = cfg.DefaultStep
	}
	if *filter == "" {
		*filter = cfg.DefaultFilterMode
	}
	if *limit <= 0 {
		*limit = cfg.KlineLimit
	}
	if *enrich < 0 {
		*enrich = cfg.EnrichBars
	}
}
