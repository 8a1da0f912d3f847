package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"btcFootprint/config"
	"btcFootprint/internal/cache"
	"btcFootprint/internal/domain"
	"btcFootprint/internal/footprint"
	"btcFootprint/internal/ports"
)

// FootprintRequest is one /api/data query after defaults are applied.
type FootprintRequest struct {
	Interval   string
	Step       float64
	UpdateLast bool
	Filter     footprint.TradeFilter
}

// FootprintService answers dashboard queries: footprint series, the order book,
// and relevant resting orders.
type FootprintService struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.MarketDataClient
	aggregator *footprint.Aggregator
	cache      *cache.Cache
}

// NewFootprintService creates a new application service instance.
func NewFootprintService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.MarketDataClient,
	aggregator *footprint.Aggregator,
	responseCache *cache.Cache,
) (*FootprintService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || aggregator == nil || responseCache == nil {
		return nil, fmt.Errorf("missing required dependencies for FootprintService")
	}

	// Validate config values needed by service
	if cfg.KlineLimit <= 0 {
		return nil, fmt.Errorf("configuration KlineLimit must be positive")
	}
	if cfg.EnrichBars < 0 {
		return nil, fmt.Errorf("configuration EnrichBars cannot be negative")
	}
	if cfg.OrderBookDepth <= 0 {
		return nil, fmt.Errorf("configuration OrderBookDepth must be positive")
	}

	return &FootprintService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		aggregator: aggregator,
		cache:      responseCache,
	}, nil
}

// DefaultRequest returns the query used when a request leaves parameters out.
func (s *FootprintService) DefaultRequest() FootprintRequest {
	return FootprintRequest{
		Interval: s.cfg.DefaultInterval,
		Step:     s.cfg.DefaultStep,
		Filter: footprint.TradeFilter{
			Mode:          domain.FilterMode(s.cfg.DefaultFilterMode),
			Percentile:    s.cfg.DefaultFilterPercentile,
			MinQtyPercent: s.cfg.DefaultFilterMinQty,
			TopN:          s.cfg.DefaultFilterTopN,
		},
	}
}

func (s *FootprintService) seriesConfig(req FootprintRequest, enrich footprint.EnrichPredicate) footprint.SeriesConfig {
	return footprint.SeriesConfig{
		Interval: req.Interval,
		Step:     req.Step,
		Enrich:   enrich,
		Filter:   req.Filter,
		Fill:     domain.LevelFill(s.cfg.LevelFill),
		Location: s.cfg.Location,
	}
}

func cacheKey(req FootprintRequest) cache.Key {
	return cache.Key{
		Interval:   req.Interval,
		Step:       req.Step,
		FilterMode: req.Filter.Mode,
		Percentile: req.Filter.Percentile,
		MinQty:     req.Filter.MinQtyPercent,
		TopN:       req.Filter.TopN,
	}
}

// Footprint returns the footprint series for req. A full request is served from the
// cache when possible; an UpdateLast request recomputes only the newest candle and
// merges it into the cached series. Upstream failures produce an error-tagged
// footprint, not an error; invalid parameters return ports.ErrInvalidParameter.
//
// Work started here runs to completion even if the caller goes away.
func (s *FootprintService) Footprint(ctx context.Context, req FootprintRequest) (*domain.Footprint, error) {
	if _, err := s.seriesConfig(req, nil).Validate(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	key := cacheKey(req)

	if !req.UpdateLast {
		return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*domain.Footprint, error) {
			return s.compute(ctx, req, s.cfg.KlineLimit, footprint.TrailingEnrich(s.cfg.EnrichBars))
		})
	}

	return s.cache.RefreshLast(ctx, key, func(ctx context.Context, cached bool) (*domain.Footprint, error) {
		if cached {
			return s.compute(ctx, req, 1, footprint.LastOnly)
		}
		return s.compute(ctx, req, s.cfg.KlineLimit, footprint.LastOnly)
	})
}

func (s *FootprintService) compute(ctx context.Context, req FootprintRequest, limit int, enrich footprint.EnrichPredicate) (*domain.Footprint, error) {
	started := time.Now()
	klines, err := s.exchange.GetKlines(ctx, req.Interval, limit)
	if err != nil {
		s.logger.Warn(ctx, "Klines unavailable", map[string]interface{}{
			"interval": req.Interval,
			"limit":    limit,
			"error":    err.Error(),
		})
	}

	fp, err := s.aggregator.Aggregate(ctx, klines, s.seriesConfig(req, enrich))
	if err != nil {
		return nil, fmt.Errorf("aggregating %s series: %w", req.Interval, err)
	}
	s.logger.Info(ctx, "Footprint computed", map[string]interface{}{
		"interval":   req.Interval,
		"step":       req.Step,
		"filter":     string(req.Filter.Mode),
		"updateLast": req.UpdateLast,
		"bars":       len(fp.Bars),
		"elapsedMs":  time.Since(started).Milliseconds(),
	})
	return fp, nil
}

// OrderBook returns the depth snapshot, fetched at most once per order book TTL.
// On failure it returns an empty book together with the error.
func (s *FootprintService) OrderBook(ctx context.Context) (*domain.OrderBook, error) {
	ctx = context.WithoutCancel(ctx)
	book, err := s.cache.OrderBook(ctx, func(ctx context.Context) (*domain.OrderBook, error) {
		return s.exchange.GetOrderBook(ctx, s.cfg.OrderBookDepth)
	})
	if err != nil {
		if book == nil {
			book = &domain.OrderBook{}
		}
		return book, err
	}
	return book, nil
}

// RelevantOrders reduces the order book to orders larger than the configured quantity
// inside a band of RelevantRangePct percent around the last close of chartTF.
// An empty chartTF uses the configured default.
func (s *FootprintService) RelevantOrders(ctx context.Context, chartTF string) (*domain.RelevantOrders, error) {
	if chartTF == "" {
		chartTF = s.cfg.RelevantChartTF
	}
	if _, err := domain.IntervalDuration(chartTF); err != nil {
		return nil, fmt.Errorf("chart timeframe: %v: %w", err, ports.ErrInvalidParameter)
	}
	ctx = context.WithoutCancel(ctx)

	klines, err := s.exchange.GetKlines(ctx, chartTF, s.cfg.KlineLimit)
	if len(klines) == 0 {
		if err == nil {
			err = ports.ErrNoData
		}
		return nil, fmt.Errorf("cannot fetch price data: %w", err)
	}

	book, err := s.OrderBook(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch order book: %w", err)
	}

	current := klines[len(klines)-1].Close
	band := current * (s.cfg.RelevantRangePct / 100)
	result := &domain.RelevantOrders{
		CurrentPrice:   current,
		MinPrice:       current - band,
		MaxPrice:       current + band,
		RangePct:       s.cfg.RelevantRangePct,
		ChartTimeframe: chartTF,
		MinQty:         s.cfg.RelevantMinQty,
	}

	history := klines
	if len(history) > s.cfg.RelevantHistory {
		history = history[len(history)-s.cfg.RelevantHistory:]
	}
	result.History = make([]domain.PricePoint, len(history))
	for i, k := range history {
		result.History[i] = domain.PricePoint{Time: k.OpenTime.UnixMilli(), Price: k.Close, High: k.High, Low: k.Low}
	}

	result.Bids, result.TotalBidQty, result.TotalBidValue = s.relevant(book.Bids, result.MinPrice, result.MaxPrice)
	result.Asks, result.TotalAskQty, result.TotalAskValue = s.relevant(book.Asks, result.MinPrice, result.MaxPrice)

	s.logger.Debug(ctx, "Relevant orders selected", map[string]interface{}{
		"chartTF": chartTF,
		"bids":    len(result.Bids),
		"asks":    len(result.Asks),
	})
	return result, nil
}

// relevant keeps levels inside [lo, hi] whose quantity exceeds the threshold,
// largest first, and returns their quantity and notional totals.
func (s *FootprintService) relevant(levels []domain.BookLevel, lo, hi float64) ([]domain.RelevantOrder, float64, float64) {
	orders := make([]domain.RelevantOrder, 0)
	var qty, value float64
	for _, l := range levels {
		if l.Price < lo || l.Price > hi || l.Quantity <= s.cfg.RelevantMinQty {
			continue
		}
		o := domain.RelevantOrder{Price: l.Price, Quantity: l.Quantity, Total: l.Price * l.Quantity}
		orders = append(orders, o)
		qty += o.Quantity
		value += o.Total
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].Quantity > orders[j].Quantity })
	return orders, qty, value
}
