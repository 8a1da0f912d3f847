package footprint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/metrics"
	"btcFootprint/internal/ports"
)

// NoDataMessage is the stats error reported when the exchange returned no candles.
const NoDataMessage = "Timeout API Binance"

const (
	significantShare = 0.12
	significantFloor = 0.1
)

// TradeSource supplies the trades of one candle window.
type TradeSource interface {
	GetAggTrades(ctx context.Context, start, end time.Time) ([]*domain.AggTrade, error)
}

// EnrichPredicate decides whether candle index of total gets a volume profile.
type EnrichPredicate func(index, total int) bool

// TrailingEnrich enriches the last n candles of a series.
func TrailingEnrich(n int) EnrichPredicate {
	return func(index, total int) bool {
		return index >= total-n
	}
}

// LastOnly enriches only the most recent candle.
func LastOnly(index, total int) bool {
	return index == total-1
}

// SeriesConfig describes one aggregation run.
type SeriesConfig struct {
	Interval string
	Step     float64
	Enrich   EnrichPredicate // nil enriches nothing
	Filter   TradeFilter     // applied to the most recent candle only
	Fill     domain.LevelFill
	Location *time.Location // time labels, defaults to time.Local
}

// Validate checks the run parameters and returns the candle duration.
func (c SeriesConfig) Validate() (time.Duration, error) {
	d, err := domain.IntervalDuration(c.Interval)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, ports.ErrInvalidParameter)
	}
	if err := validateStep(c.Step); err != nil {
		return 0, err
	}
	if err := c.Filter.Validate(); err != nil {
		return 0, err
	}
	if c.Fill != "" && !c.Fill.Valid() {
		return 0, fmt.Errorf("unknown level fill %q: %w", c.Fill, ports.ErrInvalidParameter)
	}
	return d, nil
}

// Aggregator turns candles and their trades into footprint bars.
type Aggregator struct {
	trades  TradeSource
	logger  ports.Logger
	metrics *metrics.Metrics
}

// Config holds the collaborators of an Aggregator.
type Config struct {
	Trades  TradeSource
	Logger  ports.Logger
	Metrics *metrics.Metrics // optional
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Trades == nil {
		return nil, fmt.Errorf("trade source is required for aggregator: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for aggregator: %w", ports.ErrConfigurationError)
	}
	return &Aggregator{trades: cfg.Trades, logger: cfg.Logger, metrics: cfg.Metrics}, nil
}

// Aggregate builds one bar per candle, fetching trades for the candles the enrich
// predicate selects. An empty candle list yields an error-tagged footprint, not an error.
// Trade fetch failures are logged and leave the bar without volume.
func (a *Aggregator) Aggregate(ctx context.Context, klines []*domain.Kline, sc SeriesConfig) (*domain.Footprint, error) {
	dur, err := sc.Validate()
	if err != nil {
		return nil, err
	}
	if len(klines) == 0 {
		return domain.ErrorFootprint(NoDataMessage), nil
	}

	started := time.Now()
	defer func() { a.metrics.ObserveAggregation(time.Since(started)) }()

	loc := sc.Location
	if loc == nil {
		loc = time.Local
	}

	// Refuse the whole series up front so no trades are fetched for a grid that
	// cannot be built.
	for _, k := range klines {
		if err := CheckGrid(k, sc.Step); err != nil {
			return nil, err
		}
	}

	total := len(klines)
	bars := make([]domain.Bar, 0, total)
	for i, k := range klines {
		enrich := sc.Enrich != nil && sc.Enrich(i, total)

		var trades []*domain.AggTrade
		enriched := enrich
		if enrich {
			// The aggTrades end bound is inclusive.
			end := k.OpenTime.Add(dur - time.Millisecond)
			trades, err = a.trades.GetAggTrades(ctx, k.OpenTime, end)
			if err != nil {
				a.logger.Warn(ctx, "Trades unavailable, bar left without volume profile", map[string]interface{}{
					"interval":  sc.Interval,
					"timestamp": k.OpenTime.UnixMilli(),
					"error":     err.Error(),
				})
				trades = nil
				enriched = false
			}
			if i == total-1 {
				before := len(trades)
				trades = sc.Filter.Apply(trades, k.Volume)
				a.logger.Debug(ctx, "Trade filter applied to last candle", map[string]interface{}{
					"mode":   string(sc.Filter.Mode),
					"before": before,
					"after":  len(trades),
				})
			}
			a.metrics.AddEnrichedTrades(len(trades))
		}

		bar, err := BuildBar(k, trades, sc.Step, sc.Fill)
		if err != nil {
			return nil, err
		}
		bar.TimeLabel = TimeLabel(k.OpenTime, sc.Interval, loc)
		bar.Enriched = enriched
		bars = append(bars, bar)
	}

	return &domain.Footprint{Bars: bars, Stats: Summarize(bars)}, nil
}

// CheckGrid reports whether a candle can be laid out on the step grid: every
// price must bucket exactly and neither the low..high band nor the open..close
// body may exceed MaxLevelsPerBar levels.
func CheckGrid(k *domain.Kline, step float64) error {
	_, _, _, _, err := candleIndices(k, step)
	return err
}

func candleIndices(k *domain.Kline, step float64) (openIdx, highIdx, lowIdx, closeIdx int64, err error) {
	if lowIdx, highIdx, err = gridBounds(k, step); err != nil {
		return 0, 0, 0, 0, err
	}
	if openIdx, err = bucketIndex(k.Open, step); err != nil {
		return 0, 0, 0, 0, err
	}
	if closeIdx, err = bucketIndex(k.Close, step); err != nil {
		return 0, 0, 0, 0, err
	}
	lo, hi := openIdx, closeIdx
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi-lo+1 > MaxLevelsPerBar {
		return 0, 0, 0, 0, fmt.Errorf("candle body %v..%v spans %d levels at step %v, limit %d: %w",
			k.Open, k.Close, hi-lo+1, step, MaxLevelsPerBar, ports.ErrInvalidParameter)
	}
	return openIdx, highIdx, lowIdx, closeIdx, nil
}

// BuildBar buckets trades into the price levels of one candle. Candles CheckGrid
// refuses yield an ErrInvalidParameter and no bar.
// Trades whose bucketed price falls outside the bucketed low..high band are dropped.
// A maker buyer counts as bid volume, anything else as ask volume.
func BuildBar(k *domain.Kline, trades []*domain.AggTrade, step float64, fill domain.LevelFill) (domain.Bar, error) {
	openIdx, highIdx, lowIdx, closeIdx, err := candleIndices(k, step)
	if err != nil {
		return domain.Bar{}, err
	}

	bodyLo, bodyHi := openIdx, closeIdx
	if bodyLo > bodyHi {
		bodyLo, bodyHi = bodyHi, bodyLo
	}

	type sides struct{ bid, ask float64 }
	volumes := make(map[int64]*sides)
	for _, t := range trades {
		if t == nil || t.Quantity <= 0 {
			continue
		}
		idx, err := bucketIndex(t.Price, step)
		if err != nil || idx < lowIdx || idx > highIdx {
			continue
		}
		v, ok := volumes[idx]
		if !ok {
			v = &sides{}
			volumes[idx] = v
		}
		if t.IsBuyerMaker {
			v.bid += t.Quantity
		} else {
			v.ask += t.Quantity
		}
	}

	fillLo, fillHi := bodyLo, bodyHi
	if fill == domain.FillRange {
		fillLo, fillHi = lowIdx, highIdx
	}
	active := make(map[int64]struct{}, int(fillHi-fillLo+1)+len(volumes))
	for idx := fillLo; idx <= fillHi; idx++ {
		active[idx] = struct{}{}
	}
	for idx := range volumes {
		active[idx] = struct{}{}
	}

	indices := make([]int64, 0, len(active))
	for idx := range active {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] > indices[j] })

	levels := make([]domain.PriceLevel, len(indices))
	var totalBid, totalAsk float64
	for i, idx := range indices {
		lvl := domain.PriceLevel{
			Price:  levelPrice(idx, step),
			InBody: idx >= bodyLo && idx <= bodyHi,
		}
		if v, ok := volumes[idx]; ok {
			lvl.BidVolume = v.bid
			lvl.AskVolume = v.ask
		}
		totalBid += lvl.BidVolume
		totalAsk += lvl.AskVolume
		levels[i] = lvl
	}

	threshold := (totalBid + totalAsk) * significantShare
	if threshold < significantFloor {
		threshold = significantFloor
	}
	for i := range levels {
		levels[i].Significant = levels[i].Total() > threshold
	}

	return domain.Bar{
		Timestamp:    k.OpenTime.UnixMilli(),
		Open:         k.Open,
		High:         k.High,
		Low:          k.Low,
		Close:        k.Close,
		OpenRounded:  levelPrice(openIdx, step),
		HighRounded:  levelPrice(highIdx, step),
		LowRounded:   levelPrice(lowIdx, step),
		CloseRounded: levelPrice(closeIdx, step),
		Volume:       k.Volume,
		Levels:       levels,
		Bullish:      k.Close > k.Open,
		TotalBid:     totalBid,
		TotalAsk:     totalAsk,
		Delta:        totalAsk - totalBid,
	}, nil
}

// TimeLabel formats a candle open time for the chart axis.
func TimeLabel(t time.Time, interval string, loc *time.Location) string {
	if interval == "1d" {
		return t.In(loc).Format("01/02")
	}
	return t.In(loc).Format("15:04")
}
