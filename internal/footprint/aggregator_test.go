package footprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type tradeCall struct {
	start, end time.Time
}

// mockTradeSource serves trades keyed by window start.
type mockTradeSource struct {
	mu     sync.Mutex
	trades map[int64][]*domain.AggTrade
	errs   map[int64]error
	calls  []tradeCall
}

func (m *mockTradeSource) GetAggTrades(ctx context.Context, start, end time.Time) ([]*domain.AggTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, tradeCall{start: start, end: end})
	if err := m.errs[start.UnixMilli()]; err != nil {
		return []*domain.AggTrade{}, err
	}
	return m.trades[start.UnixMilli()], nil
}

func trade(price, qty float64, maker bool) *domain.AggTrade {
	return &domain.AggTrade{Price: price, Quantity: qty, IsBuyerMaker: maker}
}

func levelPrices(b domain.Bar) []float64 {
	prices := make([]float64, len(b.Levels))
	for i, l := range b.Levels {
		prices[i] = l.Price
	}
	return prices
}

func levelByPrice(t *testing.T, b domain.Bar, price float64) domain.PriceLevel {
	t.Helper()
	for _, l := range b.Levels {
		if l.Price == price {
			return l
		}
	}
	t.Fatalf("no level at %v", price)
	return domain.PriceLevel{}
}

func assertBarInvariants(t *testing.T, b domain.Bar) {
	t.Helper()
	var bid, ask float64
	for i, l := range b.Levels {
		if i > 0 {
			assert.Greater(t, b.Levels[i-1].Price, l.Price, "levels strictly descending")
		}
		lo, hi := b.OpenRounded, b.CloseRounded
		if lo > hi {
			lo, hi = hi, lo
		}
		assert.Equal(t, l.Price >= lo && l.Price <= hi, l.InBody, "in_body at %v", l.Price)
		bid += l.BidVolume
		ask += l.AskVolume
	}
	assert.InDelta(t, b.TotalBid, bid, 1e-9)
	assert.InDelta(t, b.TotalAsk, ask, 1e-9)
	assert.InDelta(t, ask-bid, b.Delta, 1e-9)
}

func TestBuildBar(t *testing.T) {
	k := &domain.Kline{
		OpenTime: time.UnixMilli(1700000000000),
		Open:     100.4, High: 130, Low: 95, Close: 121, Volume: 12,
	}
	trades := []*domain.AggTrade{
		trade(101, 2, true),   // bid at 100
		trade(119, 3, false),  // ask at 120
		trade(129, 1, false),  // ask at 130, above the body
		trade(90, 5, false),   // below bucketed low, dropped
		trade(140, 5, true),   // above bucketed high, dropped
		trade(110, 0, true),   // zero quantity, ignored
	}

	bar, err := BuildBar(k, trades, 10, domain.FillBody)
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000000), bar.Timestamp)
	assert.Equal(t, 100.0, bar.OpenRounded)
	assert.Equal(t, 130.0, bar.HighRounded)
	assert.Equal(t, 100.0, bar.LowRounded)
	assert.Equal(t, 120.0, bar.CloseRounded)
	assert.True(t, bar.Bullish)
	assert.Equal(t, 12.0, bar.Volume)

	assert.Equal(t, []float64{130, 120, 110, 100}, levelPrices(bar))
	assert.Equal(t, 2.0, bar.TotalBid)
	assert.Equal(t, 4.0, bar.TotalAsk)
	assert.Equal(t, 2.0, bar.Delta)

	top := levelByPrice(t, bar, 130)
	assert.False(t, top.InBody)
	assert.True(t, top.Significant)
	assert.Equal(t, 1.0, top.AskVolume)

	empty := levelByPrice(t, bar, 110)
	assert.True(t, empty.InBody)
	assert.False(t, empty.Significant)
	assert.Zero(t, empty.Total())

	low := levelByPrice(t, bar, 100)
	assert.Equal(t, 2.0, low.BidVolume)
	assert.True(t, low.Significant)

	assertBarInvariants(t, bar)
}

func TestBuildBar_Significance(t *testing.T) {
	k := &domain.Kline{Open: 100, High: 103, Low: 99, Close: 102, Volume: 100}
	trades := []*domain.AggTrade{
		trade(100, 13, false),
		trade(101, 9, true),
		trade(102, 78, false),
	}

	bar, err := BuildBar(k, trades, 1, domain.FillBody)
	require.NoError(t, err)

	assert.True(t, levelByPrice(t, bar, 100).Significant, "13 > 12% of 100")
	assert.False(t, levelByPrice(t, bar, 101).Significant, "9 < 12% of 100")
	assert.True(t, levelByPrice(t, bar, 102).Significant)
	assertBarInvariants(t, bar)
}

func TestBuildBar_SignificanceFloor(t *testing.T) {
	k := &domain.Kline{Open: 100, High: 101, Low: 99, Close: 101}
	bar, err := BuildBar(k, []*domain.AggTrade{trade(100, 0.05, false), trade(101, 0.02, true)}, 1, domain.FillBody)
	require.NoError(t, err)

	for _, l := range bar.Levels {
		assert.False(t, l.Significant, "near-empty bar flags nothing at %v", l.Price)
	}
}

func TestBuildBar_NoTrades(t *testing.T) {
	tests := []struct {
		name     string
		kline    *domain.Kline
		fill     domain.LevelFill
		expected []float64
	}{
		{
			name:     "body fill bullish",
			kline:    &domain.Kline{Open: 100, High: 140, Low: 80, Close: 120},
			fill:     domain.FillBody,
			expected: []float64{120, 110, 100},
		},
		{
			name:     "body fill bearish",
			kline:    &domain.Kline{Open: 120, High: 140, Low: 80, Close: 100},
			fill:     domain.FillBody,
			expected: []float64{120, 110, 100},
		},
		{
			name:     "default fill is body",
			kline:    &domain.Kline{Open: 100, High: 140, Low: 80, Close: 110},
			expected: []float64{110, 100},
		},
		{
			name:     "doji",
			kline:    &domain.Kline{Open: 101, High: 140, Low: 80, Close: 99},
			fill:     domain.FillBody,
			expected: []float64{100},
		},
		{
			name:     "range fill",
			kline:    &domain.Kline{Open: 100, High: 130, Low: 90, Close: 120},
			fill:     domain.FillRange,
			expected: []float64{130, 120, 110, 100, 90},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar, err := BuildBar(tt.kline, nil, 10, tt.fill)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, levelPrices(bar))
			assert.Zero(t, bar.Delta)
			for _, l := range bar.Levels {
				assert.Zero(t, l.Total())
				assert.False(t, l.Significant)
			}
			assertBarInvariants(t, bar)
		})
	}
}

func TestBuildBar_FractionalStepHasUniquePrices(t *testing.T) {
	k := &domain.Kline{Open: 0.3, High: 0.7, Low: 0.1, Close: 0.6}
	trades := []*domain.AggTrade{trade(0.31, 1, true), trade(0.29, 1, false), trade(0.7, 2, false)}

	bar, err := BuildBar(k, trades, 0.1, domain.FillBody)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.7, 0.6, 0.5, 0.4, 0.3}, levelPrices(bar))
	l := levelByPrice(t, bar, 0.3)
	assert.Equal(t, 1.0, l.BidVolume)
	assert.Equal(t, 1.0, l.AskVolume)
	assertBarInvariants(t, bar)
}

func TestBuildBar_GridLimits(t *testing.T) {
	wide := &domain.Kline{Open: 59995, High: 60010, Low: 59990, Close: 60005}

	tests := []struct {
		name   string
		kline  *domain.Kline
		step   float64
		levels int
		ok     bool
	}{
		{"cent step fits", wide, 0.01, 2001, true},
		{"band at the limit", &domain.Kline{Open: 1, High: 9999, Low: 0, Close: 2}, 1, MaxLevelsPerBar, true},
		{"band one past the limit", &domain.Kline{Open: 1, High: 10000, Low: 0, Close: 2}, 1, 0, false},
		{"tiny step", wide, 1e-7, 0, false},
		{"index beyond exact range", wide, 1e-15, 0, false},
		{"body outside the band", &domain.Kline{Open: 0, High: 2, Low: 1, Close: 20000}, 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar, err := BuildBar(tt.kline, nil, tt.step, domain.FillRange)
			if !tt.ok {
				assert.ErrorIs(t, err, ports.ErrInvalidParameter)
				assert.ErrorIs(t, CheckGrid(tt.kline, tt.step), ports.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, CheckGrid(tt.kline, tt.step))
			assert.Len(t, bar.Levels, tt.levels)
		})
	}
}

func TestBuildBar_DropsTradeOffTheGrid(t *testing.T) {
	k := &domain.Kline{Open: 100, High: 101, Low: 99, Close: 101}
	bar, err := BuildBar(k, []*domain.AggTrade{trade(1e300, 5, false), trade(100, 1, true)}, 1, domain.FillBody)
	require.NoError(t, err)
	assert.Equal(t, 1.0, bar.TotalBid)
	assert.Zero(t, bar.TotalAsk)
}

func klineSeries(start time.Time, interval time.Duration, n int) []*domain.Kline {
	klines := make([]*domain.Kline, n)
	for i := range klines {
		klines[i] = &domain.Kline{
			OpenTime: start.Add(time.Duration(i) * interval),
			Open:     100, High: 102, Low: 99, Close: 101 + float64(i),
			Volume: 10,
		}
	}
	return klines
}

func TestNewAggregator(t *testing.T) {
	_, err := NewAggregator(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewAggregator(Config{Trades: &mockTradeSource{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	agg, err := NewAggregator(Config{Trades: &mockTradeSource{}, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.NotNil(t, agg)
}

func TestAggregator_Aggregate(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC)
	klines := klineSeries(start, time.Minute, 3)
	klines[2].High = 105 // last candle: 99..105

	src := &mockTradeSource{trades: map[int64][]*domain.AggTrade{
		klines[1].OpenTime.UnixMilli(): {trade(100, 1, true), trade(101, 2, false)},
		klines[2].OpenTime.UnixMilli(): {trade(100, 1, true), trade(103, 5, false), trade(104, 0.5, false)},
	}}
	agg, err := NewAggregator(Config{Trades: src, Logger: &mockLogger{}})
	require.NoError(t, err)

	fp, err := agg.Aggregate(context.Background(), klines, SeriesConfig{
		Interval: "1m",
		Step:     1,
		Enrich:   TrailingEnrich(2),
		Filter:   TradeFilter{Mode: domain.FilterTopN, TopN: 1},
		Fill:     domain.FillBody,
		Location: time.UTC,
	})
	require.NoError(t, err)
	require.Len(t, fp.Bars, 3)

	require.Len(t, src.calls, 2, "only trailing candles are enriched")
	for i, call := range src.calls {
		k := klines[i+1]
		assert.Equal(t, k.OpenTime, call.start)
		assert.Equal(t, k.OpenTime.Add(time.Minute-time.Millisecond), call.end)
	}

	first := fp.Bars[0]
	assert.False(t, first.Enriched)
	assert.Zero(t, first.TotalBid+first.TotalAsk)
	assert.Equal(t, "10:03", first.TimeLabel)

	second := fp.Bars[1]
	assert.True(t, second.Enriched)
	assert.Equal(t, 1.0, second.TotalBid, "history is never filtered")
	assert.Equal(t, 2.0, second.TotalAsk)
	assert.Equal(t, "10:04", second.TimeLabel)

	last := fp.Bars[2]
	assert.True(t, last.Enriched)
	assert.Zero(t, last.TotalBid, "top_n 1 keeps only the largest trade")
	assert.Equal(t, 5.0, last.TotalAsk)
	assert.Equal(t, 5.0, last.Delta)

	for _, b := range fp.Bars {
		assertBarInvariants(t, b)
	}

	assert.Equal(t, 103.0, fp.Stats.Price)
	assert.Equal(t, 30.0, fp.Stats.Volume)
	assert.Equal(t, 6.0, fp.Stats.Delta)
	assert.Equal(t, 3, fp.Stats.BarsCount)
	assert.Empty(t, fp.Stats.Error)
}

func TestAggregator_Aggregate_LastOnly(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	klines := klineSeries(start, 24*time.Hour, 4)
	src := &mockTradeSource{}
	agg, err := NewAggregator(Config{Trades: src, Logger: &mockLogger{}})
	require.NoError(t, err)

	fp, err := agg.Aggregate(context.Background(), klines, SeriesConfig{
		Interval: "1d",
		Step:     1,
		Enrich:   LastOnly,
		Filter:   TradeFilter{Mode: domain.FilterNone},
		Location: time.UTC,
	})
	require.NoError(t, err)
	require.Len(t, src.calls, 1)
	assert.Equal(t, klines[3].OpenTime, src.calls[0].start)
	assert.Equal(t, klines[3].OpenTime.Add(24*time.Hour-time.Millisecond), src.calls[0].end)
	assert.Equal(t, "03/04", fp.Bars[3].TimeLabel)
}

func TestAggregator_Aggregate_TradeFailureLeavesBarEmpty(t *testing.T) {
	klines := klineSeries(time.UnixMilli(1700000000000), time.Minute, 2)
	src := &mockTradeSource{
		trades: map[int64][]*domain.AggTrade{
			klines[0].OpenTime.UnixMilli(): {trade(100, 3, true)},
		},
		errs: map[int64]error{
			klines[1].OpenTime.UnixMilli(): errors.New("exchange down"),
		},
	}
	agg, err := NewAggregator(Config{Trades: src, Logger: &mockLogger{}})
	require.NoError(t, err)

	fp, err := agg.Aggregate(context.Background(), klines, SeriesConfig{
		Interval: "1m",
		Step:     1,
		Enrich:   TrailingEnrich(20),
		Filter:   TradeFilter{Mode: domain.FilterPercentile, Percentile: 75},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, fp.Bars[0].TotalBid)
	assert.Zero(t, fp.Bars[1].TotalBid+fp.Bars[1].TotalAsk)
	assert.NotEmpty(t, fp.Bars[1].Levels, "body levels still present")
	assert.True(t, fp.Bars[0].Enriched)
	assert.False(t, fp.Bars[1].Enriched)
	assert.Equal(t, -3.0, fp.Stats.Delta)
}

func TestAggregator_Aggregate_NoCandles(t *testing.T) {
	agg, err := NewAggregator(Config{Trades: &mockTradeSource{}, Logger: &mockLogger{}})
	require.NoError(t, err)

	fp, err := agg.Aggregate(context.Background(), []*domain.Kline{}, SeriesConfig{
		Interval: "1m",
		Step:     10,
		Filter:   TradeFilter{Mode: domain.FilterNone},
	})
	require.NoError(t, err)
	assert.True(t, fp.Failed())
	assert.NotNil(t, fp.Bars)
	assert.Empty(t, fp.Bars)
	assert.Equal(t, NoDataMessage, fp.Stats.Error)
}

func TestAggregator_Aggregate_InvalidParameters(t *testing.T) {
	agg, err := NewAggregator(Config{Trades: &mockTradeSource{}, Logger: &mockLogger{}})
	require.NoError(t, err)
	klines := klineSeries(time.Now(), time.Minute, 1)

	tests := []struct {
		name string
		sc   SeriesConfig
	}{
		{"unknown interval", SeriesConfig{Interval: "2m", Step: 10, Filter: TradeFilter{Mode: domain.FilterNone}}},
		{"zero step", SeriesConfig{Interval: "1m", Step: 0, Filter: TradeFilter{Mode: domain.FilterNone}}},
		{"negative step", SeriesConfig{Interval: "1m", Step: -5, Filter: TradeFilter{Mode: domain.FilterNone}}},
		{"bad filter", SeriesConfig{Interval: "1m", Step: 10, Filter: TradeFilter{Mode: domain.FilterTopN}}},
		{"bad fill", SeriesConfig{Interval: "1m", Step: 10, Filter: TradeFilter{Mode: domain.FilterNone}, Fill: "wick"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.Aggregate(context.Background(), klines, tt.sc)
			assert.ErrorIs(t, err, ports.ErrInvalidParameter)
		})
	}
}

func TestAggregator_Aggregate_GridTooFine(t *testing.T) {
	klines := klineSeries(time.UnixMilli(1700000000000), time.Minute, 3)
	klines[0].Low, klines[0].High = 59990, 60010
	src := &mockTradeSource{}
	agg, err := NewAggregator(Config{Trades: src, Logger: &mockLogger{}})
	require.NoError(t, err)

	fp, err := agg.Aggregate(context.Background(), klines, SeriesConfig{
		Interval: "1m",
		Step:     1e-7,
		Enrich:   TrailingEnrich(20),
		Filter:   TradeFilter{Mode: domain.FilterNone},
	})
	assert.ErrorIs(t, err, ports.ErrInvalidParameter)
	assert.Nil(t, fp)
	assert.Empty(t, src.calls, "no trades fetched for a refused grid")
}

func TestEnrichPredicates(t *testing.T) {
	trailing := TrailingEnrich(20)
	assert.False(t, trailing(129, 150))
	assert.True(t, trailing(130, 150))
	assert.True(t, trailing(149, 150))
	assert.True(t, trailing(0, 5), "short series is fully enriched")

	assert.True(t, LastOnly(149, 150))
	assert.False(t, LastOnly(148, 150))
}
