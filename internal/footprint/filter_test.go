package footprint

import (
	"testing"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"

	"github.com/stretchr/testify/assert"
)

func tradesWithQuantities(qs ...float64) []*domain.AggTrade {
	trades := make([]*domain.AggTrade, len(qs))
	for i, q := range qs {
		trades[i] = &domain.AggTrade{ID: int64(i + 1), Price: 100, Quantity: q}
	}
	return trades
}

func quantities(trades []*domain.AggTrade) []float64 {
	qs := make([]float64, len(trades))
	for i, t := range trades {
		qs[i] = t.Quantity
	}
	return qs
}

func TestTradeFilter_Apply(t *testing.T) {
	oneToTen := tradesWithQuantities(3, 1, 10, 7, 2, 9, 4, 8, 6, 5)

	tests := []struct {
		name         string
		filter       TradeFilter
		trades       []*domain.AggTrade
		candleVolume float64
		expected     []float64
	}{
		{
			name:     "none keeps everything",
			filter:   TradeFilter{Mode: domain.FilterNone},
			trades:   oneToTen,
			expected: []float64{3, 1, 10, 7, 2, 9, 4, 8, 6, 5},
		},
		{
			name:     "75th percentile keeps 8, 9 and 10",
			filter:   TradeFilter{Mode: domain.FilterPercentile, Percentile: 75},
			trades:   oneToTen,
			expected: []float64{10, 9, 8},
		},
		{
			name:     "100th percentile clamps to the largest",
			filter:   TradeFilter{Mode: domain.FilterPercentile, Percentile: 100},
			trades:   oneToTen,
			expected: []float64{10},
		},
		{
			name:     "0th percentile keeps everything",
			filter:   TradeFilter{Mode: domain.FilterPercentile, Percentile: 0},
			trades:   oneToTen,
			expected: []float64{3, 1, 10, 7, 2, 9, 4, 8, 6, 5},
		},
		{
			name:         "min qty is a share of candle volume",
			filter:       TradeFilter{Mode: domain.FilterMinQty, MinQtyPercent: 5},
			trades:       oneToTen,
			candleVolume: 130, // threshold 6.5
			expected:     []float64{10, 7, 9, 8},
		},
		{
			name:     "top n keeps the largest, largest first",
			filter:   TradeFilter{Mode: domain.FilterTopN, TopN: 3},
			trades:   oneToTen,
			expected: []float64{10, 9, 8},
		},
		{
			name:     "top n larger than input keeps all",
			filter:   TradeFilter{Mode: domain.FilterTopN, TopN: 300},
			trades:   tradesWithQuantities(1, 2),
			expected: []float64{2, 1},
		},
		{
			name:     "empty input",
			filter:   TradeFilter{Mode: domain.FilterPercentile, Percentile: 75},
			trades:   nil,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(tt.trades, tt.candleVolume)
			assert.ElementsMatch(t, tt.expected, quantities(got))
			if tt.filter.Mode == domain.FilterTopN {
				assert.Equal(t, tt.expected, quantities(got))
			}
		})
	}
}

func TestTradeFilter_ApplyDoesNotReorderInput(t *testing.T) {
	trades := tradesWithQuantities(1, 5, 3)
	TradeFilter{Mode: domain.FilterTopN, TopN: 1}.Apply(trades, 0)
	TradeFilter{Mode: domain.FilterPercentile, Percentile: 50}.Apply(trades, 0)
	assert.Equal(t, []float64{1, 5, 3}, quantities(trades))
}

func TestTradeFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  TradeFilter
		wantErr bool
	}{
		{"none", TradeFilter{Mode: domain.FilterNone}, false},
		{"percentile", TradeFilter{Mode: domain.FilterPercentile, Percentile: 75}, false},
		{"percentile too high", TradeFilter{Mode: domain.FilterPercentile, Percentile: 101}, true},
		{"percentile negative", TradeFilter{Mode: domain.FilterPercentile, Percentile: -1}, true},
		{"min qty", TradeFilter{Mode: domain.FilterMinQty, MinQtyPercent: 0.5}, false},
		{"min qty negative", TradeFilter{Mode: domain.FilterMinQty, MinQtyPercent: -0.5}, true},
		{"top n", TradeFilter{Mode: domain.FilterTopN, TopN: 300}, false},
		{"top n zero", TradeFilter{Mode: domain.FilterTopN}, true},
		{"unknown mode", TradeFilter{Mode: "loudest"}, true},
		{"empty mode", TradeFilter{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrInvalidParameter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
