package footprint

import (
	"fmt"
	"sort"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"
)

// TradeFilter reduces the trades of the most recent candle to the "relevant" ones
// before they are bucketed.
type TradeFilter struct {
	Mode          domain.FilterMode
	Percentile    int     // percentile mode, 0-100
	MinQtyPercent float64 // min_qty mode, percent of the candle volume
	TopN          int     // top_n mode
}

// Validate checks the parameters used by the selected mode.
func (f TradeFilter) Validate() error {
	if !f.Mode.Valid() {
		return fmt.Errorf("unknown filter mode %q: %w", f.Mode, ports.ErrInvalidParameter)
	}
	switch f.Mode {
	case domain.FilterPercentile:
		if f.Percentile < 0 || f.Percentile > 100 {
			return fmt.Errorf("filter percentile %d outside [0,100]: %w", f.Percentile, ports.ErrInvalidParameter)
		}
	case domain.FilterMinQty:
		if f.MinQtyPercent < 0 {
			return fmt.Errorf("filter min qty %v must not be negative: %w", f.MinQtyPercent, ports.ErrInvalidParameter)
		}
	case domain.FilterTopN:
		if f.TopN < 1 {
			return fmt.Errorf("filter top n %d must be at least 1: %w", f.TopN, ports.ErrInvalidParameter)
		}
	}
	return nil
}

// Apply returns the trades that pass the filter. The input slice is not modified.
func (f TradeFilter) Apply(trades []*domain.AggTrade, candleVolume float64) []*domain.AggTrade {
	if len(trades) == 0 {
		return trades
	}

	switch f.Mode {
	case domain.FilterMinQty:
		return keepAtLeast(trades, candleVolume*(f.MinQtyPercent/100))

	case domain.FilterPercentile:
		return keepAtLeast(trades, percentileThreshold(trades, f.Percentile))

	case domain.FilterTopN:
		sorted := make([]*domain.AggTrade, len(trades))
		copy(sorted, trades)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Quantity > sorted[j].Quantity
		})
		if f.TopN < len(sorted) {
			sorted = sorted[:f.TopN]
		}
		return sorted

	default:
		return trades
	}
}

// percentileThreshold uses the nearest-rank method: index floor(n*p/100) of the
// ascending quantities, clamped to the last element.
func percentileThreshold(trades []*domain.AggTrade, percentile int) float64 {
	quantities := make([]float64, len(trades))
	for i, t := range trades {
		quantities[i] = t.Quantity
	}
	sort.Float64s(quantities)

	idx := len(quantities) * percentile / 100
	if idx > len(quantities)-1 {
		idx = len(quantities) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return quantities[idx]
}

func keepAtLeast(trades []*domain.AggTrade, threshold float64) []*domain.AggTrade {
	kept := make([]*domain.AggTrade, 0, len(trades))
	for _, t := range trades {
		if t.Quantity >= threshold {
			kept = append(kept, t)
		}
	}
	return kept
}
