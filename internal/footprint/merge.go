package footprint

import "btcFootprint/internal/domain"

// MergeLastBar reconciles a freshly computed bar with a held series. A bar for the
// same candle as the last one replaces it, a newer candle is appended, and a stale
// bar for an earlier candle replaces its match if present. The input is not modified.
func MergeLastBar(series []domain.Bar, bar domain.Bar) []domain.Bar {
	merged := make([]domain.Bar, len(series), len(series)+1)
	copy(merged, series)

	if len(merged) == 0 {
		return append(merged, bar)
	}

	last := merged[len(merged)-1]
	switch {
	case bar.Timestamp == last.Timestamp:
		merged[len(merged)-1] = bar
	case bar.Timestamp > last.Timestamp:
		merged = append(merged, bar)
	default:
		for i := range merged {
			if merged[i].Timestamp == bar.Timestamp {
				merged[i] = bar
				break
			}
		}
	}
	return merged
}

// Trim keeps the limit most recent bars. limit <= 0 keeps everything.
func Trim(series []domain.Bar, limit int) []domain.Bar {
	if limit <= 0 || len(series) <= limit {
		return series
	}
	return series[len(series)-limit:]
}

// Summarize computes series stats from the bars held.
func Summarize(series []domain.Bar) domain.Stats {
	stats := domain.Stats{BarsCount: len(series)}
	if len(series) == 0 {
		return stats
	}
	for _, b := range series {
		stats.Volume += b.Volume
		stats.Delta += b.Delta
	}
	stats.Price = series[len(series)-1].Close
	return stats
}
