package ports

import (
	"context"

	"btcFootprint/internal/domain"
)

// SeriesKey identifies one exported footprint series.
type SeriesKey struct {
	Symbol   string
	Interval string
	Step     float64
}

// FootprintRepository stores exported footprint bars for offline study.
type FootprintRepository interface {
	// SaveBars upserts the bars of a series, replacing the levels of bars already stored.
	SaveBars(ctx context.Context, key SeriesKey, bars []domain.Bar) (int, error)
	// FindBars returns up to limit most recent bars of a series, oldest first, levels included.
	FindBars(ctx context.Context, key SeriesKey, limit int) ([]domain.Bar, error)
}
