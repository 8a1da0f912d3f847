package ports

import (
	"context"
	"time"

	"btcFootprint/internal/domain"
)

// MarketDataClient is the read-only view of the exchange the footprint pipeline needs.
// The trading pair is fixed when the client is constructed.
//
// On failure every method returns an empty, non-nil result together with the error, so
// callers that only care about "data or no data" may ignore the error after logging it.
// Implementations must be safe for concurrent use.
type MarketDataClient interface {
	// GetKlines retrieves the most recent klines for the interval, oldest first.
	GetKlines(ctx context.Context, interval string, limit int) ([]*domain.Kline, error)

	// GetAggTrades retrieves aggregated trades with start <= time <= end.
	// At most one page (1000 trades) is returned.
	GetAggTrades(ctx context.Context, start, end time.Time) ([]*domain.AggTrade, error)

	// GetOrderBook retrieves a depth snapshot with up to limit levels per side.
	GetOrderBook(ctx context.Context, limit int) (*domain.OrderBook, error)
}
