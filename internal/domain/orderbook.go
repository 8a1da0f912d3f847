package domain

import "time"

// BookLevel is a single resting price level.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot. Bids are best (highest) first, asks best (lowest) first.
type OrderBook struct {
	LastUpdateID int64
	Bids         []BookLevel
	Asks         []BookLevel
	FetchedAt    time.Time
}

// Empty reports whether the snapshot has no levels on either side.
func (b *OrderBook) Empty() bool {
	return b == nil || (len(b.Bids) == 0 && len(b.Asks) == 0)
}
