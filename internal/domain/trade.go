package domain

import "time"

// AggTrade is one aggregated market trade as reported by the exchange.
type AggTrade struct {
	ID           int64
	Price        float64
	Quantity     float64
	IsBuyerMaker bool // true when the aggressor sold into a resting bid
	Time         time.Time
}
