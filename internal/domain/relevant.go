package domain

// RelevantOrder is a resting order large enough to matter near the current price.
type RelevantOrder struct {
	Price    float64
	Quantity float64
	Total    float64 // Price * Quantity
}

// PricePoint is one candle of the price history drawn next to the relevant orders.
type PricePoint struct {
	Time  int64 // open time, unix milliseconds
	Price float64
	High  float64
	Low   float64
}

// RelevantOrders is the order book reduced to large orders inside a band around the price.
type RelevantOrders struct {
	CurrentPrice   float64
	MinPrice       float64
	MaxPrice       float64
	RangePct       float64
	History        []PricePoint
	ChartTimeframe string
	Bids           []RelevantOrder // quantity descending
	Asks           []RelevantOrder // quantity descending
	TotalBidQty    float64
	TotalAskQty    float64
	TotalBidValue  float64
	TotalAskValue  float64
	MinQty         float64
}

// Delta is the bid quantity minus the ask quantity.
func (r *RelevantOrders) Delta() float64 {
	return r.TotalBidQty - r.TotalAskQty
}
