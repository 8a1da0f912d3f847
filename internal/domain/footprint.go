package domain

// PriceLevel is the bid/ask volume captured at one bucketed price of a bar.
type PriceLevel struct {
	Price       float64
	BidVolume   float64
	AskVolume   float64
	Significant bool
	InBody      bool
}

// Total returns the combined volume at the level.
func (l PriceLevel) Total() float64 {
	return l.BidVolume + l.AskVolume
}

// Bar is a candle enriched with its price-level volume profile.
// Levels are ordered by strictly descending price.
type Bar struct {
	Timestamp    int64 // open time, unix milliseconds
	TimeLabel    string
	Open         float64
	High         float64
	Low          float64
	Close        float64
	OpenRounded  float64
	HighRounded  float64
	LowRounded   float64
	CloseRounded float64
	Volume       float64
	Levels       []PriceLevel
	Bullish      bool
	TotalBid     float64
	TotalAsk     float64
	Delta        float64 // TotalAsk - TotalBid
	Enriched     bool    // trades were fetched for this bar
}

// Stats summarises a bar series.
type Stats struct {
	Price     float64
	Volume    float64
	Delta     float64
	BarsCount int
	Error     string
}

// Footprint is the aggregated series served to the dashboard.
type Footprint struct {
	Bars  []Bar
	Stats Stats
}

// ErrorFootprint is the tagged "no data" result returned when candles are unavailable.
func ErrorFootprint(msg string) *Footprint {
	return &Footprint{Bars: []Bar{}, Stats: Stats{Error: msg}}
}

// Failed reports whether the footprint carries an upstream error marker.
func (f *Footprint) Failed() bool {
	return f != nil && f.Stats.Error != ""
}
