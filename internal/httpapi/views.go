package httpapi

import (
	"github.com/shopspring/decimal"

	"btcFootprint/internal/domain"
)

// round2 rounds for display. Aggregation itself keeps full precision.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

type levelView struct {
	Price       float64 `json:"price"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Significant bool    `json:"significant"`
	InBody      bool    `json:"in_body"`
}

type barView struct {
	Timestamp    int64       `json:"timestamp"`
	Time         string      `json:"time"`
	Open         float64     `json:"open"`
	High         float64     `json:"high"`
	Low          float64     `json:"low"`
	Close        float64     `json:"close"`
	OpenRounded  float64     `json:"open_rounded"`
	CloseRounded float64     `json:"close_rounded"`
	HighRounded  float64     `json:"high_rounded"`
	LowRounded   float64     `json:"low_rounded"`
	Volume       float64     `json:"volume"`
	Levels       []levelView `json:"levels"`
	Bullish      bool        `json:"bullish"`
	Delta        float64     `json:"delta"`
	TotalBid     float64     `json:"total_bid"`
	TotalAsk     float64     `json:"total_ask"`
	Enriched     bool        `json:"enriched"`
}

type statsView struct {
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Delta     float64 `json:"delta"`
	BarsCount int     `json:"bars_count"`
}

type errorStatsView struct {
	Error string `json:"error"`
}

type footprintView struct {
	Bars  []barView   `json:"bars"`
	Stats interface{} `json:"stats"`
}

func newFootprintView(fp *domain.Footprint) footprintView {
	if fp.Failed() {
		return footprintView{Bars: []barView{}, Stats: errorStatsView{Error: fp.Stats.Error}}
	}

	bars := make([]barView, len(fp.Bars))
	for i, b := range fp.Bars {
		levels := make([]levelView, len(b.Levels))
		for j, l := range b.Levels {
			levels[j] = levelView{
				Price:       l.Price,
				Bid:         round2(l.BidVolume),
				Ask:         round2(l.AskVolume),
				Significant: l.Significant,
				InBody:      l.InBody,
			}
		}
		bars[i] = barView{
			Timestamp:    b.Timestamp,
			Time:         b.TimeLabel,
			Open:         round2(b.Open),
			High:         round2(b.High),
			Low:          round2(b.Low),
			Close:        round2(b.Close),
			OpenRounded:  b.OpenRounded,
			CloseRounded: b.CloseRounded,
			HighRounded:  b.HighRounded,
			LowRounded:   b.LowRounded,
			Volume:       round2(b.Volume),
			Levels:       levels,
			Bullish:      b.Bullish,
			Delta:        round2(b.Delta),
			TotalBid:     round2(b.TotalBid),
			TotalAsk:     round2(b.TotalAsk),
			Enriched:     b.Enriched,
		}
	}

	return footprintView{
		Bars: bars,
		Stats: statsView{
			Price:     round2(fp.Stats.Price),
			Volume:    round2(fp.Stats.Volume),
			Delta:     round2(fp.Stats.Delta),
			BarsCount: fp.Stats.BarsCount,
		},
	}
}

type orderBookView struct {
	LastUpdateID int64        `json:"lastUpdateId"`
	Bids         [][2]float64 `json:"bids"`
	Asks         [][2]float64 `json:"asks"`
}

func newOrderBookView(book *domain.OrderBook) orderBookView {
	view := orderBookView{
		LastUpdateID: book.LastUpdateID,
		Bids:         make([][2]float64, len(book.Bids)),
		Asks:         make([][2]float64, len(book.Asks)),
	}
	for i, l := range book.Bids {
		view.Bids[i] = [2]float64{l.Price, l.Quantity}
	}
	for i, l := range book.Asks {
		view.Asks[i] = [2]float64{l.Price, l.Quantity}
	}
	return view
}

type relevantOrderView struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

type pricePointView struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
}

type priceRangeView struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Pct        float64 `json:"pct"`
	TotalRange float64 `json:"total_range"`
}

type relevantSummaryView struct {
	TotalBidQty     float64 `json:"total_bid_qty"`
	TotalAskQty     float64 `json:"total_ask_qty"`
	TotalBidValue   float64 `json:"total_bid_value"`
	TotalAskValue   float64 `json:"total_ask_value"`
	Delta           float64 `json:"delta"`
	MinQtyThreshold float64 `json:"min_qty_threshold"`
}

type relevantOrdersView struct {
	CurrentPrice   float64             `json:"current_price"`
	PriceRange     priceRangeView      `json:"price_range"`
	PriceHistory   []pricePointView    `json:"price_history"`
	ChartTimeframe string              `json:"chart_timeframe"`
	Bids           []relevantOrderView `json:"bids"`
	Asks           []relevantOrderView `json:"asks"`
	Summary        relevantSummaryView `json:"summary"`
}

func relevantOrderViews(orders []domain.RelevantOrder) []relevantOrderView {
	views := make([]relevantOrderView, len(orders))
	for i, o := range orders {
		views[i] = relevantOrderView{Price: o.Price, Quantity: o.Quantity, Total: round2(o.Total)}
	}
	return views
}

func newRelevantOrdersView(r *domain.RelevantOrders) relevantOrdersView {
	history := make([]pricePointView, len(r.History))
	for i, p := range r.History {
		history[i] = pricePointView{Time: p.Time, Price: p.Price, High: p.High, Low: p.Low}
	}
	return relevantOrdersView{
		CurrentPrice: r.CurrentPrice,
		PriceRange: priceRangeView{
			Min:        round2(r.MinPrice),
			Max:        round2(r.MaxPrice),
			Pct:        r.RangePct,
			TotalRange: round2(r.MaxPrice - r.MinPrice),
		},
		PriceHistory:   history,
		ChartTimeframe: r.ChartTimeframe,
		Bids:           relevantOrderViews(r.Bids),
		Asks:           relevantOrderViews(r.Asks),
		Summary: relevantSummaryView{
			TotalBidQty:     round2(r.TotalBidQty),
			TotalAskQty:     round2(r.TotalAskQty),
			TotalBidValue:   round2(r.TotalBidValue),
			TotalAskValue:   round2(r.TotalAskValue),
			Delta:           round2(r.Delta()),
			MinQtyThreshold: r.MinQty,
		},
	}
}
