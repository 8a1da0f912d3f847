package domain

import (
	"fmt"
	"time"
)

// FilterMode selects how trades of the most recent candle are reduced before bucketing.
type FilterMode string

const (
	FilterNone       FilterMode = "none"
	FilterMinQty     FilterMode = "min_qty"
	FilterPercentile FilterMode = "percentile"
	FilterTopN       FilterMode = "top_n"
)

// Valid reports whether m is a known filter mode.
func (m FilterMode) Valid() bool {
	switch m {
	case FilterNone, FilterMinQty, FilterPercentile, FilterTopN:
		return true
	default:
		return false
	}
}

// LevelFill controls which zero-volume price levels a bar always carries.
type LevelFill string

const (
	// FillBody adds every step between the bucketed open and close.
	FillBody LevelFill = "body"
	// FillRange adds every step between the bucketed low and high.
	FillRange LevelFill = "range"
)

// Valid reports whether f is a known fill mode.
func (f LevelFill) Valid() bool {
	return f == FillBody || f == FillRange
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// SupportedIntervals lists the kline intervals the dashboard serves, shortest first.
func SupportedIntervals() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "1d"}
}

// IntervalDuration returns the candle length for a kline interval.
// Unknown intervals are rejected rather than silently defaulted.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervalDurations[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}
