package footprint

import (
	"fmt"
	"math"

	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"

	"github.com/shopspring/decimal"
)

// Grid limits. Indices beyond 2^53 are no longer exact, and a bar spanning more
// levels than MaxLevelsPerBar is refused rather than materialized.
const (
	maxBucketIndex  = 1 << 53
	MaxLevelsPerBar = 10000
)

// Bucket maps price onto the grid of multiples of step, rounding half away from zero.
// The result is stable under repeated bucketing with the same step. A step so small
// that price/step leaves the exact integer range is an ErrInvalidParameter.
func Bucket(price, step float64) (float64, error) {
	if err := validateStep(step); err != nil {
		return 0, err
	}
	idx, err := bucketIndex(price, step)
	if err != nil {
		return 0, err
	}
	return levelPrice(idx, step), nil
}

func validateStep(step float64) error {
	if !(step > 0) || math.IsInf(step, 0) {
		return fmt.Errorf("step %v must be a positive number: %w", step, ports.ErrInvalidParameter)
	}
	return nil
}

// bucketIndex returns the grid index of price. Decimal arithmetic keeps prices
// such as 0.3 with step 0.1 from landing on the wrong side of a half.
func bucketIndex(price, step float64) (int64, error) {
	q := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(step)).Round(0)
	if q.Abs().GreaterThan(decimal.NewFromInt(maxBucketIndex)) {
		return 0, fmt.Errorf("price %v is too far from zero for step %v: %w", price, step, ports.ErrInvalidParameter)
	}
	return q.IntPart(), nil
}

// gridBounds returns the bucket indices of a candle's low and high, refusing candles
// whose band would span more than MaxLevelsPerBar levels.
func gridBounds(k *domain.Kline, step float64) (lowIdx, highIdx int64, err error) {
	if err := validateStep(step); err != nil {
		return 0, 0, err
	}
	if lowIdx, err = bucketIndex(k.Low, step); err != nil {
		return 0, 0, err
	}
	if highIdx, err = bucketIndex(k.High, step); err != nil {
		return 0, 0, err
	}
	if highIdx-lowIdx+1 > MaxLevelsPerBar {
		return 0, 0, fmt.Errorf("candle %v..%v spans %d levels at step %v, limit %d: %w",
			k.Low, k.High, highIdx-lowIdx+1, step, MaxLevelsPerBar, ports.ErrInvalidParameter)
	}
	return lowIdx, highIdx, nil
}

// levelPrice is the price of grid index idx.
func levelPrice(idx int64, step float64) float64 {
	return decimal.NewFromInt(idx).Mul(decimal.NewFromFloat(step)).InexactFloat64()
}
