package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Source is the random source used to sample ladder prices.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Int64N(n int64) int64
}

// Level is a single limit order of a ladder.
type Level struct {
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// SpreadIt samples n distinct satoshi prices from [center-spread, center+spread).
// The returned order is unspecified.
func SpreadIt(center, spread int64, n int, rng Source) ([]int64, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevelCount, n)
	}
	if spread < 0 || spread > math.MaxInt64/2 || center > math.MaxInt64-spread || center < math.MinInt64+spread {
		return nil, fmt.Errorf("%w: center %d, spread %d", ErrRangeOverflow, center, spread)
	}
	width := 2 * spread
	if int64(n) > width {
		return nil, fmt.Errorf("%w: %d levels in a range of %d", ErrInsufficientRange, n, width)
	}

	// Floyd's sampling: n draws regardless of the width of the range.
	low := center - spread
	picked := make(map[int64]struct{}, n)
	out := make([]int64, 0, n)
	for j := width - int64(n); j < width; j++ {
		t := rng.Int64N(j + 1)
		if _, ok := picked[t]; ok {
			t = j
		}
		picked[t] = struct{}{}
		out = append(out, low+t)
	}
	return out, nil
}

// Ladder scatters amount across n limit orders priced around rate.
func Ladder(rate, spread, amount decimal.Decimal, n int, rng Source) ([]Level, error) {
	if spread.GreaterThanOrEqual(rate) {
		return nil, fmt.Errorf("%w: spread %s, rate %s", ErrSpreadExceedsRate, spread, rate)
	}

	center, err := CoinToSatoshi(rate)
	if err != nil {
		return nil, err
	}
	half, err := CoinToSatoshi(spread)
	if err != nil {
		return nil, err
	}
	prices, err := SpreadIt(center, half, n, rng)
	if err != nil {
		return nil, err
	}
	amounts, err := SplitAmount(amount, n)
	if err != nil {
		return nil, err
	}

	levels := make([]Level, n)
	for i := range levels {
		levels[i] = Level{Rate: SatoshiToCoin(prices[i]), Amount: amounts[i]}
	}
	return levels, nil
}
