package pricing

import (
	"context"

	"dodo/internal/model"

	"github.com/shopspring/decimal"
)

// FeeSchedule holds maker and taker fees as fractions, e.g. 0.001 for 0.1%.
type FeeSchedule struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// MarketSnapshot is the market state a sizing calculation is made against.
type MarketSnapshot struct {
	LastPrice decimal.Decimal
}

// MarketDataSource provides the market state needed to size an order.
// Implementations wrap transport failures with ErrMarketDataUnavailable.
type MarketDataSource interface {
	LastPrice(ctx context.Context, pair model.Pair) (decimal.Decimal, error)
	FeeSchedule(ctx context.Context, pair model.Pair) (FeeSchedule, error)
}

// Worth returns how much coin base buys at target once the fee is paid.
// A target at or below the last price crosses the book and pays the taker fee.
func Worth(base, target decimal.Decimal, snap MarketSnapshot, fees FeeSchedule) (decimal.Decimal, error) {
	if target.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	fee := fees.Maker
	if snap.LastPrice.GreaterThanOrEqual(target) {
		fee = fees.Taker
	}
	budget := base.Mul(decimal.NewFromInt(1).Sub(fee))
	return budget.Div(target), nil
}

// WorthFrom is Worth with the snapshot and fees fetched from src.
func WorthFrom(ctx context.Context, src MarketDataSource, pair model.Pair, base, target decimal.Decimal) (decimal.Decimal, error) {
	if target.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}

	last, err := src.LastPrice(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	fees, err := src.FeeSchedule(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	return Worth(base, target, MarketSnapshot{LastPrice: last}, fees)
}
