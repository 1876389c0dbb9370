package exchange

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dodo/internal/config"
	"dodo/internal/pricing"

	"github.com/shopspring/decimal"
)

// withTimeout bounds a single REST request.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", pricing.ErrMarketDataUnavailable, err)
}

// feeOverride returns the configured fee schedule, if any fee is configured.
func feeOverride(cfg config.ExchangeConfig) (pricing.FeeSchedule, bool) {
	if cfg.MakerFeePercent == 0 && cfg.TakerFeePercent == 0 {
		return pricing.FeeSchedule{}, false
	}
	return pricing.FeeSchedule{
		Maker: fromPercent(cfg.MakerFeePercent),
		Taker: fromPercent(cfg.TakerFeePercent),
	}, true
}

func fromPercent(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Div(decimal.NewFromInt(100))
}

// parseDecimal treats empty exchange fields as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
