package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const amountPlaces = 6

// SplitAmount divides amount into n equal parts rounded to 6 decimal places.
// The parts need not add back up to amount exactly.
func SplitAmount(amount decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevelCount, n)
	}

	part := amount.Div(decimal.NewFromInt(int64(n))).Round(amountPlaces)
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		parts[i] = part
	}
	return parts, nil
}
