package pricing

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// satoshiExp is the decimal exponent of one satoshi.
const satoshiExp = -8

// ParseSatoshiText reads a satoshi count out of free text such as "2400sat"
// and returns it in coin units. Every non-digit character is dropped.
func ParseSatoshiText(text string) (decimal.Decimal, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return decimal.Zero, fmt.Errorf("%w: %q has no digits", ErrInvalidAmountFormat, text)
	}

	count, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmountFormat, err)
	}
	return count.Shift(satoshiExp), nil
}

// ParseRate accepts either satoshi text ("2400sat") or a plain decimal ("0.000024").
func ParseRate(text string) (decimal.Decimal, error) {
	if strings.Contains(strings.ToLower(text), "sat") {
		return ParseSatoshiText(text)
	}

	rate, err := decimal.NewFromString(strings.TrimFunc(text, unicode.IsSpace))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, text)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmountFormat, text)
	}
	return rate, nil
}

// SatoshiToCoin converts an integer satoshi count into coin units.
func SatoshiToCoin(satoshi int64) decimal.Decimal {
	return decimal.New(satoshi, satoshiExp)
}

var (
	maxSatoshi = decimal.NewFromInt(math.MaxInt64)
	minSatoshi = decimal.NewFromInt(math.MinInt64)
)

// CoinToSatoshi converts a coin amount into satoshis, truncating toward zero.
// Amounts whose satoshi count does not fit an int64 are rejected.
func CoinToSatoshi(coin decimal.Decimal) (int64, error) {
	satoshi := coin.Shift(-satoshiExp).Truncate(0)
	if satoshi.GreaterThan(maxSatoshi) || satoshi.LessThan(minSatoshi) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmountFormat, coin)
	}
	return satoshi.IntPart(), nil
}
