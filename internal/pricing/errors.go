package pricing

import "errors"

var (
	ErrInvalidAmountFormat   = errors.New("invalid amount format")
	ErrInsufficientRange     = errors.New("ladder count exceeds available price points")
	ErrInvalidLevelCount     = errors.New("level count must be positive")
	ErrRangeOverflow         = errors.New("price range exceeds satoshi limits")
	ErrDivisionByZero        = errors.New("target price is zero")
	ErrSpreadExceedsRate     = errors.New("spread is larger than rate")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
)
