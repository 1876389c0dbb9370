package model

import (
	"fmt"
	"strings"
)

// Pair is a market identified by its base and quote assets, e.g. XRP/BTC.
type Pair struct {
	Base, Quote string
}

// ParsePair reads "BASE-QUOTE", "BASE/QUOTE" or "BASE_QUOTE", case-insensitively.
func ParsePair(pair string) (Pair, error) {
	symbols := strings.FieldsFunc(strings.ToUpper(strings.TrimSpace(pair)), func(r rune) bool {
		return r == '-' || r == '/' || r == '_'
	})
	if len(symbols) != 2 {
		return Pair{}, fmt.Errorf("invalid market pair %q, want BASE-QUOTE", pair)
	}

	return Pair{Base: symbols[0], Quote: symbols[1]}, nil
}

// Symbol concatenates base and quote, the form most exchanges use.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// IsZero reports whether the pair is unset.
func (p Pair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}
