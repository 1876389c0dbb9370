package exchange

import (
	"fmt"
	"sort"
	"strings"

	"dodo/internal/config"
	"dodo/internal/keystore"

	"go.uber.org/zap"
)

const (
	Binance = "binance"
	Kraken  = "kraken"
)

var aliases = map[string]string{
	"binance": Binance,
	"bnb":     Binance,
	"kraken":  Kraken,
}

// Supported lists the exchanges a client can be created for.
func Supported() []string {
	return []string{Binance, Kraken}
}

// Canonical resolves an exchange name or alias such as "bnb".
func Canonical(name string) (string, bool) {
	canonical, ok := aliases[strings.ToLower(name)]
	return canonical, ok
}

// Aliases returns the alternative names of an exchange.
func Aliases(name string) []string {
	var out []string
	for alias, canonical := range aliases {
		if canonical == name && alias != name {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *zap.SugaredLogger, cfg *config.Config, creds keystore.Credentials) (Client, error) {
	canonical, ok := Canonical(name)
	if !ok {
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}

	switch canonical {
	case Kraken:
		return NewKrakenClient(logger, cfg.Settings, cfg.Exchange(Kraken), creds)
	default:
		return NewBinanceClient(logger, cfg.Settings, cfg.Exchange(Binance), creds)
	}
}
