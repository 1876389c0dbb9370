// Package convert prices one coin in terms of others using the CryptoCompare API.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dodo/internal/config"
	"dodo/internal/transport"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
)

const DefaultBaseURL = "https://min-api.cryptocompare.com"

var (
	ErrAPI           = errors.New("cryptocompare api error")
	ErrUnknownSymbol = errors.New("no rate for symbol")
)

// Converter queries CryptoCompare spot prices.
type Converter struct {
	BaseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New builds a Converter honouring the proxy and timeout settings.
func New(settings config.SettingsConfig) (*Converter, error) {
	httpClient, err := transport.NewHTTPClient(settings)
	if err != nil {
		return nil, err
	}

	return &Converter{
		BaseURL:    DefaultBaseURL,
		httpClient: httpClient,
		timeout:    transport.RequestTimeout(settings),
	}, nil
}

// Ratio returns the price of one from coin in each of the comma separated to coins.
func (c *Converter) Ratio(ctx context.Context, from, to string) (map[string]decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.ReplaceAll(to, " ", ""))

	params := url.Values{}
	params.Set("fsym", from)
	params.Set("tsyms", to)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/data/price?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare price: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare price: read body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptocompare price: unexpected status %d", res.StatusCode)
	}

	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare price: parse response: %w", err)
	}
	if string(v.GetStringBytes("Response")) == "Error" {
		return nil, fmt.Errorf("%w: %s", ErrAPI, v.GetStringBytes("Message"))
	}

	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("cryptocompare price: %w", err)
	}

	rates := make(map[string]decimal.Decimal, obj.Len())
	var visitErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if visitErr != nil {
			return
		}
		f, err := val.Float64()
		if err != nil {
			visitErr = fmt.Errorf("cryptocompare price %s: %w", key, err)
			return
		}
		rates[string(key)] = decimal.NewFromFloat(f)
	})
	if visitErr != nil {
		return nil, visitErr
	}
	return rates, nil
}

// Convert prices qty of from in units of to.
func (c *Converter) Convert(ctx context.Context, from string, qty decimal.Decimal, to string) (decimal.Decimal, error) {
	rates, err := c.Ratio(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	rate, ok := rates[strings.ToUpper(strings.TrimSpace(to))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, to)
	}
	return qty.Mul(rate), nil
}
