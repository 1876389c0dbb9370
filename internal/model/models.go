package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick represents a single price update from an exchange stream.
type PriceTick struct {
	Exchange string
	Pair     Pair
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Last     decimal.Decimal
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes resting limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderRequest is a single order handed to an exchange for submission.
// Rate is ignored for market orders.
type OrderRequest struct {
	ClientID string
	Pair     Pair
	Side     Side
	Type     OrderType
	Rate     decimal.Decimal
	Amount   decimal.Decimal
	Leverage int
}

// OrderAck is the exchange confirmation of a placed order.
type OrderAck struct {
	Exchange string
	OrderID  string
	ClientID string
	Status   string
}

// Order is an open order on an exchange.
type Order struct {
	OrderID string
	Pair    string
	Side    Side
	Type    OrderType
	Rate    decimal.Decimal
	Amount  decimal.Decimal
	Filled  decimal.Decimal
	Status  string
}

// Market is a tradeable pair listed on an exchange.
type Market struct {
	Symbol string
	Base   string
	Quote  string
	Active bool
}

// Offer is a single order book level.
type Offer struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth is an order book snapshot, best prices first.
type Depth struct {
	Bids []Offer
	Asks []Offer
}

// Ticker is a 24h market summary.
type Ticker struct {
	Last   decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Volume decimal.Decimal
}

// Spread returns the distance between the best ask and the best bid.
func (t Ticker) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Balance is an account holding of a single asset.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// DepositAddress is where coins can be sent to fund an account.
type DepositAddress struct {
	Coin    string
	Address string
	Tag     string
}

// WithdrawRequest moves coins out of an exchange account.
// On Kraken Address names a withdrawal key configured on the account.
type WithdrawRequest struct {
	Coin    string
	Amount  decimal.Decimal
	Address string
	Tag     string
}

// Transfer is a deposit into or a withdrawal out of an exchange account.
type Transfer struct {
	ID      string
	Coin    string
	Amount  decimal.Decimal
	Fee     decimal.Decimal
	Address string
	TxID    string
	Status  string
	Time    time.Time
}

// MarketSummary is the 24h activity of a market, used to rank markets by volume.
// Base and Quote use common tickers such as BTC.
type MarketSummary struct {
	Symbol      string
	Base        string
	Quote       string
	Last        decimal.Decimal
	QuoteVolume decimal.Decimal
}

// JournalEntry is a placed order recorded in the order journal.
type JournalEntry struct {
	Timestamp time.Time
	Exchange  string
	Pair      string
	Side      string
	OrderType string
	Rate      decimal.Decimal
	Amount    decimal.Decimal
	OrderID   string
	ClientID  string
}
