package exchange

import (
	"context"
	"errors"

	"dodo/internal/model"
	"dodo/internal/pricing"
)

// ErrUnsupported is returned for operations an exchange does not offer.
var ErrUnsupported = errors.New("not supported by exchange")

// Client defines the standard interface for all exchange clients.
type Client interface {
	pricing.MarketDataSource

	GetName() string

	Markets(ctx context.Context) ([]model.Market, error)
	Depth(ctx context.Context, pair model.Pair, limit int) (*model.Depth, error)
	Ticker(ctx context.Context, pair model.Pair) (*model.Ticker, error)
	Summaries(ctx context.Context) ([]model.MarketSummary, error)

	PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderAck, error)
	OpenOrders(ctx context.Context, pair model.Pair) ([]model.Order, error)
	CancelOrder(ctx context.Context, pair model.Pair, orderID string) error
	CancelAll(ctx context.Context, pair model.Pair) error

	Balances(ctx context.Context) ([]model.Balance, error)
	DepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error)
	NewDepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error)
	Withdraw(ctx context.Context, req model.WithdrawRequest) (string, error)

	// An empty coin lists transfers of every coin.
	DepositHistory(ctx context.Context, coin string) ([]model.Transfer, error)
	WithdrawHistory(ctx context.Context, coin string) ([]model.Transfer, error)

	StartStream(ctx context.Context, priceChan chan<- model.PriceTick, pair model.Pair) error
}
