package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dodo/internal/config"
	"dodo/internal/exchange"
	"dodo/internal/model"
	"dodo/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetName() string { return "kraken" }

func (m *MockClient) LastPrice(ctx context.Context, pair model.Pair) (decimal.Decimal, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockClient) FeeSchedule(ctx context.Context, pair model.Pair) (pricing.FeeSchedule, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(pricing.FeeSchedule), args.Error(1)
}

func (m *MockClient) Markets(ctx context.Context) ([]model.Market, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Market), args.Error(1)
}

func (m *MockClient) Depth(ctx context.Context, pair model.Pair, limit int) (*model.Depth, error) {
	args := m.Called(ctx, pair, limit)
	return args.Get(0).(*model.Depth), args.Error(1)
}

func (m *MockClient) Ticker(ctx context.Context, pair model.Pair) (*model.Ticker, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(*model.Ticker), args.Error(1)
}

func (m *MockClient) Summaries(ctx context.Context) ([]model.MarketSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.MarketSummary), args.Error(1)
}

func (m *MockClient) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderAck, error) {
	args := m.Called(ctx, req)
	ack, _ := args.Get(0).(*model.OrderAck)
	return ack, args.Error(1)
}

func (m *MockClient) OpenOrders(ctx context.Context, pair model.Pair) ([]model.Order, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockClient) CancelOrder(ctx context.Context, pair model.Pair, orderID string) error {
	return m.Called(ctx, pair, orderID).Error(0)
}

func (m *MockClient) CancelAll(ctx context.Context, pair model.Pair) error {
	return m.Called(ctx, pair).Error(0)
}

func (m *MockClient) Balances(ctx context.Context) ([]model.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Balance), args.Error(1)
}

func (m *MockClient) DepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	args := m.Called(ctx, coin)
	return args.Get(0).(*model.DepositAddress), args.Error(1)
}

func (m *MockClient) NewDepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	args := m.Called(ctx, coin)
	address, _ := args.Get(0).(*model.DepositAddress)
	return address, args.Error(1)
}

func (m *MockClient) DepositHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	args := m.Called(ctx, coin)
	return args.Get(0).([]model.Transfer), args.Error(1)
}

func (m *MockClient) WithdrawHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	args := m.Called(ctx, coin)
	return args.Get(0).([]model.Transfer), args.Error(1)
}

func (m *MockClient) Withdraw(ctx context.Context, req model.WithdrawRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockClient) StartStream(ctx context.Context, priceChan chan<- model.PriceTick, pair model.Pair) error {
	args := m.Called(ctx, priceChan, pair)
	if ticks, ok := args.Get(0).([]model.PriceTick); ok {
		for _, tick := range ticks {
			priceChan <- tick
		}
	}
	return args.Error(1)
}

var _ exchange.Client = (*MockClient)(nil)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) LogOrder(ctx context.Context, entry model.JournalEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockRepository) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// zeroSource always draws the lowest candidate.
type zeroSource struct{}

func (zeroSource) Int64N(int64) int64 { return 0 }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestDispatcher(client *MockClient, repo *MockRepository, cfg *config.Config) (*Dispatcher, *bytes.Buffer) {
	out := &bytes.Buffer{}
	if cfg == nil {
		cfg = &config.Config{}
	}
	d := NewDispatcher(zap.NewNop().Sugar(), client, repo, cfg, zeroSource{}, out)
	d.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return d, out
}

func TestDispatcher_Limit(t *testing.T) {
	ctx := context.Background()
	pair := model.Pair{Base: "BTC", Quote: "EUR"}

	t.Run("single order", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, out := newTestDispatcher(client, repo, nil)

		client.On("PlaceOrder", ctx, mock.MatchedBy(func(req model.OrderRequest) bool {
			return req.Pair == pair && req.Side == model.SideBuy && req.Type == model.OrderTypeLimit &&
				req.Rate.Equal(dec("60000")) && req.Amount.Equal(dec("0.5")) && req.ClientID != ""
		})).Return(&model.OrderAck{Exchange: "kraken", OrderID: "O1"}, nil).Once()
		repo.On("LogOrder", ctx, mock.MatchedBy(func(e model.JournalEntry) bool {
			return e.OrderID == "O1" && e.Pair == "BTC-EUR" && e.Side == "buy" && e.OrderType == "limit"
		})).Return(nil).Once()

		require.NoError(t, d.Limit(ctx, model.SideBuy, "btc-eur", "60000", "0.5", "", 0))
		client.AssertExpectations(t)
		repo.AssertExpectations(t)
		assert.Contains(t, out.String(), "O1")
	})

	t.Run("ladder", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		var placed []model.OrderRequest
		client.On("PlaceOrder", ctx, mock.Anything).Run(func(args mock.Arguments) {
			placed = append(placed, args.Get(1).(model.OrderRequest))
		}).Return(&model.OrderAck{Exchange: "kraken", OrderID: "O"}, nil).Times(4)
		repo.On("LogOrder", ctx, mock.Anything).Return(nil).Times(4)

		// 0.0001 with a 10 satoshi spread, four levels in [9990, 10010) satoshi
		require.NoError(t, d.Limit(ctx, model.SideSell, "btc-eur", "0.0001", "1", "10sat", 4))
		client.AssertExpectations(t)
		require.Len(t, placed, 4)

		seen := map[string]bool{}
		total := decimal.Zero
		for _, req := range placed {
			assert.Equal(t, model.SideSell, req.Side)
			assert.True(t, req.Rate.GreaterThanOrEqual(dec("0.0000999")), "rate %s", req.Rate)
			assert.True(t, req.Rate.LessThan(dec("0.0001001")), "rate %s", req.Rate)
			assert.True(t, req.Amount.Equal(dec("0.25")), "amount %s", req.Amount)
			assert.False(t, seen[req.Rate.String()], "duplicate rate %s", req.Rate)
			seen[req.Rate.String()] = true
			total = total.Add(req.Amount)
		}
		assert.True(t, total.Equal(dec("1")))
	})

	t.Run("spread exceeds rate", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		err := d.Limit(ctx, model.SideBuy, "xrp-btc", "100sat", "10", "200sat", 3)
		assert.ErrorIs(t, err, pricing.ErrSpreadExceedsRate)
		client.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})

	t.Run("spread without ladder", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		err := d.Limit(ctx, model.SideBuy, "xrp-btc", "2400sat", "10", "50sat", 0)
		assert.ErrorIs(t, err, ErrLadderFlags)
		client.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})

	t.Run("ladder without spread", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		err := d.Limit(ctx, model.SideBuy, "xrp-btc", "2400sat", "10", "", 4)
		assert.ErrorIs(t, err, ErrLadderFlags)
		client.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})

	t.Run("invalid amount", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		err := d.Limit(ctx, model.SideBuy, "btc-eur", "60000", "-1", "", 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestDispatcher_JournalFailureDoesNotFailOrder(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, _ := newTestDispatcher(client, repo, nil)

	client.On("PlaceOrder", ctx, mock.Anything).Return(&model.OrderAck{Exchange: "kraken", OrderID: "O1"}, nil).Once()
	repo.On("LogOrder", ctx, mock.Anything).Return(errors.New("connection refused")).Once()

	assert.NoError(t, d.Market(ctx, model.SideBuy, "btc-eur", "0.1"))
	repo.AssertExpectations(t)
}

func TestDispatcher_PlaceOrderError(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, _ := newTestDispatcher(client, repo, nil)

	client.On("PlaceOrder", ctx, mock.Anything).Return(nil, errors.New("EOrder:Insufficient funds")).Once()

	err := d.Market(ctx, model.SideSell, "btc-eur", "0.1")
	assert.ErrorContains(t, err, "Insufficient funds")
	repo.AssertNotCalled(t, "LogOrder", mock.Anything, mock.Anything)
}

func TestDispatcher_Worth(t *testing.T) {
	ctx := context.Background()
	pair := model.Pair{Base: "XRP", Quote: "BTC"}

	t.Run("maker fee when target is above last price", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		client.On("LastPrice", ctx, pair).Return(dec("0.00003"), nil)
		client.On("FeeSchedule", ctx, pair).Return(pricing.FeeSchedule{Maker: dec("0.001"), Taker: dec("0.002")}, nil)
		// 0.01 * 0.999 / 0.00004 = 249.75
		client.On("PlaceOrder", ctx, mock.MatchedBy(func(req model.OrderRequest) bool {
			return req.Rate.Equal(dec("0.00004")) && req.Amount.Equal(dec("249.75"))
		})).Return(&model.OrderAck{Exchange: "kraken", OrderID: "W1"}, nil).Once()
		repo.On("LogOrder", ctx, mock.Anything).Return(nil)

		require.NoError(t, d.Worth(ctx, model.SideBuy, "xrp-btc", "4000sat", "0.01"))
		client.AssertExpectations(t)
	})

	t.Run("amount truncated to 8 decimals", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		client.On("LastPrice", ctx, pair).Return(dec("1"), nil)
		client.On("FeeSchedule", ctx, pair).Return(pricing.FeeSchedule{}, nil)
		// 1 / 3 = 0.333333333...
		client.On("PlaceOrder", ctx, mock.MatchedBy(func(req model.OrderRequest) bool {
			return req.Amount.Equal(dec("0.33333333"))
		})).Return(&model.OrderAck{Exchange: "kraken", OrderID: "W2"}, nil).Once()
		repo.On("LogOrder", ctx, mock.Anything).Return(nil)

		require.NoError(t, d.Worth(ctx, model.SideSell, "xrp-btc", "3", "1"))
		client.AssertExpectations(t)
	})

	t.Run("market data unavailable", func(t *testing.T) {
		client, repo := new(MockClient), new(MockRepository)
		d, _ := newTestDispatcher(client, repo, nil)

		client.On("LastPrice", ctx, pair).Return(decimal.Zero, pricing.ErrMarketDataUnavailable)

		err := d.Worth(ctx, model.SideBuy, "xrp-btc", "4000sat", "0.01")
		assert.ErrorIs(t, err, pricing.ErrMarketDataUnavailable)
		client.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	})
}

func TestDispatcher_Leveraged(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, _ := newTestDispatcher(client, repo, nil)

	client.On("PlaceOrder", ctx, mock.MatchedBy(func(req model.OrderRequest) bool {
		return req.Side == model.SideSell && req.Leverage == 3
	})).Return(&model.OrderAck{Exchange: "kraken", OrderID: "L1"}, nil).Once()
	repo.On("LogOrder", ctx, mock.Anything).Return(nil)

	require.NoError(t, d.Leveraged(ctx, model.SideSell, "eth-eur", "3000", "1", 3))
	client.AssertExpectations(t)
}

func TestDispatcher_Withdraw_ResolvesAlias(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	cfg := &config.Config{Alias: map[string]string{"cold": "bc1qcoldwallet"}}
	d, out := newTestDispatcher(client, repo, cfg)

	client.On("Withdraw", ctx, mock.MatchedBy(func(req model.WithdrawRequest) bool {
		return req.Coin == "BTC" && req.Amount.Equal(dec("0.5")) && req.Address == "bc1qcoldwallet" && req.Tag == ""
	})).Return("WD-1", nil).Once()

	require.NoError(t, d.Withdraw(ctx, "btc", "0.5", "cold", ""))
	client.AssertExpectations(t)
	assert.Contains(t, out.String(), "WD-1")
}

func TestDispatcher_Balance_FiltersCoin(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("Balances", ctx).Return([]model.Balance{
		{Asset: "BTC", Free: dec("1.5")},
		{Asset: "EUR", Free: dec("200")},
	}, nil)

	require.NoError(t, d.Balance(ctx, "btc"))
	assert.Contains(t, out.String(), "1.5")
	assert.NotContains(t, out.String(), "EUR")
}

func TestDispatcher_Orders(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("OpenOrders", ctx, model.Pair{}).Return([]model.Order{
		{OrderID: "O9", Pair: "XBTEUR", Side: model.SideBuy, Rate: dec("59000"), Amount: dec("0.1")},
	}, nil)

	require.NoError(t, d.Orders(ctx, ""))
	assert.Contains(t, out.String(), "O9")
	assert.Contains(t, out.String(), "59000")
}

func TestDispatcher_CancelAll(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, _ := newTestDispatcher(client, repo, nil)

	client.On("CancelAll", ctx, model.Pair{Base: "BTC", Quote: "EUR"}).Return(nil).Once()

	require.NoError(t, d.CancelAll(ctx, "btc/eur"))
	client.AssertExpectations(t)
}

func TestDispatcher_Spread(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("Ticker", ctx, model.Pair{Base: "BTC", Quote: "EUR"}).Return(&model.Ticker{Bid: dec("60000"), Ask: dec("60012.5")}, nil)

	require.NoError(t, d.Spread(ctx, "btc-eur"))
	assert.Contains(t, out.String(), "12.5")
}

func TestDispatcher_Watch(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	pair := model.Pair{Base: "BTC", Quote: "EUR"}
	ticks := []model.PriceTick{{Exchange: "kraken", Pair: pair, Bid: dec("60000"), Ask: dec("60010"), Last: dec("60005")}}
	client.On("StartStream", ctx, mock.Anything, pair).Return(ticks, nil)

	require.NoError(t, d.Watch(ctx, "btc-eur"))
	assert.Contains(t, out.String(), "60005")
}

func TestDispatcher_Top(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("Summaries", ctx).Return([]model.MarketSummary{
		{Symbol: "XRPBTC", Base: "XRP", Quote: "BTC", Last: dec("0.00002"), QuoteVolume: dec("120")},
		{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Last: dec("0.05"), QuoteVolume: dec("900")},
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Last: dec("60000"), QuoteVolume: dec("5000000")},
		{Symbol: "LTCBTC", Base: "LTC", Quote: "BTC", Last: dec("0.001"), QuoteVolume: dec("45")},
	}, nil)

	require.NoError(t, d.Top(ctx, "btc", 2))

	got := out.String()
	assert.Contains(t, got, "ETH-BTC")
	assert.Contains(t, got, "XRP-BTC")
	assert.NotContains(t, got, "LTC-BTC")
	assert.NotContains(t, got, "USDT")
	assert.Less(t, strings.Index(got, "ETH-BTC"), strings.Index(got, "XRP-BTC"))

	assert.Error(t, d.Top(ctx, "btc", 0))
}

func TestDispatcher_TransferHistory(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("DepositHistory", ctx, "btc").Return([]model.Transfer{
		{ID: "D1", Coin: "BTC", Amount: dec("0.78"), TxID: "abc", Status: "success", Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}, nil).Once()
	client.On("WithdrawHistory", ctx, "").Return([]model.Transfer{
		{ID: "W1", Coin: "ETH", Amount: dec("2"), Fee: dec("0.004"), Status: "completed"},
	}, nil).Once()

	require.NoError(t, d.DepositHistory(ctx, "btc"))
	assert.Contains(t, out.String(), "D1")
	assert.Contains(t, out.String(), "0.78")
	assert.Contains(t, out.String(), "2024-05-01T12:00:00Z")

	out.Reset()
	require.NoError(t, d.WithdrawHistory(ctx, ""))
	assert.Contains(t, out.String(), "W1")
	assert.Contains(t, out.String(), "0.004")
	client.AssertExpectations(t)
}

func TestDispatcher_NewDepositAddress(t *testing.T) {
	ctx := context.Background()
	client, repo := new(MockClient), new(MockRepository)
	d, out := newTestDispatcher(client, repo, nil)

	client.On("NewDepositAddress", ctx, "ETH").Return(&model.DepositAddress{Coin: "ETH", Address: "0xfresh"}, nil).Once()
	client.On("NewDepositAddress", ctx, "BTC").Return(nil, exchange.ErrUnsupported).Once()

	require.NoError(t, d.NewDepositAddress(ctx, "eth"))
	assert.Contains(t, out.String(), "0xfresh")

	assert.ErrorIs(t, d.NewDepositAddress(ctx, "btc"), exchange.ErrUnsupported)
}
