package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dodo/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMarketData struct {
	mock.Mock
}

func (m *MockMarketData) LastPrice(ctx context.Context, pair model.Pair) (decimal.Decimal, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockMarketData) FeeSchedule(ctx context.Context, pair model.Pair) (FeeSchedule, error) {
	args := m.Called(ctx, pair)
	return args.Get(0).(FeeSchedule), args.Error(1)
}

var testFees = FeeSchedule{
	Maker: decimal.RequireFromString("0.002"),
	Taker: decimal.RequireFromString("0.01"),
}

func TestWorth(t *testing.T) {
	base := decimal.NewFromInt(100)
	target := decimal.NewFromInt(10)

	t.Run("taker when last equals target", func(t *testing.T) {
		got, err := Worth(base, target, MarketSnapshot{LastPrice: decimal.NewFromInt(10)}, testFees)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("9.9").Equal(got), "got %s", got)
	})

	t.Run("taker when last above target", func(t *testing.T) {
		got, err := Worth(base, target, MarketSnapshot{LastPrice: decimal.NewFromInt(12)}, testFees)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("9.9").Equal(got), "got %s", got)
	})

	t.Run("maker when last below target", func(t *testing.T) {
		got, err := Worth(base, target, MarketSnapshot{LastPrice: decimal.NewFromInt(5)}, testFees)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("9.98").Equal(got), "got %s", got)
	})

	t.Run("zero target", func(t *testing.T) {
		_, err := Worth(base, decimal.Zero, MarketSnapshot{LastPrice: decimal.NewFromInt(5)}, testFees)
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})
}

func TestWorthFrom(t *testing.T) {
	ctx := context.Background()
	pair := model.Pair{Base: "XRP", Quote: "BTC"}

	t.Run("fetches snapshot and fees", func(t *testing.T) {
		src := new(MockMarketData)
		src.On("LastPrice", ctx, pair).Return(decimal.NewFromInt(5), nil).Once()
		src.On("FeeSchedule", ctx, pair).Return(testFees, nil).Once()

		got, err := WorthFrom(ctx, src, pair, decimal.NewFromInt(100), decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("9.98").Equal(got), "got %s", got)
		src.AssertExpectations(t)
	})

	t.Run("market data errors pass through", func(t *testing.T) {
		src := new(MockMarketData)
		unavailable := fmt.Errorf("%w: ticker timed out", ErrMarketDataUnavailable)
		src.On("LastPrice", ctx, pair).Return(decimal.Zero, unavailable).Once()

		_, err := WorthFrom(ctx, src, pair, decimal.NewFromInt(100), decimal.NewFromInt(10))
		assert.True(t, errors.Is(err, ErrMarketDataUnavailable))
		assert.Equal(t, unavailable, err)
		src.AssertNotCalled(t, "FeeSchedule", mock.Anything, mock.Anything)
	})

	t.Run("zero target skips the fetch", func(t *testing.T) {
		src := new(MockMarketData)

		_, err := WorthFrom(ctx, src, pair, decimal.NewFromInt(100), decimal.Zero)
		assert.ErrorIs(t, err, ErrDivisionByZero)
		src.AssertNotCalled(t, "LastPrice", mock.Anything, mock.Anything)
	})
}
