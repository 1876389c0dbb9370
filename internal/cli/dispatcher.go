package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"dodo/internal/config"
	"dodo/internal/exchange"
	"dodo/internal/journal"
	"dodo/internal/model"
	"dodo/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// amountPrecision is the number of decimals exchanges accept for order amounts.
const amountPrecision = 8

// DefaultTopMarkets is how many markets Top lists when no count is given.
const DefaultTopMarkets = 15

var (
	ErrInvalidAmount  = errors.New("amount must be a positive number")
	ErrAmountTooSmall = errors.New("order amount rounds to zero")
	ErrLadderFlags    = errors.New("--spread and --ladder must be given together")
)

// Dispatcher runs CLI commands against a single exchange.
type Dispatcher struct {
	logger  *zap.SugaredLogger
	client  exchange.Client
	journal journal.Repository
	cfg     *config.Config
	rng     pricing.Source
	out     io.Writer
	now     func() time.Time
}

// NewDispatcher creates a new Dispatcher writing command output to out.
func NewDispatcher(logger *zap.SugaredLogger, client exchange.Client, repo journal.Repository, cfg *config.Config, rng pricing.Source, out io.Writer) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		client:  client,
		journal: repo,
		cfg:     cfg,
		rng:     rng,
		out:     out,
		now:     time.Now,
	}
}

func (d *Dispatcher) Markets(ctx context.Context) error {
	markets, err := d.client.Markets(ctx)
	if err != nil {
		return err
	}
	d.print(markets)
	return nil
}

func (d *Dispatcher) Depth(ctx context.Context, pairText string, limit int) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}
	depth, err := d.client.Depth(ctx, pair, limit)
	if err != nil {
		return err
	}
	d.print(depthView(depth))
	return nil
}

// Spread prints the distance between the best ask and the best bid.
func (d *Dispatcher) Spread(ctx context.Context, pairText string) error {
	ticker, err := d.ticker(ctx, pairText)
	if err != nil {
		return err
	}
	d.print(ticker.Spread().String())
	return nil
}

// Volume prints the 24h traded volume.
func (d *Dispatcher) Volume(ctx context.Context, pairText string) error {
	ticker, err := d.ticker(ctx, pairText)
	if err != nil {
		return err
	}
	d.print(ticker.Volume.String())
	return nil
}

func (d *Dispatcher) Ticker(ctx context.Context, pairText string) error {
	ticker, err := d.ticker(ctx, pairText)
	if err != nil {
		return err
	}
	d.print(tickerView(ticker))
	return nil
}

// Top prints the n markets quoted in quote with the largest 24h quote volume.
func (d *Dispatcher) Top(ctx context.Context, quote string, n int) error {
	if n < 1 {
		return fmt.Errorf("invalid market count %d", n)
	}
	summaries, err := d.client.Summaries(ctx)
	if err != nil {
		return err
	}

	var markets []model.MarketSummary
	for _, s := range summaries {
		if strings.EqualFold(s.Quote, quote) {
			markets = append(markets, s)
		}
	}
	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].QuoteVolume.GreaterThan(markets[j].QuoteVolume)
	})
	if len(markets) > n {
		markets = markets[:n]
	}

	rows := make([]marketRow, 0, len(markets))
	for _, m := range markets {
		rows = append(rows, marketView(m))
	}
	d.print(rows)
	return nil
}

func (d *Dispatcher) ticker(ctx context.Context, pairText string) (*model.Ticker, error) {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return nil, err
	}
	return d.client.Ticker(ctx, pair)
}

// Watch prints live ticker updates until ctx is cancelled.
func (d *Dispatcher) Watch(ctx context.Context, pairText string) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}

	ticks := make(chan model.PriceTick)
	done := make(chan error, 1)
	go func() {
		done <- d.client.StartStream(ctx, ticks, pair)
	}()

	for {
		select {
		case tick := <-ticks:
			d.print(tickView(tick))
		case err := <-done:
			return err
		}
	}
}

// Limit places a limit order, or a ladder of levels orders scattered within
// spread of rate. spreadText and levels are given together or not at all.
func (d *Dispatcher) Limit(ctx context.Context, side model.Side, pairText, rateText, amountText, spreadText string, levels int) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}
	rate, err := pricing.ParseRate(rateText)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountText)
	if err != nil {
		return err
	}

	if (spreadText == "") != (levels == 0) {
		return ErrLadderFlags
	}
	if spreadText == "" {
		return d.place(ctx, model.OrderRequest{
			Pair:   pair,
			Side:   side,
			Type:   model.OrderTypeLimit,
			Rate:   rate,
			Amount: amount,
		})
	}

	spread, err := pricing.ParseRate(spreadText)
	if err != nil {
		return err
	}
	ladder, err := pricing.Ladder(rate, spread, amount, levels, d.rng)
	if err != nil {
		return err
	}

	d.logger.Infow("placing ladder", "exchange", d.client.GetName(), "pair", pair.String(), "side", side, "levels", len(ladder))
	for _, level := range ladder {
		err := d.place(ctx, model.OrderRequest{
			Pair:   pair,
			Side:   side,
			Type:   model.OrderTypeLimit,
			Rate:   level.Rate,
			Amount: level.Amount,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) Market(ctx context.Context, side model.Side, pairText, amountText string) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountText)
	if err != nil {
		return err
	}

	return d.place(ctx, model.OrderRequest{
		Pair:   pair,
		Side:   side,
		Type:   model.OrderTypeMarket,
		Amount: amount,
	})
}

// Worth places a limit order at target sized so that base quote coins,
// less the exchange fee, are spent or received.
func (d *Dispatcher) Worth(ctx context.Context, side model.Side, pairText, targetText, baseText string) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}
	target, err := pricing.ParseRate(targetText)
	if err != nil {
		return err
	}
	base, err := parseAmount(baseText)
	if err != nil {
		return err
	}

	amount, err := pricing.WorthFrom(ctx, d.client, pair, base, target)
	if err != nil {
		return err
	}
	amount = amount.Truncate(amountPrecision)
	if !amount.IsPositive() {
		return ErrAmountTooSmall
	}

	return d.place(ctx, model.OrderRequest{
		Pair:   pair,
		Side:   side,
		Type:   model.OrderTypeLimit,
		Rate:   target,
		Amount: amount,
	})
}

// Leveraged places a margin limit order. A zero leverage lets the exchange decide.
func (d *Dispatcher) Leveraged(ctx context.Context, side model.Side, pairText, rateText, amountText string, leverage int) error {
	pair, err := model.ParsePair(pairText)
	if err != nil {
		return err
	}
	rate, err := pricing.ParseRate(rateText)
	if err != nil {
		return err
	}
	amount, err := parseAmount(amountText)
	if err != nil {
		return err
	}
	if leverage < 0 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}

	return d.place(ctx, model.OrderRequest{
		Pair:     pair,
		Side:     side,
		Type:     model.OrderTypeLimit,
		Rate:     rate,
		Amount:   amount,
		Leverage: leverage,
	})
}

// place submits req, prints the acknowledgement and records it in the journal.
func (d *Dispatcher) place(ctx context.Context, req model.OrderRequest) error {
	req.ClientID = uuid.NewString()

	ack, err := d.client.PlaceOrder(ctx, req)
	if err != nil {
		d.logger.Errorw("failed to place order", "exchange", d.client.GetName(), "pair", req.Pair.String(), "side", req.Side, "rate", req.Rate, "amount", req.Amount, "error", err)
		return fmt.Errorf("place %s %s order: %w", req.Side, req.Pair, err)
	}
	d.logger.Infow("order placed", "exchange", ack.Exchange, "orderID", ack.OrderID, "clientID", req.ClientID, "pair", req.Pair.String(), "side", req.Side, "rate", req.Rate, "amount", req.Amount)
	d.print(ack)

	entry := model.JournalEntry{
		Timestamp: d.now(),
		Exchange:  d.client.GetName(),
		Pair:      req.Pair.String(),
		Side:      string(req.Side),
		OrderType: string(req.Type),
		Rate:      req.Rate,
		Amount:    req.Amount,
		OrderID:   ack.OrderID,
		ClientID:  req.ClientID,
	}
	if err := d.journal.LogOrder(ctx, entry); err != nil {
		d.logger.Errorw("failed to journal order", "orderID", ack.OrderID, "error", err)
	}
	return nil
}

// Orders prints open orders, of pairText only when given.
func (d *Dispatcher) Orders(ctx context.Context, pairText string) error {
	pair, err := optionalPair(pairText)
	if err != nil {
		return err
	}
	orders, err := d.client.OpenOrders(ctx, pair)
	if err != nil {
		return err
	}

	views := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	d.print(views)
	return nil
}

func (d *Dispatcher) CancelOrder(ctx context.Context, orderID, pairText string) error {
	pair, err := optionalPair(pairText)
	if err != nil {
		return err
	}
	if err := d.client.CancelOrder(ctx, pair, orderID); err != nil {
		return err
	}
	d.logger.Infow("order cancelled", "exchange", d.client.GetName(), "orderID", orderID)
	d.print(map[string]string{"cancelled": orderID})
	return nil
}

func (d *Dispatcher) CancelAll(ctx context.Context, pairText string) error {
	pair, err := optionalPair(pairText)
	if err != nil {
		return err
	}
	if err := d.client.CancelAll(ctx, pair); err != nil {
		return err
	}
	d.logger.Infow("all orders cancelled", "exchange", d.client.GetName(), "pair", pair.String())
	d.print(map[string]string{"cancelled": "all"})
	return nil
}

// Balance prints non-zero balances, of coin only when given.
func (d *Dispatcher) Balance(ctx context.Context, coin string) error {
	balances, err := d.client.Balances(ctx)
	if err != nil {
		return err
	}

	views := make([]balanceRow, 0, len(balances))
	for _, b := range balances {
		if coin != "" && !strings.EqualFold(b.Asset, coin) {
			continue
		}
		views = append(views, balanceView(b))
	}
	d.print(views)
	return nil
}

func (d *Dispatcher) Deposit(ctx context.Context, coin string) error {
	address, err := d.client.DepositAddress(ctx, strings.ToUpper(coin))
	if err != nil {
		return err
	}
	d.print(*address)
	return nil
}

// NewDepositAddress asks the exchange for a fresh deposit address.
func (d *Dispatcher) NewDepositAddress(ctx context.Context, coin string) error {
	address, err := d.client.NewDepositAddress(ctx, strings.ToUpper(coin))
	if err != nil {
		return err
	}
	d.logger.Infow("deposit address generated", "exchange", d.client.GetName(), "coin", address.Coin)
	d.print(*address)
	return nil
}

// DepositHistory prints recent deposits, of coin only when given.
func (d *Dispatcher) DepositHistory(ctx context.Context, coin string) error {
	transfers, err := d.client.DepositHistory(ctx, coin)
	if err != nil {
		return err
	}
	d.printTransfers(transfers)
	return nil
}

// WithdrawHistory prints recent withdrawals, of coin only when given.
func (d *Dispatcher) WithdrawHistory(ctx context.Context, coin string) error {
	transfers, err := d.client.WithdrawHistory(ctx, coin)
	if err != nil {
		return err
	}
	d.printTransfers(transfers)
	return nil
}

func (d *Dispatcher) printTransfers(transfers []model.Transfer) {
	rows := make([]transferRow, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, transferView(t))
	}
	d.print(rows)
}

// Withdraw sends amount of coin to address, which may name a configured alias.
func (d *Dispatcher) Withdraw(ctx context.Context, coin, amountText, address, tag string) error {
	amount, err := parseAmount(amountText)
	if err != nil {
		return err
	}

	req := model.WithdrawRequest{
		Coin:    strings.ToUpper(coin),
		Amount:  amount,
		Address: d.cfg.ResolveAlias(address),
		Tag:     tag,
	}
	id, err := d.client.Withdraw(ctx, req)
	if err != nil {
		return err
	}
	d.logger.Infow("withdrawal requested", "exchange", d.client.GetName(), "coin", req.Coin, "amount", req.Amount, "address", req.Address, "id", id)
	d.print(map[string]string{"id": id})
	return nil
}

func parseAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return amount, nil
}

func optionalPair(text string) (model.Pair, error) {
	if text == "" {
		return model.Pair{}, nil
	}
	return model.ParsePair(text)
}
