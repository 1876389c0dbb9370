package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dodo/internal/config"
	"dodo/internal/keystore"
	"dodo/internal/model"
	"dodo/internal/pricing"
	"dodo/internal/transport"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

const binanceStreamURL = "wss://stream.binance.com:9443"

// commissionScale converts Binance account commissions to fractions: 10 means 0.1%.
var commissionScale = decimal.NewFromInt(10000)

// BinanceClient implements the Client interface for Binance.
type BinanceClient struct {
	logger    *zap.SugaredLogger
	client    *binance.Client
	dialer    *websocket.Dialer
	cfg       config.ExchangeConfig
	timeout   time.Duration
	streamURL string
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *zap.SugaredLogger, settings config.SettingsConfig, cfg config.ExchangeConfig, creds keystore.Credentials) (*BinanceClient, error) {
	httpClient, err := transport.NewHTTPClient(settings)
	if err != nil {
		return nil, err
	}
	dialer, err := transport.NewDialer(settings)
	if err != nil {
		return nil, err
	}

	client := binance.NewClient(creds.APIKey, creds.Secret)
	client.HTTPClient = httpClient
	if cfg.APIURL != "" {
		client.BaseURL = cfg.APIURL
	}

	streamURL := binanceStreamURL
	if cfg.WSURL != "" {
		streamURL = cfg.WSURL
	}

	return &BinanceClient{
		logger:    logger,
		client:    client,
		dialer:    dialer,
		cfg:       cfg,
		timeout:   transport.RequestTimeout(settings),
		streamURL: streamURL,
	}, nil
}

func (b *BinanceClient) GetName() string {
	return Binance
}

func (b *BinanceClient) LastPrice(ctx context.Context, pair model.Pair) (decimal.Decimal, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	prices, err := b.client.NewListPricesService().Symbol(pair.Symbol()).Do(requestCtx)
	if err != nil {
		return decimal.Zero, unavailable(err)
	}
	for _, p := range prices {
		if p.Symbol == pair.Symbol() {
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return decimal.Zero, unavailable(fmt.Errorf("parse price %q: %w", p.Price, err))
			}
			return price, nil
		}
	}
	return decimal.Zero, unavailable(fmt.Errorf("no price for symbol %s", pair.Symbol()))
}

// FeeSchedule reports the account commission rates unless fees are configured.
func (b *BinanceClient) FeeSchedule(ctx context.Context, pair model.Pair) (pricing.FeeSchedule, error) {
	if fees, ok := feeOverride(b.cfg); ok {
		return fees, nil
	}

	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(requestCtx)
	if err != nil {
		return pricing.FeeSchedule{}, unavailable(err)
	}
	return pricing.FeeSchedule{
		Maker: decimal.NewFromInt(account.MakerCommission).Div(commissionScale),
		Taker: decimal.NewFromInt(account.TakerCommission).Div(commissionScale),
	}, nil
}

func (b *BinanceClient) Markets(ctx context.Context) ([]model.Market, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	info, err := b.client.NewExchangeInfoService().Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}

	markets := make([]model.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		markets = append(markets, model.Market{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		})
	}
	return markets, nil
}

func (b *BinanceClient) Depth(ctx context.Context, pair model.Pair, limit int) (*model.Depth, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.client.NewDepthService().Symbol(pair.Symbol()).Limit(limit).Do(requestCtx)
	if err != nil {
		return nil, unavailable(err)
	}

	depth := &model.Depth{
		Bids: make([]model.Offer, 0, len(res.Bids)),
		Asks: make([]model.Offer, 0, len(res.Asks)),
	}
	for _, bid := range res.Bids {
		offer, err := newOffer(bid.Price, bid.Quantity)
		if err != nil {
			return nil, unavailable(err)
		}
		depth.Bids = append(depth.Bids, offer)
	}
	for _, ask := range res.Asks {
		offer, err := newOffer(ask.Price, ask.Quantity)
		if err != nil {
			return nil, unavailable(err)
		}
		depth.Asks = append(depth.Asks, offer)
	}
	return depth, nil
}

func (b *BinanceClient) Ticker(ctx context.Context, pair model.Pair) (*model.Ticker, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(requestCtx)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(stats) == 0 {
		return nil, unavailable(fmt.Errorf("no ticker for symbol %s", pair.Symbol()))
	}

	s := stats[0]
	fields := []string{s.LastPrice, s.BidPrice, s.AskPrice, s.HighPrice, s.LowPrice, s.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		if values[i], err = parseDecimal(f); err != nil {
			return nil, unavailable(fmt.Errorf("parse ticker field %q: %w", f, err))
		}
	}
	return &model.Ticker{
		Last:   values[0],
		Bid:    values[1],
		Ask:    values[2],
		High:   values[3],
		Low:    values[4],
		Volume: values[5],
	}, nil
}

// Summaries joins the 24h ticker statistics with the exchange info listing.
func (b *BinanceClient) Summaries(ctx context.Context) ([]model.MarketSummary, error) {
	markets, err := b.Markets(ctx)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]model.Market, len(markets))
	for _, m := range markets {
		bySymbol[m.Symbol] = m
	}

	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	stats, err := b.client.NewListPriceChangeStatsService().Do(requestCtx)
	if err != nil {
		return nil, unavailable(err)
	}

	summaries := make([]model.MarketSummary, 0, len(stats))
	for _, s := range stats {
		m, ok := bySymbol[s.Symbol]
		if !ok {
			continue
		}
		last, err := parseDecimal(s.LastPrice)
		if err != nil {
			return nil, unavailable(fmt.Errorf("parse last price of %s: %w", s.Symbol, err))
		}
		volume, err := parseDecimal(s.QuoteVolume)
		if err != nil {
			return nil, unavailable(fmt.Errorf("parse quote volume of %s: %w", s.Symbol, err))
		}
		summaries = append(summaries, model.MarketSummary{
			Symbol:      s.Symbol,
			Base:        m.Base,
			Quote:       m.Quote,
			Last:        last,
			QuoteVolume: volume,
		})
	}
	return summaries, nil
}

func (b *BinanceClient) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderAck, error) {
	if req.Leverage > 0 {
		return nil, fmt.Errorf("binance leveraged orders: %w", ErrUnsupported)
	}

	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	svc := b.client.NewCreateOrderService().
		Symbol(req.Pair.Symbol()).
		Side(binanceSide(req.Side)).
		Quantity(req.Amount.String())
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}
	if req.Type == model.OrderTypeMarket {
		svc = svc.Type(binance.OrderTypeMarket)
	} else {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Rate.String())
	}

	res, err := svc.Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance create order: %w", err)
	}
	return &model.OrderAck{
		Exchange: Binance,
		OrderID:  strconv.FormatInt(res.OrderID, 10),
		ClientID: res.ClientOrderID,
		Status:   string(res.Status),
	}, nil
}

func (b *BinanceClient) OpenOrders(ctx context.Context, pair model.Pair) ([]model.Order, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	svc := b.client.NewListOpenOrdersService()
	if !pair.IsZero() {
		svc = svc.Symbol(pair.Symbol())
	}
	res, err := svc.Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance open orders: %w", err)
	}

	orders := make([]model.Order, 0, len(res))
	for _, o := range res {
		order := model.Order{
			OrderID: strconv.FormatInt(o.OrderID, 10),
			Pair:    o.Symbol,
			Side:    model.Side(strings.ToLower(string(o.Side))),
			Type:    model.OrderType(strings.ToLower(string(o.Type))),
			Status:  string(o.Status),
		}
		if order.Rate, err = parseDecimal(o.Price); err != nil {
			return nil, err
		}
		if order.Amount, err = parseDecimal(o.OrigQuantity); err != nil {
			return nil, err
		}
		if order.Filled, err = parseDecimal(o.ExecutedQuantity); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (b *BinanceClient) CancelOrder(ctx context.Context, pair model.Pair, orderID string) error {
	if pair.IsZero() {
		return fmt.Errorf("binance cancel order: market pair is required")
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance order id %q: %w", orderID, err)
	}

	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.client.NewCancelOrderService().Symbol(pair.Symbol()).OrderID(id).Do(requestCtx); err != nil {
		return fmt.Errorf("binance cancel order: %w", err)
	}
	return nil
}

// CancelAll cancels the open orders of pair, or of every market with open orders.
func (b *BinanceClient) CancelAll(ctx context.Context, pair model.Pair) error {
	symbols := []string{pair.Symbol()}
	if pair.IsZero() {
		open, err := b.OpenOrders(ctx, model.Pair{})
		if err != nil {
			return err
		}
		symbols = uniqueSymbols(open)
	}

	for _, symbol := range symbols {
		requestCtx, cancel := withTimeout(ctx, b.timeout)
		_, err := b.client.NewCancelOpenOrdersService().Symbol(symbol).Do(requestCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("binance cancel open orders of %s: %w", symbol, err)
		}
	}
	return nil
}

func (b *BinanceClient) Balances(ctx context.Context) ([]model.Balance, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}

	var balances []model.Balance
	for _, bal := range account.Balances {
		free, err := parseDecimal(bal.Free)
		if err != nil {
			return nil, fmt.Errorf("parse balance for asset %s: %w", bal.Asset, err)
		}
		locked, err := parseDecimal(bal.Locked)
		if err != nil {
			return nil, fmt.Errorf("parse balance for asset %s: %w", bal.Asset, err)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, model.Balance{Asset: bal.Asset, Free: free, Locked: locked})
	}
	return balances, nil
}

func (b *BinanceClient) DepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.client.NewGetDepositAddressService().Coin(strings.ToUpper(coin)).Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance deposit address: %w", err)
	}
	return &model.DepositAddress{Coin: res.Coin, Address: res.Address, Tag: res.Tag}, nil
}

// NewDepositAddress is not offered: Binance keeps one address per coin and network.
func (b *BinanceClient) NewDepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	return nil, fmt.Errorf("binance new deposit address: %w", ErrUnsupported)
}

func (b *BinanceClient) DepositHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	svc := b.client.NewListDepositsService()
	if coin != "" {
		svc = svc.Coin(strings.ToUpper(coin))
	}
	deposits, err := svc.Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance deposit history: %w", err)
	}

	transfers := make([]model.Transfer, 0, len(deposits))
	for _, d := range deposits {
		amount, err := parseDecimal(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse deposit amount %q: %w", d.Amount, err)
		}
		transfers = append(transfers, model.Transfer{
			ID:      d.TxID,
			Coin:    d.Coin,
			Amount:  amount,
			Address: d.Address,
			TxID:    d.TxID,
			Status:  binanceDepositStatus(d.Status),
			Time:    time.UnixMilli(d.InsertTime).UTC(),
		})
	}
	return transfers, nil
}

func (b *BinanceClient) WithdrawHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	svc := b.client.NewListWithdrawsService()
	if coin != "" {
		svc = svc.Coin(strings.ToUpper(coin))
	}
	withdraws, err := svc.Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("binance withdraw history: %w", err)
	}

	transfers := make([]model.Transfer, 0, len(withdraws))
	for _, w := range withdraws {
		amount, err := parseDecimal(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse withdraw amount %q: %w", w.Amount, err)
		}
		fee, err := parseDecimal(w.TransactionFee)
		if err != nil {
			return nil, fmt.Errorf("parse withdraw fee %q: %w", w.TransactionFee, err)
		}
		// applyTime is UTC without a zone, e.g. "2021-04-29 16:08:00"
		applied, _ := time.Parse(time.DateTime, w.ApplyTime)
		transfers = append(transfers, model.Transfer{
			ID:      w.ID,
			Coin:    w.Coin,
			Amount:  amount,
			Fee:     fee,
			Address: w.Address,
			TxID:    w.TxID,
			Status:  binanceWithdrawStatus(w.Status),
			Time:    applied,
		})
	}
	return transfers, nil
}

func (b *BinanceClient) Withdraw(ctx context.Context, req model.WithdrawRequest) (string, error) {
	requestCtx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	svc := b.client.NewCreateWithdrawService().
		Coin(strings.ToUpper(req.Coin)).
		Address(req.Address).
		Amount(req.Amount.String())
	if req.Tag != "" {
		svc = svc.AddressTag(req.Tag)
	}
	res, err := svc.Do(requestCtx)
	if err != nil {
		return "", fmt.Errorf("binance withdraw: %w", err)
	}
	return res.ID, nil
}

// StartStream connects to the Binance WebSocket API and streams ticker updates of pair.
func (b *BinanceClient) StartStream(ctx context.Context, priceChan chan<- model.PriceTick, pair model.Pair) error {
	return runStream(ctx, b.logger, b.dialer, stream{
		name: Binance,
		url:  b.streamURL + "/ws/" + strings.ToLower(pair.Symbol()) + "@ticker",
		parse: func(message []byte) (model.PriceTick, bool) {
			return parseBinanceTicker(message, pair)
		},
	}, priceChan)
}

// parseBinanceTicker decodes a 24hrTicker stream event.
func parseBinanceTicker(message []byte, pair model.Pair) (model.PriceTick, bool) {
	v, err := fastjson.ParseBytes(message)
	if err != nil || string(v.GetStringBytes("e")) != "24hrTicker" {
		return model.PriceTick{}, false
	}

	bid, err := decimal.NewFromString(string(v.GetStringBytes("b")))
	if err != nil {
		return model.PriceTick{}, false
	}
	ask, err := decimal.NewFromString(string(v.GetStringBytes("a")))
	if err != nil {
		return model.PriceTick{}, false
	}
	last, err := decimal.NewFromString(string(v.GetStringBytes("c")))
	if err != nil {
		return model.PriceTick{}, false
	}

	return model.PriceTick{Exchange: Binance, Pair: pair, Bid: bid, Ask: ask, Last: last}, true
}

func binanceSide(side model.Side) binance.SideType {
	if side == model.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

var binanceDepositStatuses = map[int]string{
	0: "pending",
	1: "success",
	6: "credited",
	7: "wrong deposit",
	8: "waiting user confirm",
}

var binanceWithdrawStatuses = map[int]string{
	0: "email sent",
	1: "cancelled",
	2: "awaiting approval",
	3: "rejected",
	4: "processing",
	5: "failure",
	6: "completed",
}

func binanceDepositStatus(status int) string {
	if s, ok := binanceDepositStatuses[status]; ok {
		return s
	}
	return strconv.Itoa(status)
}

func binanceWithdrawStatus(status int) string {
	if s, ok := binanceWithdrawStatuses[status]; ok {
		return s
	}
	return strconv.Itoa(status)
}

func newOffer(price, quantity string) (model.Offer, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Offer{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return model.Offer{}, fmt.Errorf("parse quantity %q: %w", quantity, err)
	}
	return model.Offer{Price: p, Quantity: q}, nil
}

func uniqueSymbols(orders []model.Order) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, o := range orders {
		if !seen[o.Pair] {
			seen[o.Pair] = true
			symbols = append(symbols, o.Pair)
		}
	}
	return symbols
}
