package exchange

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"dodo/internal/config"
	"dodo/internal/keystore"
	"dodo/internal/model"
	"dodo/internal/pricing"
	"dodo/internal/transport"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

const (
	krakenAPIURL    = "https://api.kraken.com"
	krakenStreamURL = "wss://ws.kraken.com"
)

// KrakenClient implements the Client interface for Kraken.
type KrakenClient struct {
	logger     *zap.SugaredLogger
	httpClient httpDoer
	dialer     *websocket.Dialer
	cfg        config.ExchangeConfig
	creds      keystore.Credentials
	timeout    time.Duration
	baseURL    string
	streamURL  string
}

// NewKrakenClient creates a new KrakenClient.
func NewKrakenClient(logger *zap.SugaredLogger, settings config.SettingsConfig, cfg config.ExchangeConfig, creds keystore.Credentials) (*KrakenClient, error) {
	httpClient, err := transport.NewHTTPClient(settings)
	if err != nil {
		return nil, err
	}
	dialer, err := transport.NewDialer(settings)
	if err != nil {
		return nil, err
	}

	k := &KrakenClient{
		logger:     logger,
		httpClient: httpClient,
		dialer:     dialer,
		cfg:        cfg,
		creds:      creds,
		timeout:    transport.RequestTimeout(settings),
		baseURL:    krakenAPIURL,
		streamURL:  krakenStreamURL,
	}
	if cfg.APIURL != "" {
		k.baseURL = strings.TrimSuffix(cfg.APIURL, "/")
	}
	if cfg.WSURL != "" {
		k.streamURL = cfg.WSURL
	}
	return k, nil
}

func (k *KrakenClient) GetName() string {
	return Kraken
}

func krakenPair(pair model.Pair) string {
	return krakenAsset(pair.Base) + krakenAsset(pair.Quote)
}

func (k *KrakenClient) LastPrice(ctx context.Context, pair model.Pair) (decimal.Decimal, error) {
	ticker, err := k.Ticker(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	return ticker.Last, nil
}

// FeeSchedule reports the account fee tier of pair unless fees are configured.
func (k *KrakenClient) FeeSchedule(ctx context.Context, pair model.Pair) (pricing.FeeSchedule, error) {
	if fees, ok := feeOverride(k.cfg); ok {
		return fees, nil
	}

	params := url.Values{"pair": {krakenPair(pair)}, "fee-info": {"true"}}
	var fees pricing.FeeSchedule
	err := k.call(ctx, true, "TradeVolume", params, func(result *fastjson.Value) error {
		taker, err := firstMember(result.Get("fees"))
		if err != nil {
			return fmt.Errorf("taker fee: %w", err)
		}
		if fees.Taker, err = decimal.NewFromString(stringAt(taker, "fee")); err != nil {
			return fmt.Errorf("taker fee: %w", err)
		}
		fees.Taker = fees.Taker.Div(decimal.NewFromInt(100))

		fees.Maker = fees.Taker
		if makerFees := result.Get("fees_maker"); makerFees != nil {
			maker, err := firstMember(makerFees)
			if err != nil {
				return fmt.Errorf("maker fee: %w", err)
			}
			if fees.Maker, err = decimal.NewFromString(stringAt(maker, "fee")); err != nil {
				return fmt.Errorf("maker fee: %w", err)
			}
			fees.Maker = fees.Maker.Div(decimal.NewFromInt(100))
		}
		return nil
	})
	if err != nil {
		return pricing.FeeSchedule{}, unavailable(err)
	}
	return fees, nil
}

func (k *KrakenClient) Markets(ctx context.Context) ([]model.Market, error) {
	pairs, err := k.assetPairs(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]model.Market, 0, len(pairs))
	for _, m := range pairs {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })
	return markets, nil
}

// assetPairs lists tradeable pairs keyed by the pair names Kraken uses in results.
func (k *KrakenClient) assetPairs(ctx context.Context) (map[string]model.Market, error) {
	pairs := make(map[string]model.Market)
	err := k.call(ctx, false, "AssetPairs", nil, func(result *fastjson.Value) error {
		obj, err := result.Object()
		if err != nil {
			return err
		}
		obj.Visit(func(key []byte, v *fastjson.Value) {
			base, quote := stringAt(v, "base"), stringAt(v, "quote")
			if ws := strings.Split(stringAt(v, "wsname"), "/"); len(ws) == 2 {
				base, quote = commonAsset(ws[0]), commonAsset(ws[1])
			}
			status := stringAt(v, "status")
			pairs[string(key)] = model.Market{
				Symbol: stringAt(v, "altname"),
				Base:   base,
				Quote:  quote,
				Active: status == "" || status == "online",
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (k *KrakenClient) Depth(ctx context.Context, pair model.Pair, limit int) (*model.Depth, error) {
	params := url.Values{"pair": {krakenPair(pair)}, "count": {strconv.Itoa(limit)}}
	depth := &model.Depth{}
	err := k.call(ctx, false, "Depth", params, func(result *fastjson.Value) error {
		book, err := firstMember(result)
		if err != nil {
			return err
		}
		if depth.Bids, err = krakenOffers(book.GetArray("bids")); err != nil {
			return err
		}
		depth.Asks, err = krakenOffers(book.GetArray("asks"))
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return depth, nil
}

func krakenOffers(levels []*fastjson.Value) ([]model.Offer, error) {
	offers := make([]model.Offer, 0, len(levels))
	for _, level := range levels {
		offer, err := newOffer(stringAt(level, "0"), stringAt(level, "1"))
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (k *KrakenClient) Ticker(ctx context.Context, pair model.Pair) (*model.Ticker, error) {
	params := url.Values{"pair": {krakenPair(pair)}}
	ticker := &model.Ticker{}
	err := k.call(ctx, false, "Ticker", params, func(result *fastjson.Value) error {
		t, err := firstMember(result)
		if err != nil {
			return err
		}
		fields := []struct {
			dst  *decimal.Decimal
			keys []string
		}{
			{&ticker.Last, []string{"c", "0"}},
			{&ticker.Bid, []string{"b", "0"}},
			{&ticker.Ask, []string{"a", "0"}},
			{&ticker.High, []string{"h", "1"}},
			{&ticker.Low, []string{"l", "1"}},
			{&ticker.Volume, []string{"v", "1"}},
		}
		for _, f := range fields {
			raw := stringAt(t, f.keys...)
			if *f.dst, err = decimal.NewFromString(raw); err != nil {
				return fmt.Errorf("ticker field %s: %w", f.keys[0], err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return ticker, nil
}

// Summaries ranks every pair by quote volume, taken as 24h volume times 24h VWAP.
func (k *KrakenClient) Summaries(ctx context.Context) ([]model.MarketSummary, error) {
	pairs, err := k.assetPairs(ctx)
	if err != nil {
		return nil, unavailable(err)
	}

	var summaries []model.MarketSummary
	err = k.call(ctx, false, "Ticker", nil, func(result *fastjson.Value) error {
		obj, err := result.Object()
		if err != nil {
			return err
		}
		var parseErr error
		obj.Visit(func(key []byte, t *fastjson.Value) {
			m, ok := pairs[string(key)]
			if !ok || parseErr != nil {
				return
			}
			var last, volume, vwap decimal.Decimal
			if last, parseErr = parseDecimal(stringAt(t, "c", "0")); parseErr != nil {
				return
			}
			if volume, parseErr = parseDecimal(stringAt(t, "v", "1")); parseErr != nil {
				return
			}
			if vwap, parseErr = parseDecimal(stringAt(t, "p", "1")); parseErr != nil {
				return
			}
			summaries = append(summaries, model.MarketSummary{
				Symbol:      m.Symbol,
				Base:        m.Base,
				Quote:       m.Quote,
				Last:        last,
				QuoteVolume: volume.Mul(vwap),
			})
		})
		return parseErr
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return summaries, nil
}

func (k *KrakenClient) PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderAck, error) {
	params := url.Values{
		"pair":      {krakenPair(req.Pair)},
		"type":      {string(req.Side)},
		"ordertype": {string(req.Type)},
		"volume":    {req.Amount.String()},
	}
	if req.Type != model.OrderTypeMarket {
		params.Set("ordertype", string(model.OrderTypeLimit))
		params.Set("price", req.Rate.String())
	}
	if req.Leverage > 0 {
		params.Set("leverage", strconv.Itoa(req.Leverage))
	}

	ack := &model.OrderAck{Exchange: Kraken, ClientID: req.ClientID}
	err := k.call(ctx, true, "AddOrder", params, func(result *fastjson.Value) error {
		txids := result.GetArray("txid")
		if len(txids) == 0 {
			return fmt.Errorf("no transaction id in response")
		}
		ack.OrderID = string(txids[0].GetStringBytes())
		ack.Status = stringAt(result, "descr", "order")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

func (k *KrakenClient) OpenOrders(ctx context.Context, pair model.Pair) ([]model.Order, error) {
	var orders []model.Order
	err := k.call(ctx, true, "OpenOrders", nil, func(result *fastjson.Value) error {
		openValue := result.Get("open")
		if openValue == nil {
			return nil
		}
		open, err := openValue.Object()
		if err != nil {
			return err
		}
		var parseErr error
		open.Visit(func(txid []byte, v *fastjson.Value) {
			if parseErr != nil {
				return
			}
			descrPair := stringAt(v, "descr", "pair")
			if !pair.IsZero() && !strings.EqualFold(descrPair, krakenPair(pair)) {
				return
			}
			order := model.Order{
				OrderID: string(txid),
				Pair:    descrPair,
				Side:    model.Side(stringAt(v, "descr", "type")),
				Type:    model.OrderType(stringAt(v, "descr", "ordertype")),
				Status:  stringAt(v, "status"),
			}
			if order.Rate, parseErr = parseDecimal(stringAt(v, "descr", "price")); parseErr != nil {
				return
			}
			if order.Amount, parseErr = parseDecimal(stringAt(v, "vol")); parseErr != nil {
				return
			}
			if order.Filled, parseErr = parseDecimal(stringAt(v, "vol_exec")); parseErr != nil {
				return
			}
			orders = append(orders, order)
		})
		return parseErr
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (k *KrakenClient) CancelOrder(ctx context.Context, _ model.Pair, orderID string) error {
	return k.call(ctx, true, "CancelOrder", url.Values{"txid": {orderID}}, func(*fastjson.Value) error {
		return nil
	})
}

// CancelAll cancels every open order, or only those of pair when it is set.
func (k *KrakenClient) CancelAll(ctx context.Context, pair model.Pair) error {
	if pair.IsZero() {
		return k.call(ctx, true, "CancelAll", nil, func(*fastjson.Value) error { return nil })
	}

	open, err := k.OpenOrders(ctx, pair)
	if err != nil {
		return err
	}
	for _, o := range open {
		if err := k.CancelOrder(ctx, pair, o.OrderID); err != nil {
			return err
		}
	}
	return nil
}

func (k *KrakenClient) Balances(ctx context.Context) ([]model.Balance, error) {
	var balances []model.Balance
	err := k.call(ctx, true, "Balance", nil, func(result *fastjson.Value) error {
		obj, err := result.Object()
		if err != nil {
			return err
		}
		var parseErr error
		obj.Visit(func(asset []byte, v *fastjson.Value) {
			if parseErr != nil {
				return
			}
			amount, err := decimal.NewFromString(string(v.GetStringBytes()))
			if err != nil {
				parseErr = fmt.Errorf("parse balance for asset %s: %w", asset, err)
				return
			}
			if amount.IsZero() {
				return
			}
			balances = append(balances, model.Balance{Asset: string(asset), Free: amount})
		})
		return parseErr
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (k *KrakenClient) DepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	return k.depositAddress(ctx, coin, false)
}

// NewDepositAddress generates a fresh address for coin.
func (k *KrakenClient) NewDepositAddress(ctx context.Context, coin string) (*model.DepositAddress, error) {
	return k.depositAddress(ctx, coin, true)
}

func (k *KrakenClient) depositAddress(ctx context.Context, coin string, fresh bool) (*model.DepositAddress, error) {
	asset := krakenAsset(coin)

	var method string
	err := k.call(ctx, true, "DepositMethods", url.Values{"asset": {asset}}, func(result *fastjson.Value) error {
		methods := result.GetArray()
		if len(methods) == 0 {
			return fmt.Errorf("no deposit method for %s", asset)
		}
		method = stringAt(methods[0], "method")
		return nil
	})
	if err != nil {
		return nil, err
	}

	address := &model.DepositAddress{Coin: asset}
	params := url.Values{"asset": {asset}, "method": {method}}
	if fresh {
		params.Set("new", "true")
	}
	err = k.call(ctx, true, "DepositAddresses", params, func(result *fastjson.Value) error {
		addresses := result.GetArray()
		if len(addresses) == 0 {
			return fmt.Errorf("no deposit address for %s", asset)
		}
		address.Address = stringAt(addresses[0], "address")
		address.Tag = stringAt(addresses[0], "tag")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (k *KrakenClient) DepositHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	return k.transfers(ctx, "DepositStatus", coin)
}

func (k *KrakenClient) WithdrawHistory(ctx context.Context, coin string) ([]model.Transfer, error) {
	return k.transfers(ctx, "WithdrawStatus", coin)
}

// transfers reads the recent deposits or withdrawals listed by method.
func (k *KrakenClient) transfers(ctx context.Context, method, coin string) ([]model.Transfer, error) {
	params := url.Values{}
	if coin != "" {
		params.Set("asset", krakenAsset(coin))
	}

	var transfers []model.Transfer
	err := k.call(ctx, true, method, params, func(result *fastjson.Value) error {
		for _, v := range result.GetArray() {
			amount, err := parseDecimal(stringAt(v, "amount"))
			if err != nil {
				return fmt.Errorf("transfer amount: %w", err)
			}
			fee, err := parseDecimal(stringAt(v, "fee"))
			if err != nil {
				return fmt.Errorf("transfer fee: %w", err)
			}
			transfers = append(transfers, model.Transfer{
				ID:      stringAt(v, "refid"),
				Coin:    commonAsset(stringAt(v, "asset")),
				Amount:  amount,
				Fee:     fee,
				Address: stringAt(v, "info"),
				TxID:    stringAt(v, "txid"),
				Status:  strings.ToLower(stringAt(v, "status")),
				Time:    time.Unix(int64(v.GetFloat64("time")), 0).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// Withdraw sends funds to the withdrawal key named by req.Address.
func (k *KrakenClient) Withdraw(ctx context.Context, req model.WithdrawRequest) (string, error) {
	params := url.Values{
		"asset":  {krakenAsset(req.Coin)},
		"key":    {req.Address},
		"amount": {req.Amount.String()},
	}

	var refID string
	err := k.call(ctx, true, "Withdraw", params, func(result *fastjson.Value) error {
		refID = stringAt(result, "refid")
		return nil
	})
	return refID, err
}

// StartStream connects to the Kraken WebSocket API and streams ticker updates of pair.
func (k *KrakenClient) StartStream(ctx context.Context, priceChan chan<- model.PriceTick, pair model.Pair) error {
	wsName := krakenAsset(pair.Base) + "/" + krakenAsset(pair.Quote)
	return runStream(ctx, k.logger, k.dialer, stream{
		name: Kraken,
		url:  k.streamURL,
		subscribe: func(c *websocket.Conn) error {
			return c.WriteJSON(map[string]interface{}{
				"event": "subscribe",
				"pair":  []string{wsName},
				"subscription": map[string]string{
					"name": "ticker",
				},
			})
		},
		parse: func(message []byte) (model.PriceTick, bool) {
			return parseKrakenTicker(message, pair)
		},
	}, priceChan)
}

// parseKrakenTicker decodes [channelID, tickerData, "ticker", pair] messages.
// Event objects such as heartbeats are skipped.
func parseKrakenTicker(message []byte, pair model.Pair) (model.PriceTick, bool) {
	v, err := fastjson.ParseBytes(message)
	if err != nil || v.Type() != fastjson.TypeArray {
		return model.PriceTick{}, false
	}
	if stringAt(v, "2") != "ticker" {
		return model.PriceTick{}, false
	}

	bid, err := decimal.NewFromString(stringAt(v, "1", "b", "0"))
	if err != nil {
		return model.PriceTick{}, false
	}
	ask, err := decimal.NewFromString(stringAt(v, "1", "a", "0"))
	if err != nil {
		return model.PriceTick{}, false
	}
	last, err := decimal.NewFromString(stringAt(v, "1", "c", "0"))
	if err != nil {
		return model.PriceTick{}, false
	}

	return model.PriceTick{Exchange: Kraken, Pair: pair, Bid: bid, Ask: ask, Last: last}, true
}
