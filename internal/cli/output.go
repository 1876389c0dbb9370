package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"dodo/internal/model"

	"github.com/kr/pretty"
	"github.com/shopspring/decimal"
)

// printRates writes one "SYMBOL: rate" line per rate, ordered by symbol.
func printRates(w io.Writer, rates map[string]decimal.Decimal) {
	symbols := make([]string, 0, len(rates))
	for symbol := range rates {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		fmt.Fprintf(w, "%s: %s\n", symbol, rates[symbol])
	}
}

// offerRow and the other row types render decimals as strings,
// since pretty would otherwise print their internals.
type offerRow struct {
	Price    string
	Quantity string
}

type depthRow struct {
	Bids []offerRow
	Asks []offerRow
}

type tickerRow struct {
	Last   string
	Bid    string
	Ask    string
	High   string
	Low    string
	Volume string
}

type tickRow struct {
	Exchange string
	Pair     string
	Bid      string
	Ask      string
	Last     string
}

type orderRow struct {
	OrderID string
	Pair    string
	Side    string
	Type    string
	Rate    string
	Amount  string
	Filled  string
	Status  string
}

type balanceRow struct {
	Asset  string
	Free   string
	Locked string
}

type transferRow struct {
	ID      string
	Coin    string
	Amount  string
	Fee     string
	Address string
	TxID    string
	Status  string
	Time    string
}

type marketRow struct {
	Market string
	Last   string
	Volume string
}

func (d *Dispatcher) print(v any) {
	pretty.Fprintf(d.out, "%# v\n", v)
}

func offerViews(offers []model.Offer) []offerRow {
	rows := make([]offerRow, 0, len(offers))
	for _, o := range offers {
		rows = append(rows, offerRow{Price: o.Price.String(), Quantity: o.Quantity.String()})
	}
	return rows
}

func depthView(d *model.Depth) depthRow {
	return depthRow{Bids: offerViews(d.Bids), Asks: offerViews(d.Asks)}
}

func tickerView(t *model.Ticker) tickerRow {
	return tickerRow{
		Last:   t.Last.String(),
		Bid:    t.Bid.String(),
		Ask:    t.Ask.String(),
		High:   t.High.String(),
		Low:    t.Low.String(),
		Volume: t.Volume.String(),
	}
}

func tickView(t model.PriceTick) tickRow {
	return tickRow{
		Exchange: t.Exchange,
		Pair:     t.Pair.String(),
		Bid:      t.Bid.String(),
		Ask:      t.Ask.String(),
		Last:     t.Last.String(),
	}
}

func orderView(o model.Order) orderRow {
	return orderRow{
		OrderID: o.OrderID,
		Pair:    o.Pair,
		Side:    string(o.Side),
		Type:    string(o.Type),
		Rate:    o.Rate.String(),
		Amount:  o.Amount.String(),
		Filled:  o.Filled.String(),
		Status:  o.Status,
	}
}

func balanceView(b model.Balance) balanceRow {
	return balanceRow{Asset: b.Asset, Free: b.Free.String(), Locked: b.Locked.String()}
}

func transferView(t model.Transfer) transferRow {
	row := transferRow{
		ID:      t.ID,
		Coin:    t.Coin,
		Amount:  t.Amount.String(),
		Fee:     t.Fee.String(),
		Address: t.Address,
		TxID:    t.TxID,
		Status:  t.Status,
	}
	if !t.Time.IsZero() {
		row.Time = t.Time.Format(time.RFC3339)
	}
	return row
}

func marketView(m model.MarketSummary) marketRow {
	return marketRow{Market: m.Base + "-" + m.Quote, Last: m.Last.String(), Volume: m.QuoteVolume.String()}
}
