package upbit

import (
	"strings"

	"exchangeflow/exchange"
	nz "exchangeflow/internal/normalizer"
	"exchangeflow/internal/precise"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

const (
	step       = "0.00000001"
	defaultFee = "0.0025"
)

// feesByQuote overrides the trading fee for markets quoted in a currency.
var feesByQuote = map[string]string{
	"KRW": "0.0005",
}

var tickerMapping = nz.Mapping{
	nz.F("marketId", nz.String, "market", "code"),
	nz.F("timestamp", nz.Integer, "trade_timestamp", "timestamp"),
	nz.F("high", nz.Number, "high_price"),
	nz.F("low", nz.Number, "low_price"),
	nz.F("open", nz.Number, "opening_price"),
	nz.F("last", nz.Number, "trade_price"),
	nz.F("previousClose", nz.Number, "prev_closing_price"),
	nz.F("change", nz.Number, "signed_change_price"),
	nz.T("percentage", nz.Number, nz.Scale("100"), "signed_change_rate"),
	nz.F("baseVolume", nz.Number, "acc_trade_volume_24h"),
	nz.F("quoteVolume", nz.Number, "acc_trade_price_24h"),
}

var sides = map[string]string{
	"bid": string(models.SideBuy),
	"ask": string(models.SideSell),
}

// lower lower-cases a string value before the next transform sees it.
func lower(next func(v, raw any) any) func(v, raw any) any {
	return func(v, raw any) any {
		if s, ok := v.(string); ok {
			v = strings.ToLower(s)
		}
		return next(v, raw)
	}
}

var tradeMapping = nz.Mapping{
	nz.F("id", nz.String, "sequential_id", "uuid"),
	nz.F("marketId", nz.String, "market", "code"),
	nz.T("timestamp", nz.Raw, exchange.TimeValue, "created_at"),
	nz.F("timestamp", nz.Integer, "timestamp"),
	nz.T("side", nz.String, lower(nz.Lookup(sides, "")), "ask_bid", "side"),
	nz.F("price", nz.Number, "trade_price", "price"),
	nz.F("amount", nz.Number, "trade_volume", "volume"),
	nz.F("cost", nz.Number, "funds"),
}

var orderStatuses = map[string]string{
	"wait":   string(models.StatusOpen),
	"done":   string(models.StatusClosed),
	"cancel": string(models.StatusCanceled),
}

var orderMapping = nz.Mapping{
	nz.F("id", nz.String, "uuid"),
	nz.F("clientOrderId", nz.String, "identifier"),
	nz.F("marketId", nz.String, "market"),
	nz.T("timestamp", nz.Raw, exchange.TimeValue, "created_at"),
	nz.T("status", nz.String, nz.Lookup(orderStatuses, ""), "state"),
	nz.F("type", nz.String, "ord_type"),
	nz.F("price", nz.Number, "price"),
	nz.F("amount", nz.Number, "volume"),
	nz.F("remaining", nz.Number, "remaining_volume"),
	nz.F("filled", nz.Number, "executed_volume"),
	nz.F("feeCost", nz.Number, "paid_fee"),
}

var transactionStatuses = map[string]string{
	"submitting":      string(models.TxPending),
	"submitted":       string(models.TxPending),
	"almost_accepted": string(models.TxPending),
	"rejected":        string(models.TxFailed),
	"accepted":        string(models.TxPending),
	"processing":      string(models.TxPending),
	"done":            string(models.TxOK),
	"canceled":        string(models.TxCanceled),
}

var transactionTypes = map[string]string{
	"withdraw": string(models.Withdrawal),
	"deposit":  string(models.Deposit),
}

var transactionMapping = nz.Mapping{
	nz.F("id", nz.String, "uuid"),
	nz.F("currencyId", nz.String, "currency"),
	nz.F("txid", nz.String, "txid"),
	nz.F("amount", nz.Number, "amount"),
	nz.F("feeCost", nz.Number, "fee"),
	nz.T("timestamp", nz.Raw, exchange.TimeValue, "created_at", "done_at"),
	nz.T("updated", nz.Raw, exchange.TimeValue, "done_at"),
	nz.T("type", nz.String, nz.Lookup(transactionTypes, ""), "type"),
	nz.F("network", nz.String, "net_type"),
	nz.T("status", nz.String, lower(nz.Lookup(transactionStatuses, "")), "state"),
}

// parseMarket splits quote-first ids such as "KRW-BTC". Every market
// trades to eight decimals.
func (u *Upbit) parseMarket(raw any) models.Market {
	id := safe.String(raw, "market")
	quoteID, baseID, ok := strings.Cut(id, "-")
	if !ok {
		return models.Market{}
	}
	fee := defaultFee
	if f, ok := feesByQuote[u.Normalizer.Currency(quoteID)]; ok {
		fee = f
	}
	bag := nz.Bag{}.
		Set("id", id).
		Set("baseId", baseID).
		Set("quoteId", quoteID).
		Set("maker", fee).
		Set("taker", fee)
	p := models.MarketPrecision{Amount: precise.Tick(step), Price: precise.Tick(step)}
	return u.Normalizer.Market(bag, p, raw)
}

// parseTrade reads a public tick or an order fill. Fills report the fee as
// bid_fee or ask_fee, in the quote currency.
func (u *Upbit) parseTrade(raw any, m *models.Market) models.Trade {
	bag := tradeMapping.Apply(raw)
	side := safe.StringLower(raw, "ask_bid", "side")
	if side != "" {
		bag.Set("feeCost", safe.Number(raw, side+"_fee"))
	}
	return u.Normalizer.Trade(bag, m, raw)
}

// parseOrder reads an order. ord_type "price" is a market buy by cost,
// whose price field is the amount of quote to spend. When fills are
// attached their costs and fees take precedence.
func (u *Upbit) parseOrder(raw any, m *models.Market) models.Order {
	bag := orderMapping.Apply(raw)
	side := models.SideSell
	if safe.String(raw, "side") == "bid" {
		side = models.SideBuy
	}
	bag.Set("side", string(side))
	if bag.String("type") == "price" {
		bag.Set("type", string(models.OrderTypeMarket))
		bag.Set("cost", bag["price"])
		delete(bag, "price")
	}
	if mm, ok := u.MarketByID(bag.String("marketId")); ok {
		m = mm
	}
	if fills := safe.List(raw, "trades"); len(fills) > 0 {
		trades := make([]models.Trade, 0, len(fills))
		for _, f := range fills {
			t := u.parseTrade(f, m)
			t.Order = bag.String("id")
			t.Type = models.OrderType(bag.String("type"))
			trades = append(trades, t)
		}
		bag["trades"] = trades
		delete(bag, "cost")
	}
	return u.Normalizer.Order(bag, m, raw)
}

// parseTransaction reads a deposit or withdrawal; typ applies when the
// entry does not say which it is.
func (u *Upbit) parseTransaction(raw any, typ models.TransactionType) models.Transaction {
	bag := transactionMapping.Apply(raw)
	bag.Default("type", string(typ))
	return u.Normalizer.Transaction(bag, raw)
}
