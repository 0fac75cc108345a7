package commex

import (
	"strings"

	"exchangeflow/exchange"
	nz "exchangeflow/internal/normalizer"
	"exchangeflow/internal/precise"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

var marketMapping = nz.Mapping{
	nz.F("id", nz.String, "symbol"),
	nz.F("baseId", nz.String, "baseAsset"),
	nz.F("quoteId", nz.String, "quoteAsset"),
	nz.F("amountMin", nz.Number, "ordermin"),
	nz.F("costMin", nz.Number, "costmin"),
	nz.T("active", nz.String, func(v, _ any) any {
		if v == nil {
			return nil
		}
		return v == "TRADING"
	}, "status"),
}

var tickerMapping = nz.Mapping{
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "closeTime"),
	nz.F("high", nz.Number, "highPrice"),
	nz.F("low", nz.Number, "lowPrice"),
	nz.F("bid", nz.Number, "bidPrice"),
	nz.F("bidVolume", nz.Number, "bidQty"),
	nz.F("ask", nz.Number, "askPrice"),
	nz.F("askVolume", nz.Number, "askQty"),
	nz.F("vwap", nz.Number, "weightedAvgPrice"),
	nz.F("open", nz.Number, "openPrice"),
	nz.F("last", nz.Number, "lastPrice"),
	nz.F("previousClose", nz.Number, "prevClosePrice"),
	nz.F("change", nz.Number, "priceChange"),
	nz.F("percentage", nz.Number, "priceChangePercent"),
	nz.F("baseVolume", nz.Number, "volume"),
	nz.F("quoteVolume", nz.Number, "quoteVolume"),
}

var tradeMapping = nz.Mapping{
	nz.F("id", nz.String, "a", "id", "tradeId"),
	nz.F("order", nz.String, "orderId"),
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "T", "time"),
	nz.F("price", nz.Number, "p", "price"),
	nz.F("amount", nz.Number, "q", "qty"),
	nz.F("cost", nz.Number, "quoteQty"),
	nz.T("side", nz.Raw, tradeSide),
	nz.T("takerOrMaker", nz.Bool, func(v, _ any) any {
		maker, ok := v.(bool)
		if !ok {
			return nil
		}
		if maker {
			return string(models.Maker)
		}
		return string(models.Taker)
	}, "isMaker"),
	nz.F("feeCost", nz.Number, "commission"),
	nz.F("feeCurrencyId", nz.String, "commissionAsset"),
}

// tradeSide reads isBuyer on account fills and the buyer-maker flag on
// public trades, where a buyer-maker print is a sell.
func tradeSide(_, raw any) any {
	if buyer, ok := safe.Bool(raw, "isBuyer"); ok {
		if buyer {
			return string(models.SideBuy)
		}
		return string(models.SideSell)
	}
	if maker, ok := safe.Bool(raw, "m", "isBuyerMaker"); ok {
		if maker {
			return string(models.SideSell)
		}
		return string(models.SideBuy)
	}
	return nil
}

var orderStatuses = map[string]string{
	"NEW":              string(models.StatusOpen),
	"PARTIALLY_FILLED": string(models.StatusOpen),
	"PENDING_CANCEL":   string(models.StatusOpen),
	"FILLED":           string(models.StatusClosed),
	"CANCELED":         string(models.StatusCanceled),
	"REJECTED":         string(models.StatusRejected),
	"EXPIRED":          string(models.StatusExpired),
}

func lower(v, _ any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return strings.ToLower(s)
}

func nonZero(v, _ any) any {
	s, ok := v.(string)
	if !ok || precise.Equal(s, "0") {
		return nil
	}
	return s
}

var orderMapping = nz.Mapping{
	nz.F("id", nz.String, "orderId"),
	nz.F("clientOrderId", nz.String, "clientOrderId"),
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "time", "createTime", "workingTime", "transactTime", "updateTime"),
	nz.T("status", nz.String, nz.Lookup(orderStatuses, ""), "status"),
	nz.F("price", nz.Number, "price"),
	nz.F("amount", nz.Number, "origQty", "quantity"),
	nz.F("filled", nz.Number, "executedQty"),
	nz.F("cost", nz.Number, "cummulativeQuoteQty", "cumQuote"),
	nz.T("average", nz.Number, nonZero, "avgPrice"),
	nz.T("type", nz.String, lower, "type"),
	nz.T("side", nz.String, lower, "side"),
	nz.F("timeInForce", nz.String, "timeInForce"),
	nz.T("stopPrice", nz.Number, nonZero, "stopPrice"),
}

var depositStatuses = map[string]string{
	"0":             string(models.TxPending),
	"1":             string(models.TxOK),
	"6":             string(models.TxOK),
	"Processing":    string(models.TxPending),
	"Failed":        string(models.TxFailed),
	"Successful":    string(models.TxOK),
	"Refunding":     string(models.TxCanceled),
	"Refunded":      string(models.TxCanceled),
	"Refund Failed": string(models.TxFailed),
}

var withdrawalStatuses = map[string]string{
	"0":             string(models.TxPending),
	"1":             string(models.TxCanceled),
	"2":             string(models.TxPending),
	"3":             string(models.TxFailed),
	"4":             string(models.TxPending),
	"5":             string(models.TxFailed),
	"6":             string(models.TxOK),
	"Processing":    string(models.TxPending),
	"Failed":        string(models.TxFailed),
	"Successful":    string(models.TxOK),
	"Refunding":     string(models.TxCanceled),
	"Refunded":      string(models.TxCanceled),
	"Refund Failed": string(models.TxFailed),
}

var transactionMapping = nz.Mapping{
	nz.F("id", nz.String, "id", "orderNo"),
	nz.F("address", nz.String, "address"),
	nz.F("tag", nz.String, "addressTag"),
	nz.T("txid", nz.String, func(v, _ any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		return strings.TrimPrefix(s, "Internal transfer ")
	}, "txId"),
	nz.F("currencyId", nz.String, "coin", "fiatCurrency"),
	nz.F("timestamp", nz.Integer, "insertTime", "createTime"),
	nz.T("applied", nz.String, exchange.TimeValue, "applyTime"),
	nz.F("updated", nz.Integer, "successTime", "updateTime"),
	nz.F("amount", nz.Number, "amount"),
	nz.F("feeCost", nz.Number, "transactionFee", "totalFee"),
	nz.F("network", nz.String, "network"),
}

// tickStep turns a decimal place count into a tick size precision.
func tickStep(places string) (precise.Precision, string) {
	if places == "" {
		return precise.Precision{}, ""
	}
	step, err := precise.StepFromPlaces(places)
	if err != nil {
		return precise.Precision{}, ""
	}
	return precise.Tick(step), step
}

func (c *Commex) parseMarket(raw any) models.Market {
	bag := marketMapping.Apply(raw)
	var p models.MarketPrecision
	var priceStep string
	p.Price, priceStep = tickStep(safe.String(raw, "pair_decimals"))
	p.Amount, _ = tickStep(safe.String(raw, "lot_decimals"))
	for _, f := range safe.List(raw, "filters") {
		switch safe.String(f, "filterType") {
		case "PRICE_FILTER":
			if tick := safe.Number(f, "tickSize"); !p.Price.IsSet() && precise.Gt(tick, "0") {
				p.Price = precise.Tick(tick)
			}
			bag.Default("priceMin", nonZero(safe.Number(f, "minPrice"), nil))
			bag.Default("priceMax", nonZero(safe.Number(f, "maxPrice"), nil))
		case "LOT_SIZE":
			if step := safe.Number(f, "stepSize"); !p.Amount.IsSet() && precise.Gt(step, "0") {
				p.Amount = precise.Tick(step)
			}
			bag.Default("amountMin", nonZero(safe.Number(f, "minQty"), nil))
			bag.Default("amountMax", nonZero(safe.Number(f, "maxQty"), nil))
		case "MIN_NOTIONAL", "NOTIONAL":
			bag.Default("costMin", nonZero(safe.Number(f, "minNotional"), nil))
		}
	}
	bag.Default("priceMin", priceStep)
	return c.Normalizer.Market(bag, p, raw)
}

func (c *Commex) parseCurrency(raw any) models.Currency {
	id := safe.String(raw, "assetCode", "coin")
	if id == "" {
		return models.Currency{}
	}
	withdraw, _ := safe.Bool(raw, "enableWithdraw", "withdrawAllEnable")
	deposit, ok := safe.Bool(raw, "enableDeposit", "depositAllEnable")
	if !ok {
		deposit = true
	}
	return models.Currency{
		Code:     c.Normalizer.Currency(id),
		ID:       id,
		Name:     safe.String(raw, "assetName", "name"),
		Active:   deposit || withdraw,
		Deposit:  deposit,
		Withdraw: withdraw,
		Info:     raw,
	}
}

func (c *Commex) parseTrades(resp any, m *models.Market, since *int64, limit int) []models.Trade {
	list, _ := resp.([]any)
	out := make([]models.Trade, 0, len(list))
	for _, raw := range list {
		out = append(out, c.Normalizer.Trade(tradeMapping.Apply(raw), m, raw))
	}
	return nz.FilterBySinceLimit(out, since, limit)
}

func (c *Commex) parseOrders(resp any, m *models.Market) []models.Order {
	list, _ := resp.([]any)
	out := make([]models.Order, 0, len(list))
	for _, raw := range list {
		out = append(out, c.parseOrder(raw, m))
	}
	return out
}

// parseOrder fills the gaps of the order payload before normalizing:
// executedQty defaults to zero, LIMIT_MAKER and GTX mean post-only, a body
// carrying an error code is a rejected order, and the last trade time is
// the update time once something has filled.
func (c *Commex) parseOrder(raw any, m *models.Market) models.Order {
	bag := orderMapping.Apply(raw)
	bag.Default("filled", "0")
	if safe.Has(raw, "code") {
		bag.Set("status", string(models.StatusRejected))
	}
	switch bag.String("type") {
	case "limit_maker":
		bag.Set("type", string(models.OrderTypeLimit))
		bag.Set("postOnly", true)
	case "market":
		if p := bag.Decimal("price"); p != nil && p.IsZero() {
			delete(bag, "price")
		}
	}
	if bag.String("timeInForce") == "GTX" {
		bag.Set("timeInForce", "PO")
		bag.Set("postOnly", true)
	}

	status := bag.String("status")
	filled := bag.Decimal("filled")
	if status == string(models.StatusClosed) || (status == string(models.StatusOpen) && filled != nil && filled.IsPositive()) {
		if ts, ok := safe.Integer(raw, "updateTime", "transactTime"); ok {
			bag.Set("lastTradeTimestamp", ts)
		}
	}

	if fills := safe.List(raw, "fills"); len(fills) > 0 {
		trades := make([]models.Trade, 0, len(fills))
		for _, f := range fills {
			t := c.Normalizer.Trade(tradeMapping.Apply(f), m, f)
			trades = append(trades, t)
		}
		bag.Set("trades", trades)
	}
	return c.Normalizer.Order(bag, m, raw)
}

func (c *Commex) parseTransactions(resp any, typ models.TransactionType, since *int64, limit int) []models.Transaction {
	list, _ := resp.([]any)
	out := make([]models.Transaction, 0, len(list))
	for _, raw := range list {
		out = append(out, c.parseTransaction(raw, typ))
	}
	return nz.FilterBySinceLimit(out, since, limit)
}

func (c *Commex) parseTransaction(raw any, typ models.TransactionType) models.Transaction {
	bag := transactionMapping.Apply(raw)
	if applied, ok := bag["applied"]; ok {
		bag.Default("timestamp", applied)
	}
	bag.Set("type", string(typ))
	statuses := depositStatuses
	if typ == models.Withdrawal {
		statuses = withdrawalStatuses
	}
	if s, ok := statuses[safe.String(raw, "status")]; ok {
		bag.Set("status", s)
	}
	return c.Normalizer.Transaction(bag, raw)
}
