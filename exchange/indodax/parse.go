package indodax

import (
	"strings"

	"exchangeflow/exchange"
	nz "exchangeflow/internal/normalizer"
	"exchangeflow/internal/precise"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

// amountStep is the fixed amount precision of every pair.
const amountStep = "0.00000001"

// seconds reads a Unix seconds value, numeric or string, as milliseconds.
// Date strings are parsed as UTC.
func seconds(v, _ any) any {
	if v == nil {
		return nil
	}
	if s, ok := safe.ToInt(v); ok {
		return s * 1000
	}
	return exchange.TimeValue(v, nil)
}

var marketMapping = nz.Mapping{
	nz.F("id", nz.String, "ticker_id"),
	nz.F("baseId", nz.String, "traded_currency"),
	nz.F("quoteId", nz.String, "base_currency"),
	nz.T("active", nz.Integer, func(v, raw any) any {
		maintenance, _ := v.(int64)
		suspended, _ := safe.Integer(raw, "is_market_suspended")
		return maintenance == 0 && suspended <= 0
	}, "is_maintenance"),
	nz.T("taker", nz.Number, nz.Scale("0.01"), "trade_fee_percent"),
	nz.F("amountMin", nz.Number, "trade_min_traded_currency"),
	nz.F("priceMin", nz.Number, "trade_min_base_currency"),
}

var tickerMapping = nz.Mapping{
	nz.T("timestamp", nz.Raw, seconds, "server_time"),
	nz.F("high", nz.Number, "high"),
	nz.F("low", nz.Number, "low"),
	nz.F("bid", nz.Number, "buy"),
	nz.F("ask", nz.Number, "sell"),
	nz.F("last", nz.Number, "last"),
}

var tradeMapping = nz.Mapping{
	nz.F("id", nz.String, "tid"),
	nz.T("timestamp", nz.Raw, seconds, "date"),
	nz.F("side", nz.String, "type"),
	nz.F("price", nz.Number, "price"),
	nz.F("amount", nz.Number, "amount"),
}

var orderStatuses = map[string]string{
	"open":      string(models.StatusOpen),
	"filled":    string(models.StatusClosed),
	"cancelled": string(models.StatusCanceled),
}

var orderMapping = nz.Mapping{
	nz.F("id", nz.String, "order_id", "id"),
	nz.T("timestamp", nz.Raw, seconds, "submit_time"),
	nz.F("side", nz.String, "type"),
	nz.F("price", nz.Number, "price"),
	nz.T("status", nz.String, nz.Lookup(orderStatuses, ""), "status"),
	nz.F("clientOrderId", nz.String, "client_order_id"),
}

var transactionStatuses = map[string]string{
	"success":   string(models.TxOK),
	"pending":   string(models.TxPending),
	"failed":    string(models.TxFailed),
	"cancelled": string(models.TxCanceled),
}

var transactionMapping = nz.Mapping{
	nz.F("id", nz.String, "withdraw_id", "deposit_id"),
	nz.F("txid", nz.String, "txid", "tx"),
	nz.T("timestamp", nz.Raw, seconds, "success_time", "submit_time"),
	nz.F("address", nz.String, "withdraw_address"),
	nz.F("amount", nz.Number, "amount", "withdraw_amount", "deposit_amount"),
	nz.F("feeCost", nz.Number, "fee"),
	nz.F("tag", nz.String, "withdraw_memo"),
	nz.T("status", nz.String, nz.Lookup(transactionStatuses, ""), "status"),
}

func (x *Indodax) parseMarket(raw any) models.Market {
	bag := marketMapping.Apply(raw)
	bag.Set("maker", "0")
	p := models.MarketPrecision{Amount: precise.Tick(amountStep)}
	if step, err := precise.StepFromPlaces(safe.String(raw, "price_round")); err == nil && step != "" {
		p.Price = precise.Tick(step)
	}
	return x.Normalizer.Market(bag, p, raw)
}

// parseTicker needs the market: the volume keys are named after the
// lower-case currency ids, as in vol_btc and vol_idr.
func (x *Indodax) parseTicker(raw any, m *models.Market) models.Ticker {
	bag := tickerMapping.Apply(raw)
	bag.Set("baseVolume", safe.Number(raw, "vol_"+strings.ToLower(m.BaseID)))
	bag.Set("quoteVolume", safe.Number(raw, "vol_"+strings.ToLower(m.QuoteID)))
	return x.Normalizer.Ticker(bag, m, raw)
}

func (x *Indodax) parseOrders(list []any, m *models.Market) []models.Order {
	out := make([]models.Order, 0, len(list))
	for _, raw := range list {
		out = append(out, x.parseOrder(raw, m))
	}
	return out
}

// parseOrder reads quantities keyed by currency id. A buy reports what it
// spends as order_<quote> (order_rp for rupiah) and is a cost; a sell
// reports order_<base> and remain_<base>. Orders are always limit orders
// and are open unless the status says otherwise.
func (x *Indodax) parseOrder(raw any, m *models.Market) models.Order {
	bag := orderMapping.Apply(raw)
	bag.Default("status", string(models.StatusOpen))
	bag.Set("type", string(models.OrderTypeLimit))
	if m != nil {
		baseID, quoteID := strings.ToLower(m.BaseID), strings.ToLower(m.QuoteID)
		if quoteID == "idr" && safe.Has(raw, "order_rp") {
			quoteID = "rp"
		}
		if baseID == "idr" && safe.Has(raw, "remain_rp") {
			baseID = "rp"
		}
		if cost := safe.Number(raw, "order_"+quoteID); cost != "" {
			bag.Set("cost", cost)
		} else {
			bag.Set("amount", safe.Number(raw, "order_"+baseID))
			bag.Set("remaining", safe.Number(raw, "remain_"+baseID))
		}
	}
	if bag.String("status") == string(models.StatusClosed) {
		if ts, ok := seconds(safe.Value(raw, "finish_time"), nil).(int64); ok {
			bag.Set("lastTradeTimestamp", ts)
		}
	}
	return x.Normalizer.Order(bag, m, raw)
}

// parseTransaction reads one transHistory entry. The currency comes from
// the key the entry is grouped under; an entry with a deposit_id is a
// deposit whatever group it sits in.
func (x *Indodax) parseTransaction(raw any, currencyID string, typ models.TransactionType) models.Transaction {
	bag := transactionMapping.Apply(raw)
	if safe.Has(raw, "deposit_id") {
		typ = models.Deposit
	}
	bag.Set("type", string(typ))
	bag.Set("currencyId", currencyID)
	return x.Normalizer.Transaction(bag, raw)
}
