package kucoin

import (
	"strings"

	"github.com/shopspring/decimal"

	nz "exchangeflow/internal/normalizer"
	"exchangeflow/internal/precise"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

const defaultFee = "0.001"

var marketMapping = nz.Mapping{
	nz.F("id", nz.String, "symbol"),
	nz.F("baseId", nz.String, "baseCurrency"),
	nz.F("quoteId", nz.String, "quoteCurrency"),
	nz.F("active", nz.Bool, "enableTrading"),
	nz.F("amountMin", nz.Number, "baseMinSize"),
	nz.F("amountMax", nz.Number, "baseMaxSize"),
	nz.F("costMin", nz.Number, "quoteMinSize"),
	nz.F("costMax", nz.Number, "quoteMaxSize"),
	nz.F("priceMin", nz.Number, "priceIncrement"),
}

var tickerMapping = nz.Mapping{
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "time", "datetime"),
	nz.F("high", nz.Number, "high"),
	nz.F("low", nz.Number, "low"),
	nz.F("bid", nz.Number, "buy", "bestBid"),
	nz.F("bidVolume", nz.Number, "bestBidSize"),
	nz.F("ask", nz.Number, "sell", "bestAsk"),
	nz.F("askVolume", nz.Number, "bestAskSize"),
	nz.F("open", nz.Number, "open"),
	nz.F("last", nz.Number, "last", "lastTradedPrice", "price"),
	nz.F("change", nz.Number, "changePrice"),
	nz.T("percentage", nz.Number, nz.Scale("100"), "changeRate"),
	nz.F("average", nz.Number, "averagePrice"),
	nz.F("baseVolume", nz.Number, "vol"),
	nz.F("quoteVolume", nz.Number, "volValue"),
}

// nanos converts the nanosecond trade clock to milliseconds.
func nanos(v, _ any) any {
	ns, ok := v.(int64)
	if !ok {
		return nil
	}
	return ns / 1_000_000
}

var tradeMapping = nz.Mapping{
	nz.F("id", nz.String, "tradeId", "id", "sequence"),
	nz.F("order", nz.String, "orderId"),
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "createdAt"),
	nz.T("timestamp", nz.Integer, nanos, "time"),
	nz.F("price", nz.Number, "price", "dealPrice"),
	nz.F("amount", nz.Number, "size", "amount"),
	nz.F("cost", nz.Number, "funds", "dealValue"),
	nz.F("side", nz.String, "side"),
	nz.T("type", nz.String, nz.Lookup(map[string]string{"match": ""}, ""), "type"),
	nz.F("takerOrMaker", nz.String, "liquidity"),
	nz.F("feeCost", nz.Number, "fee"),
	nz.F("feeCurrencyId", nz.String, "feeCurrency"),
	nz.F("feeRate", nz.Number, "feeRate"),
}

func nonZero(v, _ any) any {
	s, ok := v.(string)
	if !ok || precise.Equal(s, "0") {
		return nil
	}
	return s
}

var orderMapping = nz.Mapping{
	nz.F("id", nz.String, "id", "orderId"),
	nz.F("clientOrderId", nz.String, "clientOid"),
	nz.F("marketId", nz.String, "symbol"),
	nz.F("timestamp", nz.Integer, "createdAt"),
	nz.F("type", nz.String, "type"),
	nz.F("side", nz.String, "side"),
	nz.F("timeInForce", nz.String, "timeInForce"),
	nz.F("postOnly", nz.Bool, "postOnly"),
	nz.F("amount", nz.Number, "size"),
	nz.T("price", nz.Number, nonZero, "price"),
	nz.T("stopPrice", nz.Number, nonZero, "stopPrice"),
	nz.F("cost", nz.Number, "dealFunds"),
	nz.F("filled", nz.Number, "dealSize"),
	nz.F("feeCost", nz.Number, "fee"),
	nz.F("feeCurrencyId", nz.String, "feeCurrency"),
}

var transactionStatuses = map[string]string{
	"SUCCESS":           string(models.TxOK),
	"PROCESSING":        string(models.TxPending),
	"WALLET_PROCESSING": string(models.TxPending),
	"FAILURE":           string(models.TxFailed),
}

var transactionMapping = nz.Mapping{
	nz.F("id", nz.String, "id", "withdrawalId"),
	nz.F("currencyId", nz.String, "currency"),
	nz.F("address", nz.String, "address"),
	nz.F("tag", nz.String, "memo"),
	nz.F("amount", nz.Number, "amount"),
	nz.F("feeCost", nz.Number, "fee"),
	nz.F("timestamp", nz.Integer, "createdAt", "createAt"),
	nz.F("updated", nz.Integer, "updatedAt", "updateAt"),
	nz.T("network", nz.String, func(v, _ any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		return strings.ToUpper(s)
	}, "chain"),
	nz.T("status", nz.String, nz.Lookup(transactionStatuses, ""), "status"),
}

func tick(step string) precise.Precision {
	if !precise.Gt(step, "0") {
		return precise.Precision{}
	}
	return precise.Tick(step)
}

func (k *Kucoin) parseMarket(raw any) models.Market {
	bag := marketMapping.Apply(raw)
	bag.Set("maker", defaultFee).Set("taker", defaultFee)
	p := models.MarketPrecision{
		Amount: tick(safe.Number(raw, "baseIncrement")),
		Price:  tick(safe.Number(raw, "priceIncrement")),
	}
	return k.Normalizer.Market(bag, p, raw)
}

// parseCurrency reads a /api/v3/currencies entry. A currency can deposit
// or withdraw when any of its chains can.
func (k *Kucoin) parseCurrency(raw any) models.Currency {
	id := safe.String(raw, "currency")
	if id == "" {
		return models.Currency{}
	}
	c := models.Currency{
		Code:     k.Normalizer.Currency(id),
		ID:       id,
		Name:     safe.String(raw, "fullName", "name"),
		Networks: map[string]models.Network{},
		Info:     raw,
	}
	if places, ok := safe.Integer(raw, "precision"); ok {
		c.Precision = precise.Places(int(places))
	}
	var minFee *decimal.Decimal
	for _, chain := range safe.List(raw, "chains") {
		name := strings.ToUpper(safe.String(chain, "chainName", "chain"))
		if name == "" {
			continue
		}
		deposit, _ := safe.Bool(chain, "isDepositEnabled")
		withdraw, _ := safe.Bool(chain, "isWithdrawEnabled")
		n := models.Network{
			ID:       safe.String(chain, "chainId", "chain"),
			Network:  name,
			Active:   deposit || withdraw,
			Deposit:  deposit,
			Withdraw: withdraw,
		}
		if fee, ok := safe.ToDecimalValue(safe.Value(chain, "withdrawalMinFee")); ok {
			n.Fee = &fee
			if minFee == nil || fee.LessThan(*minFee) {
				minFee = &fee
			}
		}
		if min, ok := safe.ToDecimalValue(safe.Value(chain, "withdrawalMinSize")); ok {
			n.Limits.Amount.Min = &min
		}
		c.Networks[name] = n
		c.Deposit = c.Deposit || deposit
		c.Withdraw = c.Withdraw || withdraw
	}
	if len(c.Networks) == 0 {
		c.Deposit, _ = safe.Bool(raw, "isDepositEnabled")
		c.Withdraw, _ = safe.Bool(raw, "isWithdrawEnabled")
	}
	c.Active = c.Deposit || c.Withdraw
	c.Fee = minFee
	return c
}

func (k *Kucoin) parseTrades(list []any, m *models.Market, since *int64, limit int) []models.Trade {
	out := make([]models.Trade, 0, len(list))
	for _, raw := range list {
		out = append(out, k.Normalizer.Trade(tradeMapping.Apply(raw), m, raw))
	}
	return nz.FilterBySinceLimit(out, since, limit)
}

// parseOrder derives the status from the active and cancel flags: an
// inactive order that was canceled is canceled, otherwise done.
func (k *Kucoin) parseOrder(raw any, m *models.Market) models.Order {
	bag := orderMapping.Apply(raw)
	active, hasActive := safe.Bool(raw, "isActive", "active")
	canceled, _ := safe.Bool(raw, "cancelExist")
	switch {
	case hasActive && active:
		bag.Set("status", string(models.StatusOpen))
	case canceled:
		bag.Set("status", string(models.StatusCanceled))
	case hasActive:
		bag.Set("status", string(models.StatusClosed))
	}
	if bag.String("type") == string(models.OrderTypeMarket) {
		delete(bag, "price")
	}
	return k.Normalizer.Order(bag, m, raw)
}

// parseTransaction splits walletTxId "txid@address" when the address is
// not reported on its own.
func (k *Kucoin) parseTransaction(raw any, typ models.TransactionType) models.Transaction {
	bag := transactionMapping.Apply(raw)
	bag.Set("type", string(typ))
	if wallet := safe.String(raw, "walletTxId"); wallet != "" {
		txid, addr, found := strings.Cut(wallet, "@")
		bag.Set("txid", txid)
		if found {
			bag.Default("address", addr)
		}
	}
	return k.Normalizer.Transaction(bag, raw)
}
