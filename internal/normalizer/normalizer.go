// Package normalizer turns extracted vendor fields into unified values and
// enforces the cross-field invariants of each entity.
package normalizer

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchangeflow/internal/safe"
	"exchangeflow/internal/symbols"
	"exchangeflow/models"
)

// MarketResolver looks a market up by vendor id.
type MarketResolver interface {
	MarketByID(id string) (*models.Market, bool)
}

// Normalizer builds unified values for one exchange.
type Normalizer struct {
	Exchange string
	Markets  MarketResolver
	// Delimiter and QuoteFirst describe vendor ids such as "BTC-USDT" so a
	// symbol can still be derived for ids missing from the market cache.
	Delimiter  string
	QuoteFirst bool
}

// New returns a Normalizer for exchange.
func New(exchange string, markets MarketResolver) *Normalizer {
	return &Normalizer{Exchange: exchange, Markets: markets}
}

// Currency maps a vendor currency id to its unified code.
func (n *Normalizer) Currency(id string) string {
	if id == "" {
		return ""
	}
	return symbols.CommonCurrencyCode(n.Exchange, id)
}

// resolve finds the symbol and market for a bag. An unresolvable symbol is
// returned as "" rather than an error.
func (n *Normalizer) resolve(b Bag, market *models.Market) (string, *models.Market) {
	if s := b.String("symbol"); s != "" {
		return s, market
	}
	id := b.String("marketId")
	if id != "" && n.Markets != nil {
		if m, ok := n.Markets.MarketByID(id); ok {
			return m.Symbol, m
		}
	}
	if market != nil {
		return market.Symbol, market
	}
	if id != "" {
		return symbols.FromID(n.Exchange, id, n.Delimiter, n.QuoteFirst), nil
	}
	return "", nil
}

func mul(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	return ptr(a.Mul(*b))
}

func sub(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	return ptr(a.Sub(*b))
}

func add(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	return ptr(a.Add(*b))
}

func div(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil || b.IsZero() {
		return nil
	}
	return ptr(a.DivRound(*b, 18))
}

// Ticker builds a unified ticker. close and last backfill each other, and
// change, percentage, average and vwap are derived when the inputs exist.
func (n *Normalizer) Ticker(b Bag, market *models.Market, info any) models.Ticker {
	symbol, _ := n.resolve(b, market)
	t := models.Ticker{
		Exchange:      n.Exchange,
		Symbol:        symbol,
		Timestamp:     b.Int("timestamp"),
		High:          b.Decimal("high"),
		Low:           b.Decimal("low"),
		Bid:           b.Decimal("bid"),
		BidVolume:     b.Decimal("bidVolume"),
		Ask:           b.Decimal("ask"),
		AskVolume:     b.Decimal("askVolume"),
		VWAP:          b.Decimal("vwap"),
		Open:          b.Decimal("open"),
		Close:         b.Decimal("close"),
		Last:          b.Decimal("last"),
		PreviousClose: b.Decimal("previousClose"),
		Change:        b.Decimal("change"),
		Percentage:    b.Decimal("percentage"),
		Average:       b.Decimal("average"),
		BaseVolume:    b.Decimal("baseVolume"),
		QuoteVolume:   b.Decimal("quoteVolume"),
		Info:          info,
	}
	if t.Close == nil {
		t.Close = t.Last
	}
	if t.Last == nil {
		t.Last = t.Close
	}
	if t.Open == nil && t.Last != nil && t.Change != nil {
		t.Open = sub(t.Last, t.Change)
	}
	if t.Open != nil && t.Last != nil {
		if t.Change == nil {
			t.Change = sub(t.Last, t.Open)
		}
		if t.Average == nil {
			t.Average = ptr(t.Last.Add(*t.Open).DivRound(decimal.NewFromInt(2), 18))
		}
	}
	if t.Percentage == nil && t.Change != nil && t.Open != nil && !t.Open.IsZero() {
		t.Percentage = ptr(t.Change.DivRound(*t.Open, 18).Mul(decimal.NewFromInt(100)))
	}
	if t.VWAP == nil {
		t.VWAP = div(t.QuoteVolume, t.BaseVolume)
	}
	return t
}

func side(b Bag) models.Side {
	switch s := models.Side(b.String("side")); s {
	case models.SideBuy, models.SideSell:
		return s
	default:
		return models.SideUnknown
	}
}

func orderType(b Bag) models.OrderType {
	if s := b.String("type"); s != "" {
		return models.OrderType(s)
	}
	return models.OrderTypeUnknown
}

func (n *Normalizer) fee(b Bag, market *models.Market) *models.Fee {
	if f, ok := b["fee"].(*models.Fee); ok {
		return f
	}
	cost := b.Decimal("feeCost")
	if cost == nil {
		return nil
	}
	currency := b.String("feeCurrency")
	if currency == "" {
		if id := b.String("feeCurrencyId"); id != "" {
			currency = n.Currency(id)
		} else if market != nil {
			currency = market.Quote
		}
	}
	return &models.Fee{Cost: cost, Currency: currency, Rate: b.Decimal("feeRate")}
}

// Trade builds a unified trade. cost defaults to price * amount.
func (n *Normalizer) Trade(b Bag, market *models.Market, info any) models.Trade {
	symbol, m := n.resolve(b, market)
	t := models.Trade{
		Exchange:     n.Exchange,
		ID:           b.String("id"),
		Order:        b.String("order"),
		Timestamp:    b.Int("timestamp"),
		Symbol:       symbol,
		Type:         orderType(b),
		Side:         side(b),
		TakerOrMaker: models.LiquidityUnknown,
		Price:        b.Decimal("price"),
		Amount:       b.Decimal("amount"),
		Cost:         b.Decimal("cost"),
		Fee:          n.fee(b, m),
		Info:         info,
	}
	switch tm := models.TakerOrMaker(b.String("takerOrMaker")); tm {
	case models.Taker, models.Maker:
		t.TakerOrMaker = tm
	}
	if t.Cost == nil {
		t.Cost = mul(t.Price, t.Amount)
	}
	return t
}

// Order builds a unified order. Missing quantities are derived in this
// order: filled and cost from trades, amount from filled + remaining,
// filled from amount - remaining, remaining from amount - filled, average
// from the volume-weighted trade price or cost / filled, and cost from
// average * filled.
func (n *Normalizer) Order(b Bag, market *models.Market, info any) models.Order {
	symbol, m := n.resolve(b, market)
	o := models.Order{
		Exchange:           n.Exchange,
		ID:                 b.String("id"),
		ClientOrderID:      b.String("clientOrderId"),
		Timestamp:          b.Int("timestamp"),
		LastTradeTimestamp: b.Int("lastTradeTimestamp"),
		Symbol:             symbol,
		Type:               orderType(b),
		Side:               side(b),
		TimeInForce:        b.String("timeInForce"),
		Price:              b.Decimal("price"),
		StopPrice:          b.Decimal("stopPrice"),
		Amount:             b.Decimal("amount"),
		Filled:             b.Decimal("filled"),
		Remaining:          b.Decimal("remaining"),
		Cost:               b.Decimal("cost"),
		Average:            b.Decimal("average"),
		Status:             models.StatusUnknown,
		Fee:                n.fee(b, m),
		Info:               info,
	}
	if postOnly, ok := b.Bool("postOnly"); ok {
		o.PostOnly = postOnly
	}
	switch s := models.OrderStatus(b.String("status")); s {
	case models.StatusOpen, models.StatusClosed, models.StatusCanceled, models.StatusExpired, models.StatusRejected:
		o.Status = s
	}
	if trades, ok := b["trades"].([]models.Trade); ok && len(trades) > 0 {
		o.Trades = trades
		n.fromTrades(&o)
	}

	if o.Amount == nil {
		if o.Filled != nil && o.Remaining != nil {
			o.Amount = add(o.Filled, o.Remaining)
		} else if o.Status == models.StatusClosed && o.Filled != nil {
			o.Amount = o.Filled
		}
	}
	if o.Filled == nil && o.Amount != nil && o.Remaining != nil {
		o.Filled = sub(o.Amount, o.Remaining)
	}
	if o.Remaining == nil && o.Amount != nil && o.Filled != nil {
		o.Remaining = sub(o.Amount, o.Filled)
	}
	if o.Average == nil && o.Filled != nil && o.Cost != nil {
		o.Average = div(o.Cost, o.Filled)
	}
	if o.Cost == nil && o.Filled != nil {
		if o.Average != nil {
			o.Cost = mul(o.Average, o.Filled)
		} else if o.Type != models.OrderTypeMarket {
			o.Cost = mul(o.Price, o.Filled)
		}
		if o.Average == nil && o.Cost != nil {
			o.Average = div(o.Cost, o.Filled)
		}
	}
	return o
}

// fromTrades fills filled, cost, average, fee and lastTradeTimestamp from
// the order's fills when the vendor did not report them.
func (n *Normalizer) fromTrades(o *models.Order) {
	filled := decimal.Zero
	cost := decimal.Zero
	weighted := decimal.Zero
	feeCost := decimal.Zero
	feeCurrency := ""
	sameFeeCurrency := true
	haveAmounts := true
	var last *int64
	for i := range o.Trades {
		t := &o.Trades[i]
		if t.Symbol == "" {
			t.Symbol = o.Symbol
		}
		if t.Order == "" {
			t.Order = o.ID
		}
		if t.Amount == nil || t.Price == nil {
			haveAmounts = false
			continue
		}
		filled = filled.Add(*t.Amount)
		weighted = weighted.Add(t.Price.Mul(*t.Amount))
		if t.Cost != nil {
			cost = cost.Add(*t.Cost)
		} else {
			cost = cost.Add(t.Price.Mul(*t.Amount))
		}
		if t.Fee != nil && t.Fee.Cost != nil {
			if feeCurrency == "" {
				feeCurrency = t.Fee.Currency
			} else if feeCurrency != t.Fee.Currency {
				sameFeeCurrency = false
			}
			feeCost = feeCost.Add(*t.Fee.Cost)
		}
		if t.Timestamp != nil && (last == nil || *t.Timestamp > *last) {
			last = t.Timestamp
		}
	}
	if !haveAmounts {
		return
	}
	if o.Filled == nil {
		o.Filled = ptr(filled)
	}
	if o.Cost == nil {
		o.Cost = ptr(cost)
	}
	if o.Average == nil && !filled.IsZero() {
		o.Average = ptr(weighted.DivRound(filled, 18))
	}
	if o.Fee == nil && feeCurrency != "" && sameFeeCurrency {
		o.Fee = &models.Fee{Cost: ptr(feeCost), Currency: feeCurrency}
	}
	if o.LastTradeTimestamp == nil {
		o.LastTradeTimestamp = last
	}
}

// BalanceEntry is the raw free/used/total triple of one currency.
type BalanceEntry struct {
	Free  string
	Used  string
	Total string
}

// Balance builds a unified balance. Whichever of free, used and total is
// missing is derived from the other two.
func (n *Normalizer) Balance(entries map[string]BalanceEntry, timestamp *int64, info any) models.Balance {
	out := models.Balance{
		Exchange:   n.Exchange,
		Timestamp:  timestamp,
		Currencies: make(map[string]models.Account, len(entries)),
		Info:       info,
	}
	for code, e := range entries {
		acc := models.Account{
			Free:  decimalOrNil(e.Free),
			Used:  decimalOrNil(e.Used),
			Total: decimalOrNil(e.Total),
		}
		switch {
		case acc.Total == nil:
			acc.Total = add(acc.Free, acc.Used)
		case acc.Free == nil:
			acc.Free = sub(acc.Total, acc.Used)
		case acc.Used == nil:
			acc.Used = sub(acc.Total, acc.Free)
		}
		out.Currencies[code] = acc
	}
	return out
}

func decimalOrNil(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, ok := safe.ToDecimalValue(s)
	if !ok {
		return nil
	}
	return &d
}

// OrderBook builds a unified order book from vendor levels. Levels are
// arrays indexed by priceKey/amountKey ("0", "1") or objects with named
// keys. Malformed levels are skipped; equal prices are kept as sent.
func (n *Normalizer) OrderBook(symbol string, bids, asks []any, priceKey, amountKey string, timestamp, nonce *int64, info any) models.OrderBook {
	ob := models.OrderBook{
		Exchange:  n.Exchange,
		Symbol:    symbol,
		Timestamp: timestamp,
		Nonce:     nonce,
		Bids:      parseLevels(bids, priceKey, amountKey),
		Asks:      parseLevels(asks, priceKey, amountKey),
		Info:      info,
	}
	SortBook(&ob)
	return ob
}

// SortBook orders bids descending and asks ascending by price.
func SortBook(ob *models.OrderBook) {
	sort.SliceStable(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price.GreaterThan(ob.Bids[j].Price) })
	sort.SliceStable(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price.LessThan(ob.Asks[j].Price) })
}

func parseLevels(levels []any, priceKey, amountKey string) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, 0, len(levels))
	for _, level := range levels {
		price, ok := safe.ToDecimalValue(safe.Value(level, priceKey))
		if !ok {
			continue
		}
		amount, ok := safe.ToDecimalValue(safe.Value(level, amountKey))
		if !ok {
			continue
		}
		out = append(out, models.OrderBookLevel{Price: price, Amount: amount})
	}
	return out
}

// Transaction builds a unified deposit or withdrawal.
func (n *Normalizer) Transaction(b Bag, info any) models.Transaction {
	code := b.String("currency")
	if code == "" {
		code = n.Currency(b.String("currencyId"))
	}
	tx := models.Transaction{
		Exchange:    n.Exchange,
		ID:          b.String("id"),
		TxID:        b.String("txid"),
		Type:        models.TransactionType(b.String("type")),
		Currency:    code,
		Amount:      b.Decimal("amount"),
		Network:     b.String("network"),
		Address:     b.String("address"),
		AddressFrom: b.String("addressFrom"),
		AddressTo:   b.String("addressTo"),
		Tag:         b.String("tag"),
		Status:      models.TxUnknown,
		Timestamp:   b.Int("timestamp"),
		Updated:     b.Int("updated"),
		Info:        info,
	}
	switch s := models.TransactionStatus(b.String("status")); s {
	case models.TxPending, models.TxOK, models.TxFailed, models.TxCanceled:
		tx.Status = s
	}
	if tx.AddressTo == "" && tx.Type == models.Withdrawal {
		tx.AddressTo = tx.Address
	}
	if cost := b.Decimal("feeCost"); cost != nil {
		currency := b.String("feeCurrency")
		if currency == "" {
			currency = code
		}
		tx.Fee = &models.Fee{Cost: cost, Currency: currency}
	}
	return tx
}

// Market builds a unified market. base, quote and settle codes are mapped
// from their vendor ids when not given, and the symbol is always derived
// from them.
func (n *Normalizer) Market(b Bag, precision models.MarketPrecision, info any) models.Market {
	base := b.String("base")
	if base == "" {
		base = n.Currency(b.String("baseId"))
	}
	quote := b.String("quote")
	if quote == "" {
		quote = n.Currency(b.String("quoteId"))
	}
	settle := b.String("settle")
	if settle == "" {
		settle = n.Currency(b.String("settleId"))
	}
	m := models.Market{
		ID:        b.String("id"),
		Symbol:    symbols.Unified(base, quote, settle),
		Base:      base,
		Quote:     quote,
		Settle:    settle,
		BaseID:    b.String("baseId"),
		QuoteID:   b.String("quoteId"),
		SettleID:  b.String("settleId"),
		Type:      models.MarketSpot,
		Active:    true,
		Maker:     b.Decimal("maker"),
		Taker:     b.Decimal("taker"),
		Precision: precision,
		Limits: models.Limits{
			Amount:   models.MinMax{Min: b.Decimal("amountMin"), Max: b.Decimal("amountMax")},
			Price:    models.MinMax{Min: b.Decimal("priceMin"), Max: b.Decimal("priceMax")},
			Cost:     models.MinMax{Min: b.Decimal("costMin"), Max: b.Decimal("costMax")},
			Leverage: models.MinMax{Min: b.Decimal("leverageMin"), Max: b.Decimal("leverageMax")},
		},
		Info: info,
	}
	if t := b.String("type"); t != "" {
		m.Type = models.MarketType(t)
	}
	if active, ok := b.Bool("active"); ok {
		m.Active = active
	}
	return m
}
