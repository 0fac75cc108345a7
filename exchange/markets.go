package exchange

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"exchangeflow/internal/normalizer"
	"exchangeflow/internal/precise"
	"exchangeflow/models"
)

// LoadMarkets fills the market cache on first use, or again when reload is
// set, and returns the markets keyed by unified symbol. Concurrent callers
// wait for a single load.
func (b *Base) LoadMarkets(ctx context.Context, reload bool) (map[string]models.Market, error) {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()

	if b.markets == nil || reload {
		if b.Loader == nil {
			return nil, b.notSupported("fetchMarkets")
		}
		list, err := b.Loader(ctx)
		if err != nil {
			return nil, err
		}
		b.setMarketsLocked(list)
	}

	out := make(map[string]models.Market, len(b.markets))
	for symbol, m := range b.markets {
		out[symbol] = *m
	}
	return out, nil
}

// SetMarkets replaces the market cache.
func (b *Base) SetMarkets(list []models.Market) {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()
	b.setMarketsLocked(list)
}

func (b *Base) setMarketsLocked(list []models.Market) {
	b.markets = make(map[string]*models.Market, len(list))
	b.marketsByID = make(map[string]*models.Market, len(list))
	for i := range list {
		m := list[i]
		if m.Symbol == "" || m.ID == "" {
			continue
		}
		b.markets[m.Symbol] = &m
		b.marketsByID[m.ID] = &m
	}
}

// MarketByID looks a market up by vendor id without loading.
func (b *Base) MarketByID(id string) (*models.Market, bool) {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()
	m, ok := b.marketsByID[id]
	return m, ok
}

// Market loads the cache if needed and returns the market of symbol. An
// unknown symbol is a BadSymbol error.
func (b *Base) Market(ctx context.Context, symbol string) (*models.Market, error) {
	if _, err := b.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	b.marketsMu.Lock()
	m, ok := b.markets[symbol]
	b.marketsMu.Unlock()
	if !ok {
		return nil, models.NewError(models.KindBadSymbol, b.Exchange, "%s does not have market symbol %s", b.Exchange, symbol)
	}
	return m, nil
}

// Symbols returns the cached symbols in sorted order.
func (b *Base) Symbols() []string {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()
	out := make([]string, 0, len(b.markets))
	for s := range b.markets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SetCurrencies replaces the currency cache.
func (b *Base) SetCurrencies(c map[string]models.Currency) {
	b.marketsMu.Lock()
	b.currencies = c
	b.marketsMu.Unlock()
}

// CurrencyID returns the vendor id of a unified code, falling back to the
// code itself.
func (b *Base) CurrencyID(code string) string {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()
	if c, ok := b.currencies[code]; ok && c.ID != "" {
		return c.ID
	}
	for _, m := range b.markets {
		if m.Base == code && m.BaseID != "" {
			return m.BaseID
		}
		if m.Quote == code && m.QuoteID != "" {
			return m.QuoteID
		}
	}
	return code
}

// AmountToPrecision truncates amount to the market's amount precision.
func (b *Base) AmountToPrecision(m *models.Market, amount decimal.Decimal) (string, error) {
	return b.toPrecision(m.Precision.Amount, amount, precise.Truncate)
}

// PriceToPrecision rounds price to the market's price precision.
func (b *Base) PriceToPrecision(m *models.Market, price decimal.Decimal) (string, error) {
	return b.toPrecision(m.Precision.Price, price, precise.Round)
}

// CostToPrecision truncates a quote amount to the market's price precision.
func (b *Base) CostToPrecision(m *models.Market, cost decimal.Decimal) (string, error) {
	return b.toPrecision(m.Precision.Price, cost, precise.Truncate)
}

func (b *Base) toPrecision(p precise.Precision, v decimal.Decimal, rounding precise.Rounding) (string, error) {
	if !p.IsSet() {
		return v.String(), nil
	}
	s, err := precise.ToPrecision(v.String(), p, rounding, precise.NoPadding)
	if err != nil {
		return "", models.NewError(models.KindInvalidOrder, b.Exchange, "%s cannot be formatted: %v", v.String(), err)
	}
	return s, nil
}

// RememberOrder caches the first seen copy of an order so later responses
// that omit price or amount can be completed.
func (b *Base) RememberOrder(o models.Order) {
	if o.ID == "" {
		return
	}
	b.ordersMu.Lock()
	defer b.ordersMu.Unlock()
	if _, ok := b.orders[o.ID]; !ok {
		o.Info = nil
		o.Trades = nil
		b.orders[o.ID] = o
	}
}

// Backfill completes o from the cached copy and re-derives remaining.
func (b *Base) Backfill(o *models.Order) {
	b.ordersMu.Lock()
	cached, ok := b.orders[o.ID]
	b.ordersMu.Unlock()
	if !ok {
		return
	}
	if o.Symbol == "" {
		o.Symbol = cached.Symbol
	}
	if o.Price == nil {
		o.Price = cached.Price
	}
	if o.Amount == nil {
		o.Amount = cached.Amount
	}
	if o.Side == models.SideUnknown {
		o.Side = cached.Side
	}
	if o.Type == models.OrderTypeUnknown {
		o.Type = cached.Type
	}
	if o.Timestamp == nil {
		o.Timestamp = cached.Timestamp
	}
	if o.Remaining == nil && o.Amount != nil && o.Filled != nil {
		r := o.Amount.Sub(*o.Filled)
		o.Remaining = &r
	}
}

// OpenOrders keeps the open orders of list, then applies since and limit.
func OpenOrders(list []models.Order, since *int64, limit int) []models.Order {
	return normalizer.FilterBySinceLimit(normalizer.FilterOrdersByStatus(list, models.StatusOpen), since, limit)
}

// ClosedOrders keeps the closed orders of list, then applies since and limit.
func ClosedOrders(list []models.Order, since *int64, limit int) []models.Order {
	return normalizer.FilterBySinceLimit(normalizer.FilterOrdersByStatus(list, models.StatusClosed), since, limit)
}

// CollectTickers parses a bulk ticker response keyed by symbol. When
// symbols is non-empty only those are kept; tickers whose symbol cannot be
// resolved are dropped.
func CollectTickers(list []any, symbols []string, parse func(raw any) models.Ticker) map[string]models.Ticker {
	var want map[string]bool
	if len(symbols) > 0 {
		want = make(map[string]bool, len(symbols))
		for _, s := range symbols {
			want[s] = true
		}
	}
	out := make(map[string]models.Ticker, len(list))
	for _, raw := range list {
		t := parse(raw)
		if t.Symbol == "" || (want != nil && !want[t.Symbol]) {
			continue
		}
		out[t.Symbol] = t
	}
	return out
}
