// Package upbit implements the Upbit REST API. Private calls carry an
// HS256 JWT bearer token instead of a signed query.
package upbit

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchangeflow/exchange"
	"exchangeflow/internal/classifier"
	"exchangeflow/internal/normalizer"
	"exchangeflow/internal/safe"
	"exchangeflow/internal/symbols"
	"exchangeflow/models"
)

const (
	ID         = "upbit"
	defaultURL = "https://api.upbit.com/v1"

	// maxMarketsLength bounds the comma-joined markets query of the bulk
	// ticker and order book endpoints.
	maxMarketsLength   = 4096
	defaultTradesCount = 200
)

var errorTable = classifier.Table{
	Exact: map[string]models.ErrorKind{
		"This key has expired.": models.KindAuthenticationError,
		"Missing request parameter error. Check the required parameters!": models.KindBadRequest,
		"side is missing, side does not have a valid value":               models.KindInvalidOrder,
	},
	Broad: []classifier.Marker{
		{Substring: "thirdparty_agreement_required", Kind: models.KindPermissionDenied},
		{Substring: "out_of_scope", Kind: models.KindPermissionDenied},
		{Substring: "order_not_found", Kind: models.KindOrderNotFound},
		{Substring: "insufficient_funds", Kind: models.KindInsufficientFunds},
		{Substring: "invalid_access_key", Kind: models.KindAuthenticationError},
		{Substring: "jwt_verification", Kind: models.KindAuthenticationError},
		{Substring: "create_ask_error", Kind: models.KindExchangeError},
		{Substring: "create_bid_error", Kind: models.KindExchangeError},
		{Substring: "volume_too_large", Kind: models.KindInvalidOrder},
		{Substring: "invalid_funds", Kind: models.KindInvalidOrder},
	},
}

// Upbit is the Upbit adapter. Market ids put the quote first, as in
// "KRW-BTC".
type Upbit struct {
	*exchange.Base
}

var _ exchange.Exchange = (*Upbit)(nil)

// New builds an Upbit adapter from opts.
func New(opts exchange.Options) (*Upbit, error) {
	b, err := exchange.NewBase(ID, defaultURL, opts)
	if err != nil {
		return nil, err
	}
	u := &Upbit{Base: b}
	b.Signer = exchange.SignerFunc(u.sign)
	b.Errors = errorTable
	b.Extract = extractError
	b.Loader = u.FetchMarkets
	b.Normalizer.Delimiter = "-"
	b.Normalizer.QuoteFirst = true
	return u, nil
}

// claims is the payload of the private-call token. The query hash binds
// the token to the parameters it was issued for.
type claims struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash,omitempty"`
	QueryHashAlg string `json:"query_hash_alg,omitempty"`
	jwt.RegisteredClaims
}

// sign puts parameters in the query for everything but POST, which sends
// them as JSON. The query hash always covers the url-encoded parameters,
// whichever way they travel.
func (u *Upbit) sign(ctx context.Context, call exchange.Call) (exchange.Request, error) {
	path, params := exchange.ImplodePath(call.Path, call.Params)
	req := exchange.Request{Method: call.Method, URL: u.BaseURL + path, Headers: http.Header{}}
	query := ""
	if len(params) > 0 {
		query = exchange.Encode(params)
	}
	if call.Method != http.MethodPost && query != "" {
		req.URL += "?" + query
	}
	if call.Access != exchange.Private {
		return req, nil
	}

	c := claims{AccessKey: u.Config.APIKey, Nonce: uuid.NewString()}
	if query != "" {
		c.QueryHash = exchange.SHA512Hex(query)
		c.QueryHashAlg = "SHA512"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(u.Config.Secret))
	if err != nil {
		return req, err
	}
	req.Headers.Set("Authorization", "Bearer "+token)
	if call.Method != http.MethodGet && call.Method != http.MethodDelete {
		body, err := exchange.JSONBody(params)
		if err != nil {
			return req, err
		}
		req.Body = body
		req.Headers.Set("Content-Type", "application/json")
	}
	return req, nil
}

// extractError reads {"error": {"name": "...", "message": "..."}}. The
// name is used as the code.
func extractError(status int, body any) (string, string, bool) {
	e := safe.Map(body, "error")
	if e == nil {
		return "", "", false
	}
	return safe.String(e, "name"), safe.String(e, "message"), true
}

func (u *Upbit) get(ctx context.Context, access exchange.Access, path string, params exchange.Params) (any, error) {
	return u.Request(ctx, exchange.Call{Access: access, Method: http.MethodGet, Path: path, Params: params.Values(), Weight: 1})
}

func (u *Upbit) call(ctx context.Context, method, path string, params exchange.Params) (any, error) {
	return u.Request(ctx, exchange.Call{Access: exchange.Private, Method: method, Path: path, Params: params.Values(), Weight: 1})
}

// FetchMarkets lists every market.
func (u *Upbit) FetchMarkets(ctx context.Context) ([]models.Market, error) {
	data, err := u.get(ctx, exchange.Public, "/market/all", nil)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make([]models.Market, 0, len(list))
	for _, raw := range list {
		if m := u.parseMarket(raw); m.Symbol != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// FetchCurrencies derives the currencies from the markets.
func (u *Upbit) FetchCurrencies(ctx context.Context) (map[string]models.Currency, error) {
	markets, err := u.LoadMarkets(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Currency)
	for _, m := range markets {
		for code, id := range map[string]string{m.Base: m.BaseID, m.Quote: m.QuoteID} {
			if _, ok := out[code]; ok {
				continue
			}
			out[code] = models.Currency{Code: code, ID: id, Active: true, Deposit: true, Withdraw: true}
		}
	}
	u.SetCurrencies(out)
	return out, nil
}

// marketIDs joins the ids of symbols, or of every market when symbols is
// empty, for the markets query parameter.
func (u *Upbit) marketIDs(ctx context.Context, op string, list []string) (string, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return "", err
	}
	ids := make([]string, 0, len(list))
	if len(list) == 0 {
		for _, s := range u.Symbols() {
			m, err := u.Market(ctx, s)
			if err != nil {
				return "", err
			}
			ids = append(ids, m.ID)
		}
		joined := strings.Join(ids, ",")
		if len(joined) > maxMarketsLength {
			return "", models.NewError(models.KindExchangeError, ID,
				"%s has %d symbols (%d characters) exceeding max URL length (%d characters), pass a list of symbols",
				op, len(ids), len(joined), maxMarketsLength)
		}
		return joined, nil
	}
	for _, s := range list {
		m, err := u.Market(ctx, s)
		if err != nil {
			return "", err
		}
		ids = append(ids, m.ID)
	}
	return strings.Join(ids, ","), nil
}

// FetchTicker returns the ticker of symbol through the bulk endpoint.
func (u *Upbit) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	tickers, err := u.FetchTickers(ctx, []string{symbol})
	if err != nil {
		return models.Ticker{}, err
	}
	t, ok := tickers[symbol]
	if !ok {
		return models.Ticker{}, models.NewError(models.KindBadSymbol, ID, "no ticker for %s", symbol)
	}
	return t, nil
}

// FetchTickers returns the tickers of symbols, or of every market.
func (u *Upbit) FetchTickers(ctx context.Context, list []string) (map[string]models.Ticker, error) {
	ids, err := u.marketIDs(ctx, "fetchTickers", list)
	if err != nil {
		return nil, err
	}
	data, err := u.get(ctx, exchange.Public, "/ticker", exchange.NewParams().Set("markets", ids))
	if err != nil {
		return nil, err
	}
	items, _ := data.([]any)
	return exchange.CollectTickers(items, list, func(raw any) models.Ticker {
		return u.Normalizer.Ticker(tickerMapping.Apply(raw), nil, raw)
	}), nil
}

// FetchOrderBook returns the book of symbol through the bulk endpoint. The
// vendor serves a fixed depth, so limit is not sent.
func (u *Upbit) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	books, err := u.FetchOrderBooks(ctx, []string{symbol}, limit)
	if err != nil {
		return models.OrderBook{}, err
	}
	ob, ok := books[symbol]
	if !ok {
		return models.OrderBook{}, models.NewError(models.KindBadSymbol, ID, "no order book for %s", symbol)
	}
	return ob, nil
}

// FetchOrderBooks returns the books of several markets in one request,
// keyed by symbol.
func (u *Upbit) FetchOrderBooks(ctx context.Context, list []string, limit int) (map[string]models.OrderBook, error) {
	ids, err := u.marketIDs(ctx, "fetchOrderBooks", list)
	if err != nil {
		return nil, err
	}
	data, err := u.get(ctx, exchange.Public, "/orderbook", exchange.NewParams().Set("markets", ids))
	if err != nil {
		return nil, err
	}
	items, _ := data.([]any)
	out := make(map[string]models.OrderBook, len(items))
	for _, raw := range items {
		symbol := u.symbolOf(safe.String(raw, "market"))
		if symbol == "" {
			continue
		}
		var ts *int64
		if t, ok := safe.Integer(raw, "timestamp"); ok {
			ts = &t
		}
		// each unit carries one bid level and one ask level
		units := safe.List(raw, "orderbook_units")
		ob := u.Normalizer.OrderBook(symbol, units, nil, "bid_price", "bid_size", ts, nil, raw)
		ob.Asks = u.Normalizer.OrderBook(symbol, nil, units, "ask_price", "ask_size", nil, nil, nil).Asks
		out[symbol] = ob
	}
	return out, nil
}

func (u *Upbit) symbolOf(id string) string {
	if m, ok := u.MarketByID(id); ok {
		return m.Symbol
	}
	return symbols.FromID(ID, id, "-", true)
}

// FetchTrades returns recent trades of symbol, 200 unless limit says
// otherwise.
func (u *Upbit) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	m, err := u.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	count := limit
	if count <= 0 {
		count = defaultTradesCount
	}
	params := exchange.NewParams().Set("market", m.ID).SetInt("count", int64(count))
	data, err := u.get(ctx, exchange.Public, "/trades/ticks", params)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make([]models.Trade, 0, len(list))
	for _, raw := range list {
		out = append(out, u.parseTrade(raw, m))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchBalance returns the account balances.
func (u *Upbit) FetchBalance(ctx context.Context) (models.Balance, error) {
	data, err := u.get(ctx, exchange.Private, "/accounts", nil)
	if err != nil {
		return models.Balance{}, err
	}
	list, _ := data.([]any)
	entries := make(map[string]normalizer.BalanceEntry, len(list))
	for _, raw := range list {
		code := u.Normalizer.Currency(safe.String(raw, "currency"))
		if code == "" {
			continue
		}
		entries[code] = normalizer.BalanceEntry{
			Free: safe.Number(raw, "balance"),
			Used: safe.Number(raw, "locked"),
		}
	}
	return u.Normalizer.Balance(entries, nil, data), nil
}

// CreateOrder places a limit or market order. A market buy spends
// amount * price of the quote currency and needs the price for that.
func (u *Upbit) CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error) {
	if typ == models.OrderTypeMarket && side == models.SideBuy {
		if price == nil {
			return models.Order{}, models.NewError(models.KindInvalidOrder, ID,
				"createOrder requires the price argument for market buy orders to calculate the total cost to spend (amount * price)")
		}
		return u.CreateMarketBuyOrderWithCost(ctx, symbol, amount.Mul(*price))
	}
	m, err := u.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	params, err := orderParams(m, side)
	if err != nil {
		return models.Order{}, err
	}
	switch typ {
	case models.OrderTypeLimit:
		if price == nil {
			return models.Order{}, exchange.ArgumentsRequired(ID, "createOrder", "price")
		}
		px, err := u.PriceToPrecision(m, *price)
		if err != nil {
			return models.Order{}, err
		}
		params.Set("price", px)
	case models.OrderTypeMarket:
	default:
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder type %q is not supported", typ)
	}
	volume, err := u.AmountToPrecision(m, amount)
	if err != nil {
		return models.Order{}, err
	}
	params.Set("ord_type", string(typ)).Set("volume", volume)
	return u.placeOrder(ctx, params, m)
}

// CreateMarketBuyOrderWithCost buys symbol at market for cost units of the
// quote currency.
func (u *Upbit) CreateMarketBuyOrderWithCost(ctx context.Context, symbol string, cost decimal.Decimal) (models.Order, error) {
	m, err := u.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	params, err := orderParams(m, models.SideBuy)
	if err != nil {
		return models.Order{}, err
	}
	funds, err := u.CostToPrecision(m, cost)
	if err != nil {
		return models.Order{}, err
	}
	params.Set("ord_type", "price").Set("price", funds)
	return u.placeOrder(ctx, params, m)
}

func orderParams(m *models.Market, side models.Side) (exchange.Params, error) {
	var s string
	switch side {
	case models.SideBuy:
		s = "bid"
	case models.SideSell:
		s = "ask"
	default:
		return nil, models.NewError(models.KindInvalidOrder, ID, "createOrder allows buy or sell side only, got %q", side)
	}
	return exchange.NewParams().Set("market", m.ID).Set("side", s), nil
}

func (u *Upbit) placeOrder(ctx context.Context, params exchange.Params, m *models.Market) (models.Order, error) {
	data, err := u.call(ctx, http.MethodPost, "/orders", params)
	if err != nil {
		return models.Order{}, err
	}
	order := u.parseOrder(data, m)
	u.RememberOrder(order)
	return order, nil
}

// CancelOrder cancels order id; symbol is not needed.
func (u *Upbit) CancelOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return models.Order{}, err
	}
	data, err := u.call(ctx, http.MethodDelete, "/order", exchange.NewParams().Set("uuid", id))
	if err != nil {
		return models.Order{}, err
	}
	order := u.parseOrder(data, nil)
	u.Backfill(&order)
	return order, nil
}

// FetchOrder returns order id with its fills.
func (u *Upbit) FetchOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return models.Order{}, err
	}
	data, err := u.get(ctx, exchange.Private, "/order", exchange.NewParams().Set("uuid", id))
	if err != nil {
		return models.Order{}, err
	}
	return u.parseOrder(data, nil), nil
}

func (u *Upbit) fetchOrdersByState(ctx context.Context, state, symbol string, since *int64, limit int) ([]models.Order, error) {
	params := exchange.NewParams().Set("state", state).SetInt("limit", int64(limit))
	var m *models.Market
	if symbol != "" {
		var err error
		if m, err = u.Market(ctx, symbol); err != nil {
			return nil, err
		}
		params.Set("market", m.ID)
	} else if _, err := u.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	data, err := u.get(ctx, exchange.Private, "/orders", params)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make([]models.Order, 0, len(list))
	for _, raw := range list {
		out = append(out, u.parseOrder(raw, m))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchOrders merges open, done and canceled orders; the vendor has no
// single listing across states.
func (u *Upbit) FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	var all []models.Order
	for _, state := range []string{"wait", "done", "cancel"} {
		orders, err := u.fetchOrdersByState(ctx, state, symbol, since, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)
	}
	return normalizer.FilterBySinceLimit(all, since, limit), nil
}

// FetchOpenOrders returns the waiting orders.
func (u *Upbit) FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return u.fetchOrdersByState(ctx, "wait", symbol, since, limit)
}

// FetchClosedOrders returns the fully executed orders.
func (u *Upbit) FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return u.fetchOrdersByState(ctx, "done", symbol, since, limit)
}

// FetchCanceledOrders returns the canceled orders.
func (u *Upbit) FetchCanceledOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return u.fetchOrdersByState(ctx, "cancel", symbol, since, limit)
}

func (u *Upbit) transactions(ctx context.Context, path string, typ models.TransactionType, code string, since *int64, limit int) ([]models.Transaction, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	params := exchange.NewParams().SetInt("limit", int64(limit))
	if code != "" {
		params.Set("currency", u.CurrencyID(code))
	}
	data, err := u.get(ctx, exchange.Private, path, params)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make([]models.Transaction, 0, len(list))
	for _, raw := range list {
		out = append(out, u.parseTransaction(raw, typ))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchDeposits returns deposit history, 100 entries by default.
func (u *Upbit) FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return u.transactions(ctx, "/deposits", models.Deposit, code, since, limit)
}

// FetchWithdrawals returns withdrawal history, 100 entries by default.
func (u *Upbit) FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return u.transactions(ctx, "/withdraws", models.Withdrawal, code, since, limit)
}

// FetchDepositAddress returns the deposit address of code. A currency
// whose address was never generated has none.
func (u *Upbit) FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return models.DepositAddress{}, err
	}
	data, err := u.get(ctx, exchange.Private, "/deposits/coin_address", exchange.NewParams().Set("currency", u.CurrencyID(code)))
	if err != nil {
		return models.DepositAddress{}, err
	}
	addr := safe.String(data, "deposit_address")
	if err := checkAddress(addr); err != nil {
		return models.DepositAddress{}, err
	}
	if id := safe.String(data, "currency"); id != "" {
		code = u.Normalizer.Currency(id)
	}
	return models.DepositAddress{
		Currency: code,
		Address:  addr,
		Tag:      safe.String(data, "secondary_address"),
		Info:     data,
	}, nil
}

func checkAddress(addr string) error {
	if len(addr) < 1 || strings.ContainsAny(addr, " \t\n") {
		return models.NewError(models.KindInvalidAddress, ID, "address is invalid or has not been generated yet: %q", addr)
	}
	return nil
}

// Withdraw sends amount of code to address. Coins need the network from
// the exchange config; KRW goes to the registered bank account and takes
// no address.
func (u *Upbit) Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error) {
	if _, err := u.LoadMarkets(ctx, false); err != nil {
		return models.Transaction{}, err
	}
	params := exchange.NewParams().Set("amount", amount.String())
	path := "/withdraws/krw"
	if code != "KRW" {
		if err := checkAddress(address); err != nil {
			return models.Transaction{}, err
		}
		network := strings.ToUpper(u.Config.DefaultNetwork)
		if network == "" {
			return models.Transaction{}, exchange.ArgumentsRequired(ID, "withdraw", "network")
		}
		params.Set("net_type", network).
			Set("currency", u.CurrencyID(code)).
			Set("address", address).
			Set("secondary_address", tag)
		path = "/withdraws/coin"
	}
	data, err := u.call(ctx, http.MethodPost, path, params)
	if err != nil {
		return models.Transaction{}, err
	}
	bag := transactionMapping.Apply(data)
	bag.Default("type", string(models.Withdrawal)).
		Default("currency", code).
		Default("amount", amount).
		Default("address", address).
		Default("tag", tag).
		Default("status", string(models.TxPending))
	return u.Normalizer.Transaction(bag, data), nil
}
