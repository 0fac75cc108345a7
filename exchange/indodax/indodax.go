// Package indodax implements the Indodax public API and trade API (tapi).
package indodax

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"exchangeflow/exchange"
	"exchangeflow/internal/classifier"
	"exchangeflow/internal/normalizer"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

const (
	ID         = "indodax"
	defaultURL = "https://indodax.com"

	privatePath       = "/tapi"
	defaultRecvWindow = 5000
)

var errorTable = classifier.Table{
	Exact: map[string]models.ErrorKind{
		"invalid_pair":          models.KindBadSymbol,
		"Insufficient balance.": models.KindInsufficientFunds,
		"invalid order.":        models.KindOrderNotFound,
		"Invalid credentials. API not found or session has expired.": models.KindAuthenticationError,
		"Invalid credentials. Bad sign.":                              models.KindAuthenticationError,
	},
	Broad: []classifier.Marker{
		{Substring: "Minimum price", Kind: models.KindInvalidOrder},
		{Substring: "Minimum order", Kind: models.KindInvalidOrder},
	},
}

// Indodax is the Indodax adapter. Private methods are POSTed to the trade
// API with the method name in the form body.
type Indodax struct {
	*exchange.Base
	recvWindow int64
}

var _ exchange.Exchange = (*Indodax)(nil)

// New builds an Indodax adapter from opts.
func New(opts exchange.Options) (*Indodax, error) {
	b, err := exchange.NewBase(ID, defaultURL, opts)
	if err != nil {
		return nil, err
	}
	x := &Indodax{Base: b, recvWindow: defaultRecvWindow}
	if opts.Exchange.RecvWindow > 0 {
		x.recvWindow = opts.Exchange.RecvWindow
	}
	b.Signer = exchange.SignerFunc(x.sign)
	b.Errors = errorTable
	b.Extract = extractError
	b.Loader = x.FetchMarkets
	b.Normalizer.Delimiter = "_"
	return x, nil
}

// sign builds public GETs under the site root. Private calls name the
// method in a form body together with a nonce and recvWindow; the body is
// signed with HMAC-SHA512.
func (x *Indodax) sign(ctx context.Context, call exchange.Call) (exchange.Request, error) {
	if call.Access == exchange.Public {
		path, params := exchange.ImplodePath(call.Path, call.Params)
		req := exchange.Request{Method: call.Method, URL: x.BaseURL + "/" + path, Headers: http.Header{}}
		if len(params) > 0 {
			req.URL += "?" + exchange.Encode(params)
		}
		return req, nil
	}

	params := exchange.NewParams()
	for k, v := range call.Params {
		for _, s := range v {
			params.Add(k, s)
		}
	}
	params.Set("method", call.Path).
		SetInt("timestamp", x.Nonce()).
		SetInt("recvWindow", x.recvWindow)
	body := exchange.Encode(params.Values())

	req := exchange.Request{
		Method:  http.MethodPost,
		URL:     x.BaseURL + privatePath,
		Headers: http.Header{},
		Body:    []byte(body),
	}
	req.Headers.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Headers.Set("Key", x.Config.APIKey)
	req.Headers.Set("Sign", exchange.HMACSHA512Hex(x.Config.Secret, body))
	return req, nil
}

// extractError reads {"success": 0, "error": "...", "error_code": "..."}.
// Public endpoints carry neither field and some return bare arrays. A
// success flag with no payload at all is a malformed response; withdrawCoin
// answers with its fields next to the flag instead of under "return".
func extractError(status int, body any) (string, string, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return "", "", false
	}
	msg := safe.String(obj, "error")
	_, hasSuccess := obj["success"]
	if !hasSuccess && msg == "" {
		return "", "", false
	}
	if flag, _ := safe.Integer(obj, "success"); flag == 1 {
		if _, ok := obj["return"]; !ok && len(obj) == 1 {
			return "", "malformed response", true
		}
		return "", "", false
	}
	return safe.String(obj, "error_code"), msg, true
}

func (x *Indodax) public(ctx context.Context, path string, params exchange.Params) (any, error) {
	return x.Request(ctx, exchange.Call{Access: exchange.Public, Method: http.MethodGet, Path: path, Params: params.Values(), Weight: 1})
}

// private calls a trade API method and returns its "return" object.
func (x *Indodax) private(ctx context.Context, method string, params exchange.Params) (any, error) {
	resp, err := x.Request(ctx, exchange.Call{Access: exchange.Private, Method: http.MethodPost, Path: method, Params: params.Values(), Weight: 1})
	if err != nil {
		return nil, err
	}
	return safe.Value(resp, "return"), nil
}

// pair is the public path form of a market id: "btc_idr" becomes "btcidr".
func pair(m *models.Market) string {
	return strings.ReplaceAll(m.ID, "_", "")
}

// FetchTime returns the server clock in milliseconds.
func (x *Indodax) FetchTime(ctx context.Context) (int64, error) {
	resp, err := x.public(ctx, "api/server_time", nil)
	if err != nil {
		return 0, err
	}
	ts, _ := safe.Integer(resp, "server_time")
	return ts, nil
}

// FetchMarkets lists the pairs.
func (x *Indodax) FetchMarkets(ctx context.Context) ([]models.Market, error) {
	resp, err := x.public(ctx, "api/pairs", nil)
	if err != nil {
		return nil, err
	}
	list, _ := resp.([]any)
	out := make([]models.Market, 0, len(list))
	for _, raw := range list {
		if m := x.parseMarket(raw); m.Symbol != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// FetchCurrencies derives the currency list from the pairs, since the
// public API has no currency endpoint. A currency is active when any of
// its markets is.
func (x *Indodax) FetchCurrencies(ctx context.Context) (map[string]models.Currency, error) {
	markets, err := x.LoadMarkets(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Currency)
	add := func(code, id string, m models.Market) {
		c, ok := out[code]
		if !ok {
			c = models.Currency{Code: code, ID: id, Deposit: true, Withdraw: true}
		}
		c.Active = c.Active || m.Active
		if id == m.BaseID && !c.Precision.IsSet() {
			c.Precision = m.Precision.Amount
		}
		out[code] = c
	}
	for _, m := range markets {
		add(m.Base, m.BaseID, m)
		add(m.Quote, m.QuoteID, m)
	}
	x.SetCurrencies(out)
	return out, nil
}

// FetchTicker returns the 24h ticker of symbol.
func (x *Indodax) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	resp, err := x.public(ctx, "api/ticker/{pair}", exchange.NewParams().Set("pair", pair(m)))
	if err != nil {
		return models.Ticker{}, err
	}
	return x.parseTicker(safe.Value(resp, "ticker"), m), nil
}

// FetchTickers returns every ticker of ticker_all, keyed by pair id, and
// keeps symbols when given.
func (x *Indodax) FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	if _, err := x.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	resp, err := x.public(ctx, "api/ticker_all", nil)
	if err != nil {
		return nil, err
	}
	tickers := safe.Map(resp, "tickers")
	ids := make([]any, 0, len(tickers))
	for id := range tickers {
		ids = append(ids, id)
	}
	return exchange.CollectTickers(ids, symbols, func(id any) models.Ticker {
		m, ok := x.MarketByID(id.(string))
		if !ok {
			return models.Ticker{}
		}
		return x.parseTicker(tickers[m.ID], m)
	}), nil
}

// FetchOrderBook returns the full depth; the vendor takes no limit.
func (x *Indodax) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	resp, err := x.public(ctx, "api/depth/{pair}", exchange.NewParams().Set("pair", pair(m)))
	if err != nil {
		return models.OrderBook{}, err
	}
	return x.Normalizer.OrderBook(m.Symbol, safe.List(resp, "buy"), safe.List(resp, "sell"), "0", "1", nil, nil, resp), nil
}

// FetchTrades returns the latest public trades of symbol.
func (x *Indodax) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	resp, err := x.public(ctx, "api/trades/{pair}", exchange.NewParams().Set("pair", pair(m)))
	if err != nil {
		return nil, err
	}
	list, _ := resp.([]any)
	out := make([]models.Trade, 0, len(list))
	for _, raw := range list {
		out = append(out, x.Normalizer.Trade(tradeMapping.Apply(raw), m, raw))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchBalance reads balance and balance_hold of getInfo as free and used.
func (x *Indodax) FetchBalance(ctx context.Context) (models.Balance, error) {
	if _, err := x.LoadMarkets(ctx, false); err != nil {
		return models.Balance{}, err
	}
	data, err := x.private(ctx, "getInfo", nil)
	if err != nil {
		return models.Balance{}, err
	}
	free := safe.Map(data, "balance")
	used := safe.Map(data, "balance_hold")
	entries := make(map[string]normalizer.BalanceEntry, len(free))
	for id := range free {
		entries[x.Normalizer.Currency(id)] = normalizer.BalanceEntry{
			Free: safe.Number(free, id),
			Used: safe.Number(used, id),
		}
	}
	var ts *int64
	if t, ok := safe.Integer(data, "server_time"); ok {
		t *= 1000
		ts = &t
	}
	return x.Normalizer.Balance(entries, ts, data), nil
}

// FetchDepositAddress reads the deposit address of code from getInfo.
func (x *Indodax) FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error) {
	if _, err := x.LoadMarkets(ctx, false); err != nil {
		return models.DepositAddress{}, err
	}
	data, err := x.private(ctx, "getInfo", nil)
	if err != nil {
		return models.DepositAddress{}, err
	}
	id := x.CurrencyID(code)
	address := safe.String(safe.Value(data, "address"), id)
	if address == "" {
		return models.DepositAddress{}, models.NewError(models.KindInvalidAddress, ID, "no deposit address for %s", code)
	}
	return models.DepositAddress{
		Currency: code,
		Address:  address,
		Network:  x.network(safe.String(safe.Value(data, "network"), id)),
		Info:     data,
	}, nil
}

// network picks the configured default out of a comma separated network
// list, or the first one.
func (x *Indodax) network(list string) string {
	if list == "" {
		return ""
	}
	names := strings.Split(list, ",")
	want := strings.ToUpper(x.Config.DefaultNetwork)
	for _, n := range names {
		if strings.ToUpper(strings.TrimSpace(n)) == want {
			return want
		}
	}
	return strings.ToUpper(strings.TrimSpace(names[0]))
}

// CreateOrder places a limit order. A buy spends amount * price of the
// quote currency, a sell offers amount of the base currency.
func (x *Indodax) CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error) {
	if typ != models.OrderTypeLimit {
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder allows limit orders only")
	}
	if price == nil {
		return models.Order{}, exchange.ArgumentsRequired(ID, "createOrder", "price")
	}
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	px, err := x.PriceToPrecision(m, *price)
	if err != nil {
		return models.Order{}, err
	}
	qty, err := x.AmountToPrecision(m, amount)
	if err != nil {
		return models.Order{}, err
	}
	params := exchange.NewParams().
		Set("pair", m.ID).
		Set("type", string(side)).
		Set("price", px)
	switch side {
	case models.SideBuy:
		cost, err := x.CostToPrecision(m, amount.Mul(*price))
		if err != nil {
			return models.Order{}, err
		}
		params.Set(m.QuoteID, cost).Set(m.BaseID, qty)
	case models.SideSell:
		params.Set(m.BaseID, qty)
	default:
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder side must be buy or sell, got %q", side)
	}

	data, err := x.private(ctx, "trade", params)
	if err != nil {
		return models.Order{}, err
	}
	bag := normalizer.Bag{}.
		Set("id", safe.String(data, "order_id")).
		Set("symbol", m.Symbol).
		Set("type", string(models.OrderTypeLimit)).
		Set("side", string(side)).
		Set("price", px).
		Set("amount", qty).
		Set("status", string(models.StatusOpen)).
		Set("timestamp", x.Milliseconds())
	order := x.Normalizer.Order(bag, m, data)
	x.RememberOrder(order)
	return order, nil
}

// CancelOrder cancels order id on symbol. The trade API wants the order
// side, which is taken from the order cache or fetched.
func (x *Indodax) CancelOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if symbol == "" {
		return models.Order{}, exchange.ArgumentsRequired(ID, "cancelOrder", "symbol")
	}
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	known := models.Order{ID: id}
	x.Backfill(&known)
	if known.Side == models.SideUnknown {
		fetched, err := x.FetchOrder(ctx, id, symbol)
		if err != nil {
			return models.Order{}, err
		}
		known.Side = fetched.Side
	}
	if known.Side == models.SideUnknown {
		return models.Order{}, exchange.ArgumentsRequired(ID, "cancelOrder", "side")
	}
	params := exchange.NewParams().Set("order_id", id).Set("pair", m.ID).Set("type", string(known.Side))
	data, err := x.private(ctx, "cancelOrder", params)
	if err != nil {
		return models.Order{}, err
	}
	bag := normalizer.Bag{}.
		Set("id", id).
		Set("symbol", m.Symbol).
		Set("side", string(known.Side)).
		Set("type", string(models.OrderTypeLimit)).
		Set("status", string(models.StatusCanceled))
	order := x.Normalizer.Order(bag, m, data)
	x.Backfill(&order)
	return order, nil
}

// FetchOrder returns order id on symbol.
func (x *Indodax) FetchOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if symbol == "" {
		return models.Order{}, exchange.ArgumentsRequired(ID, "fetchOrder", "symbol")
	}
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	data, err := x.private(ctx, "getOrder", exchange.NewParams().Set("pair", m.ID).Set("order_id", id))
	if err != nil {
		return models.Order{}, err
	}
	raw := safe.Value(data, "order")
	order := x.parseOrder(raw, m)
	if order.ID == "" {
		order.ID = id
	}
	x.Backfill(&order)
	return order, nil
}

// FetchOpenOrders returns open orders. Without a symbol the vendor groups
// them by pair.
func (x *Indodax) FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	params := exchange.NewParams()
	var m *models.Market
	if symbol != "" {
		var err error
		if m, err = x.Market(ctx, symbol); err != nil {
			return nil, err
		}
		params.Set("pair", m.ID)
	} else if _, err := x.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	data, err := x.private(ctx, "openOrders", params)
	if err != nil {
		return nil, err
	}
	var out []models.Order
	switch orders := safe.Value(data, "orders").(type) {
	case []any:
		out = x.parseOrders(orders, m)
	case map[string]any:
		ids := make([]string, 0, len(orders))
		for id := range orders {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			market, _ := x.MarketByID(id)
			list, _ := orders[id].([]any)
			out = append(out, x.parseOrders(list, market)...)
		}
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchOrders returns the order history of symbol.
func (x *Indodax) FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	if symbol == "" {
		return nil, exchange.ArgumentsRequired(ID, "fetchOrders", "symbol")
	}
	m, err := x.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	data, err := x.private(ctx, "orderHistory", exchange.NewParams().Set("pair", m.ID))
	if err != nil {
		return nil, err
	}
	return normalizer.FilterBySinceLimit(x.parseOrders(safe.List(data, "orders"), m), since, limit), nil
}

// FetchClosedOrders keeps the filled orders of the order history.
func (x *Indodax) FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	orders, err := x.FetchOrders(ctx, symbol, since, 0)
	if err != nil {
		return nil, err
	}
	return exchange.ClosedOrders(orders, since, limit), nil
}

// FetchDepositsWithdrawals returns the funding history of transHistory,
// optionally for one currency. since is sent as a start date.
func (x *Indodax) FetchDepositsWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	if _, err := x.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	params := exchange.NewParams()
	if since != nil {
		params.Set("start", exchange.DateOf(*since)).Set("end", exchange.DateOf(x.Milliseconds()))
	}
	data, err := x.private(ctx, "transHistory", params)
	if err != nil {
		return nil, err
	}
	var out []models.Transaction
	for _, group := range []struct {
		key string
		typ models.TransactionType
	}{
		{"withdraw", models.Withdrawal},
		{"deposit", models.Deposit},
	} {
		byCurrency := safe.Map(data, group.key)
		for id, list := range byCurrency {
			items, _ := list.([]any)
			for _, raw := range items {
				out = append(out, x.parseTransaction(raw, id, group.typ))
			}
		}
	}
	out = normalizer.FilterByCurrency(out, code)
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

func filterType(txs []models.Transaction, typ models.TransactionType) []models.Transaction {
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}

// FetchDeposits keeps the deposits of FetchDepositsWithdrawals.
func (x *Indodax) FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	txs, err := x.FetchDepositsWithdrawals(ctx, code, since, 0)
	if err != nil {
		return nil, err
	}
	return normalizer.FilterBySinceLimit(filterType(txs, models.Deposit), since, limit), nil
}

// FetchWithdrawals keeps the withdrawals of FetchDepositsWithdrawals.
func (x *Indodax) FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	txs, err := x.FetchDepositsWithdrawals(ctx, code, since, 0)
	if err != nil {
		return nil, err
	}
	return normalizer.FilterBySinceLimit(filterType(txs, models.Withdrawal), since, limit), nil
}

// Withdraw sends amount of code to address. request_id makes the request
// idempotent on the vendor side.
func (x *Indodax) Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error) {
	if address == "" {
		return models.Transaction{}, exchange.ArgumentsRequired(ID, "withdraw", "address")
	}
	if _, err := x.LoadMarkets(ctx, false); err != nil {
		return models.Transaction{}, err
	}
	id := x.CurrencyID(code)
	params := exchange.NewParams().
		Set("currency", id).
		Set("withdraw_amount", amount.String()).
		Set("withdraw_address", address).
		Set("withdraw_memo", tag).
		Set("request_id", strconv.FormatInt(x.Milliseconds(), 10))
	resp, err := x.Request(ctx, exchange.Call{Access: exchange.Private, Method: http.MethodPost, Path: "withdrawCoin", Params: params.Values(), Weight: 1})
	if err != nil {
		return models.Transaction{}, err
	}
	raw := safe.Value(resp, "return")
	if raw == nil {
		raw = resp
	}
	tx := x.parseTransaction(raw, id, models.Withdrawal)
	if tx.Amount == nil {
		tx.Amount = &amount
	}
	if tx.Address == "" {
		tx.Address, tx.AddressTo = address, address
	}
	tx.Tag = tag
	if tx.Status == models.TxUnknown {
		tx.Status = models.TxPending
	}
	return tx, nil
}
