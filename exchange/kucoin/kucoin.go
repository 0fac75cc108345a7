// Package kucoin implements the KuCoin spot REST API.
package kucoin

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchangeflow/exchange"
	"exchangeflow/internal/classifier"
	"exchangeflow/internal/normalizer"
	"exchangeflow/internal/safe"
	"exchangeflow/models"
)

const (
	ID         = "kucoin"
	defaultURL = "https://api.kucoin.com"

	successCode   = "200000"
	apiKeyVersion = "2"
)

var errorTable = classifier.Table{
	Exact: map[string]models.ErrorKind{
		"order not exist":                                          models.KindOrderNotFound,
		"order not exist.":                                         models.KindOrderNotFound,
		"order_not_exist":                                          models.KindOrderNotFound,
		"order_not_exist_or_not_allow_to_cancel":                   models.KindInvalidOrder,
		"Order size below the minimum requirement.":                models.KindInvalidOrder,
		"The withdrawal amount is below the minimum requirement.":  models.KindExchangeError,
		"Unsuccessful! Exceeded the max. funds out-transfer limit": models.KindInsufficientFunds,

		"400": models.KindBadRequest,
		"401": models.KindAuthenticationError,
		"403": models.KindNotSupported,
		"404": models.KindNotSupported,
		"405": models.KindNotSupported,
		"429": models.KindRateLimitExceeded,
		"500": models.KindExchangeNotAvailable,
		"503": models.KindExchangeNotAvailable,

		"101030": models.KindPermissionDenied,
		"103000": models.KindInvalidOrder,
		"200004": models.KindInsufficientFunds,
		"210014": models.KindInvalidOrder,
		"210021": models.KindInsufficientFunds,
		"230003": models.KindInsufficientFunds,
		"260000": models.KindInvalidAddress,
		"260100": models.KindInsufficientFunds,
		"260220": models.KindInvalidAddress,
		"300000": models.KindInvalidOrder,

		"400000": models.KindBadSymbol,
		"400001": models.KindAuthenticationError,
		"400002": models.KindInvalidNonce,
		"400003": models.KindAuthenticationError,
		"400004": models.KindAuthenticationError,
		"400005": models.KindAuthenticationError,
		"400006": models.KindAuthenticationError,
		"400007": models.KindAuthenticationError,
		"400008": models.KindNotSupported,
		"400100": models.KindBadRequest,
		"400200": models.KindInvalidOrder,
		"400350": models.KindInvalidOrder,
		"400370": models.KindInvalidOrder,
		"400500": models.KindInvalidOrder,
		"400600": models.KindBadSymbol,
		"400760": models.KindInvalidOrder,
		"401000": models.KindBadRequest,
		"411100": models.KindAccountSuspended,
		"415000": models.KindBadRequest,
		"500000": models.KindExchangeNotAvailable,
		"900014": models.KindBadRequest,
	},
	Broad: []classifier.Marker{
		{Substring: "Exceeded the access frequency", Kind: models.KindRateLimitExceeded},
		{Substring: "require more permission", Kind: models.KindPermissionDenied},
	},
}

// Kucoin is the KuCoin adapter. Private calls need the API passphrase in
// addition to key and secret.
type Kucoin struct {
	*exchange.Base
	timeInForce string
}

var _ exchange.Exchange = (*Kucoin)(nil)

// New builds a KuCoin adapter from opts.
func New(opts exchange.Options) (*Kucoin, error) {
	b, err := exchange.NewBase(ID, defaultURL, opts)
	if err != nil {
		return nil, err
	}
	k := &Kucoin{Base: b, timeInForce: strings.ToUpper(opts.Exchange.TimeInForce)}
	b.Signer = exchange.SignerFunc(k.sign)
	b.Errors = errorTable
	b.Extract = extractError
	b.Loader = k.FetchMarkets
	b.Normalizer.Delimiter = "-"
	return k, nil
}

// sign sends GET and DELETE parameters in the query and everything else
// as a JSON body. Private calls carry the v2 key headers; the signature is
// HMAC-SHA256 base64 over timestamp, method, path with query, and body.
func (k *Kucoin) sign(ctx context.Context, call exchange.Call) (exchange.Request, error) {
	path, params := exchange.ImplodePath(call.Path, call.Params)
	req := exchange.Request{Method: call.Method, Headers: http.Header{}}

	endpoint := path
	var body []byte
	if call.Method == http.MethodGet || call.Method == http.MethodDelete {
		if len(params) > 0 {
			endpoint += "?" + exchange.Encode(params)
		}
	} else {
		var err error
		if body, err = exchange.JSONBody(params); err != nil {
			return req, err
		}
		if body == nil {
			body = []byte("{}")
		}
		req.Headers.Set("Content-Type", "application/json")
	}
	req.URL = k.BaseURL + endpoint
	req.Body = body

	if call.Access == exchange.Private {
		if k.Config.Password == "" {
			return req, models.NewError(models.KindAuthenticationError, ID, "password is required for private endpoints")
		}
		ts := strconv.FormatInt(k.Nonce(), 10)
		payload := ts + call.Method + endpoint + string(body)
		req.Headers.Set("KC-API-KEY-VERSION", apiKeyVersion)
		req.Headers.Set("KC-API-KEY", k.Config.APIKey)
		req.Headers.Set("KC-API-TIMESTAMP", ts)
		req.Headers.Set("KC-API-PASSPHRASE", exchange.HMACSHA256Base64(k.Config.Secret, k.Config.Password))
		req.Headers.Set("KC-API-SIGN", exchange.HMACSHA256Base64(k.Config.Secret, payload))
	}
	return req, nil
}

// extractError reads {"code": "400100", "msg": "..."}; any code other
// than 200000 is a failure.
func extractError(status int, body any) (string, string, bool) {
	code := safe.String(body, "code")
	msg := safe.String(body, "msg")
	return code, msg, code != "" && code != successCode
}

func (k *Kucoin) call(ctx context.Context, access exchange.Access, method, path string, params exchange.Params, weight int) (any, error) {
	resp, err := k.Request(ctx, exchange.Call{Access: access, Method: method, Path: path, Params: params.Values(), Weight: weight})
	if err != nil {
		return nil, err
	}
	return safe.Value(resp, "data"), nil
}

func (k *Kucoin) get(ctx context.Context, access exchange.Access, path string, params exchange.Params) (any, error) {
	return k.call(ctx, access, http.MethodGet, path, params, 1)
}

// FetchTime returns the server clock in milliseconds.
func (k *Kucoin) FetchTime(ctx context.Context) (int64, error) {
	data, err := k.get(ctx, exchange.Public, "/api/v1/timestamp", nil)
	if err != nil {
		return 0, err
	}
	ts, _ := safe.ToInt(data)
	return ts, nil
}

// FetchMarkets lists the spot symbols.
func (k *Kucoin) FetchMarkets(ctx context.Context) ([]models.Market, error) {
	data, err := k.get(ctx, exchange.Public, "/api/v2/symbols", nil)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make([]models.Market, 0, len(list))
	for _, raw := range list {
		if m := k.parseMarket(raw); m.Symbol != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// FetchCurrencies lists currencies with their chains.
func (k *Kucoin) FetchCurrencies(ctx context.Context) (map[string]models.Currency, error) {
	data, err := k.get(ctx, exchange.Public, "/api/v3/currencies", nil)
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	out := make(map[string]models.Currency, len(list))
	for _, raw := range list {
		if c := k.parseCurrency(raw); c.Code != "" {
			out[c.Code] = c
		}
	}
	k.SetCurrencies(out)
	return out, nil
}

// FetchTicker returns the 24h statistics of symbol.
func (k *Kucoin) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	m, err := k.Market(ctx, symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	data, err := k.get(ctx, exchange.Public, "/api/v1/market/stats", exchange.NewParams().Set("symbol", m.ID))
	if err != nil {
		return models.Ticker{}, err
	}
	return k.Normalizer.Ticker(tickerMapping.Apply(data), m, data), nil
}

// FetchTickers loads all tickers in one request.
func (k *Kucoin) FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	if _, err := k.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	data, err := k.get(ctx, exchange.Public, "/api/v1/market/allTickers", nil)
	if err != nil {
		return nil, err
	}
	ts, hasTime := safe.Integer(data, "time")
	return exchange.CollectTickers(safe.List(data, "ticker"), symbols, func(raw any) models.Ticker {
		bag := tickerMapping.Apply(raw)
		if hasTime {
			bag.Default("timestamp", ts)
		}
		return k.Normalizer.Ticker(bag, nil, raw)
	}), nil
}

// FetchOrderBook returns the aggregated book. The vendor serves depths of
// 20 and 100; limit picks the smallest one that covers it.
func (k *Kucoin) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	m, err := k.Market(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	level := "100"
	if limit > 0 && limit <= 20 {
		level = "20"
	}
	params := exchange.NewParams().Set("symbol", m.ID).Set("level", level)
	data, err := k.get(ctx, exchange.Public, "/api/v1/market/orderbook/level2_{level}", params)
	if err != nil {
		return models.OrderBook{}, err
	}
	var ts, nonce *int64
	if t, ok := safe.Integer(data, "time"); ok {
		ts = &t
	}
	if n, ok := safe.Integer(data, "sequence"); ok {
		nonce = &n
	}
	return k.Normalizer.OrderBook(m.Symbol, safe.List(data, "bids"), safe.List(data, "asks"), "0", "1", ts, nonce, data), nil
}

// FetchTrades returns the latest public trades of symbol.
func (k *Kucoin) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	m, err := k.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	data, err := k.get(ctx, exchange.Public, "/api/v1/market/histories", exchange.NewParams().Set("symbol", m.ID))
	if err != nil {
		return nil, err
	}
	list, _ := data.([]any)
	return k.parseTrades(list, m, since, limit), nil
}

// FetchMyTrades returns the account's fills, optionally for one symbol.
func (k *Kucoin) FetchMyTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	params, m, err := k.symbolParams(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params.SetSince("startAt", since).SetInt("pageSize", int64(limit))
	data, err := k.get(ctx, exchange.Private, "/api/v1/fills", params)
	if err != nil {
		return nil, err
	}
	return k.parseTrades(safe.List(data, "items"), m, since, limit), nil
}

// symbolParams loads the markets and, when symbol is set, resolves it
// into the symbol parameter.
func (k *Kucoin) symbolParams(ctx context.Context, symbol string) (exchange.Params, *models.Market, error) {
	params := exchange.NewParams()
	if symbol == "" {
		_, err := k.LoadMarkets(ctx, false)
		return params, nil, err
	}
	m, err := k.Market(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	return params.Set("symbol", m.ID), m, nil
}

// FetchBalance returns the trade account balances.
func (k *Kucoin) FetchBalance(ctx context.Context) (models.Balance, error) {
	data, err := k.get(ctx, exchange.Private, "/api/v1/accounts", exchange.NewParams().Set("type", "trade"))
	if err != nil {
		return models.Balance{}, err
	}
	entries := make(map[string]normalizer.BalanceEntry)
	list, _ := data.([]any)
	for _, raw := range list {
		if t := safe.String(raw, "type"); t != "" && t != "trade" {
			continue
		}
		code := k.Normalizer.Currency(safe.String(raw, "currency"))
		if code == "" {
			continue
		}
		entries[code] = normalizer.BalanceEntry{
			Free:  safe.Number(raw, "available"),
			Used:  safe.Number(raw, "holds"),
			Total: safe.Number(raw, "balance"),
		}
	}
	return k.Normalizer.Balance(entries, nil, data), nil
}

// CreateOrder places a limit or market order. A market buy with a price
// spends amount * price of the quote currency.
func (k *Kucoin) CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error) {
	m, err := k.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	if side != models.SideBuy && side != models.SideSell {
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder side must be buy or sell, got %q", side)
	}
	clientID := uuid.NewString()
	params := exchange.NewParams().
		Set("clientOid", clientID).
		Set("side", string(side)).
		Set("symbol", m.ID).
		Set("type", string(typ))

	bag := normalizer.Bag{}.
		Set("clientOrderId", clientID).
		Set("symbol", m.Symbol).
		Set("type", string(typ)).
		Set("side", string(side)).
		Set("status", string(models.StatusOpen)).
		Set("timestamp", k.Milliseconds())

	switch typ {
	case models.OrderTypeLimit:
		if price == nil {
			return models.Order{}, exchange.ArgumentsRequired(ID, "createOrder", "price")
		}
		size, err := k.AmountToPrecision(m, amount)
		if err != nil {
			return models.Order{}, err
		}
		px, err := k.PriceToPrecision(m, *price)
		if err != nil {
			return models.Order{}, err
		}
		params.Set("size", size).Set("price", px).Set("timeInForce", k.timeInForce)
		bag.Set("amount", size).Set("price", px).Set("timeInForce", k.timeInForce)
	case models.OrderTypeMarket:
		if side == models.SideBuy && price != nil {
			funds, err := k.CostToPrecision(m, amount.Mul(*price))
			if err != nil {
				return models.Order{}, err
			}
			params.Set("funds", funds)
			bag.Set("cost", funds)
		} else {
			size, err := k.AmountToPrecision(m, amount)
			if err != nil {
				return models.Order{}, err
			}
			params.Set("size", size)
			bag.Set("amount", size)
		}
	default:
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder type %q is not supported", typ)
	}

	data, err := k.call(ctx, exchange.Private, http.MethodPost, "/api/v1/orders", params, 2)
	if err != nil {
		return models.Order{}, err
	}
	bag.Set("id", safe.String(data, "orderId"))
	order := k.Normalizer.Order(bag, m, data)
	k.RememberOrder(order)
	return order, nil
}

// CancelOrder cancels order id. The response only echoes the id, so the
// rest of the order comes from the cached copy when there is one.
func (k *Kucoin) CancelOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	params := exchange.NewParams().Set("orderId", id)
	data, err := k.call(ctx, exchange.Private, http.MethodDelete, "/api/v1/orders/{orderId}", params, 3)
	if err != nil {
		return models.Order{}, err
	}
	bag := normalizer.Bag{}.
		Set("id", id).
		Set("symbol", symbol).
		Set("status", string(models.StatusCanceled))
	order := k.Normalizer.Order(bag, nil, data)
	k.Backfill(&order)
	return order, nil
}

// FetchOrder returns order id.
func (k *Kucoin) FetchOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if _, err := k.LoadMarkets(ctx, false); err != nil {
		return models.Order{}, err
	}
	data, err := k.get(ctx, exchange.Private, "/api/v1/orders/{orderId}", exchange.NewParams().Set("orderId", id))
	if err != nil {
		return models.Order{}, err
	}
	order := k.parseOrder(data, nil)
	k.Backfill(&order)
	return order, nil
}

func (k *Kucoin) fetchOrdersByStatus(ctx context.Context, status, symbol string, since *int64, limit int) ([]models.Order, error) {
	params, m, err := k.symbolParams(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params.Set("status", status).
		Set("tradeType", "TRADE").
		SetSince("startAt", since).
		SetInt("pageSize", int64(limit))
	data, err := k.get(ctx, exchange.Private, "/api/v1/orders", params)
	if err != nil {
		return nil, err
	}
	items := safe.List(data, "items")
	out := make([]models.Order, 0, len(items))
	for _, raw := range items {
		out = append(out, k.parseOrder(raw, m))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchOrders returns recent orders of any status.
func (k *Kucoin) FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return k.fetchOrdersByStatus(ctx, "", symbol, since, limit)
}

// FetchOpenOrders returns the active orders.
func (k *Kucoin) FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return k.fetchOrdersByStatus(ctx, "active", symbol, since, limit)
}

// FetchClosedOrders returns the done orders that were not canceled.
func (k *Kucoin) FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	orders, err := k.fetchOrdersByStatus(ctx, "done", symbol, since, 0)
	if err != nil {
		return nil, err
	}
	return exchange.ClosedOrders(orders, since, limit), nil
}

func (k *Kucoin) transactions(ctx context.Context, path string, typ models.TransactionType, code string, since *int64, limit int) ([]models.Transaction, error) {
	if _, err := k.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	params := exchange.NewParams().SetSince("startAt", since).SetInt("pageSize", int64(limit))
	if code != "" {
		params.Set("currency", k.CurrencyID(code))
	}
	data, err := k.get(ctx, exchange.Private, path, params)
	if err != nil {
		return nil, err
	}
	items := safe.List(data, "items")
	out := make([]models.Transaction, 0, len(items))
	for _, raw := range items {
		out = append(out, k.parseTransaction(raw, typ))
	}
	return normalizer.FilterBySinceLimit(out, since, limit), nil
}

// FetchDeposits returns deposit history.
func (k *Kucoin) FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return k.transactions(ctx, "/api/v1/deposits", models.Deposit, code, since, limit)
}

// FetchWithdrawals returns withdrawal history.
func (k *Kucoin) FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return k.transactions(ctx, "/api/v1/withdrawals", models.Withdrawal, code, since, limit)
}

// FetchDepositAddress returns the deposit address of code on the default
// chain.
func (k *Kucoin) FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error) {
	if _, err := k.LoadMarkets(ctx, false); err != nil {
		return models.DepositAddress{}, err
	}
	params := exchange.NewParams().Set("currency", k.CurrencyID(code)).Set("chain", strings.ToLower(k.Config.DefaultNetwork))
	data, err := k.get(ctx, exchange.Private, "/api/v1/deposit-addresses", params)
	if err != nil {
		return models.DepositAddress{}, err
	}
	return models.DepositAddress{
		Currency: code,
		Address:  safe.String(data, "address"),
		Tag:      safe.String(data, "memo"),
		Network:  strings.ToUpper(safe.String(data, "chain")),
		Info:     data,
	}, nil
}

// Withdraw sends amount of code to address.
func (k *Kucoin) Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error) {
	if address == "" {
		return models.Transaction{}, exchange.ArgumentsRequired(ID, "withdraw", "address")
	}
	if _, err := k.LoadMarkets(ctx, false); err != nil {
		return models.Transaction{}, err
	}
	params := exchange.NewParams().
		Set("currency", k.CurrencyID(code)).
		Set("address", address).
		Set("amount", amount.String()).
		Set("memo", tag).
		Set("chain", strings.ToLower(k.Config.DefaultNetwork))
	data, err := k.call(ctx, exchange.Private, http.MethodPost, "/api/v1/withdrawals", params, 1)
	if err != nil {
		return models.Transaction{}, err
	}
	bag := normalizer.Bag{}.
		Set("id", safe.String(data, "withdrawalId")).
		Set("type", string(models.Withdrawal)).
		Set("currency", code).
		Set("amount", amount).
		Set("address", address).
		Set("tag", tag).
		Set("network", k.Config.DefaultNetwork).
		Set("status", string(models.TxPending))
	return k.Normalizer.Transaction(bag, data), nil
}
