// Package commex implements the CommEX spot REST API.
package commex

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
	ID         = "commex"
	defaultURL = "https://api.commex.com/api"

	defaultRecvWindow = 5000
	// trade and funding history windows accepted by the history endpoints
	tradeWindow   = int64(60 * 60 * 1000)
	historyWindow = int64(90 * 24 * 60 * 60 * 1000)
)

var errorTable = classifier.Table{
	Exact: map[string]models.ErrorKind{
		"-1021": models.KindInvalidNonce,
		"-1121": models.KindBadSymbol,
		"-2013": models.KindOrderNotFound,
		"-2014": models.KindAuthenticationError,
		"-2015": models.KindAuthenticationError,
	},
	Broad: []classifier.Marker{
		{Substring: "insufficient balance", Kind: models.KindInsufficientFunds},
		{Substring: "Unknown order sent", Kind: models.KindOrderNotFound},
	},
}

// Commex is the CommEX adapter.
type Commex struct {
	*exchange.Base
	recvWindow  int64
	timeInForce string
}

var _ exchange.Exchange = (*Commex)(nil)

// New builds a CommEX adapter from opts.
func New(opts exchange.Options) (*Commex, error) {
	b, err := exchange.NewBase(ID, defaultURL, opts)
	if err != nil {
		return nil, err
	}
	c := &Commex{Base: b, recvWindow: defaultRecvWindow, timeInForce: "GTC"}
	if opts.Exchange.RecvWindow > 0 {
		c.recvWindow = opts.Exchange.RecvWindow
	}
	if tif := strings.ToUpper(opts.Exchange.TimeInForce); tif != "" {
		c.timeInForce = tif
	}
	b.Signer = exchange.SignerFunc(c.sign)
	b.Errors = errorTable
	b.Extract = extractError
	b.Loader = c.FetchMarkets
	return c, nil
}

// sign puts public parameters in the query string. Private calls carry a
// timestamp and recvWindow and are signed with HMAC-SHA256 over the encoded
// parameters; POST sends them as a form body.
func (c *Commex) sign(ctx context.Context, call exchange.Call) (exchange.Request, error) {
	path, params := exchange.ImplodePath(call.Path, call.Params)
	req := exchange.Request{Method: call.Method, URL: c.BaseURL + path, Headers: http.Header{}}

	if call.Access == exchange.Public {
		if len(params) > 0 {
			req.URL += "?" + exchange.Encode(params)
		}
		return req, nil
	}

	params.Set("timestamp", strconv.FormatInt(c.Nonce(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	query := exchange.Encode(params)
	query += "&signature=" + exchange.HMACSHA256Hex(c.Config.Secret, query)

	req.Headers.Set("X-MBX-APIKEY", c.Config.APIKey)
	if call.Method == http.MethodGet || call.Method == http.MethodDelete {
		req.URL += "?" + query
	} else {
		req.Headers.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Body = []byte(query)
	}
	return req, nil
}

// extractError reads {"code": -1130, "msg": "..."}. Negative codes are
// failures even when the HTTP status is 200.
func extractError(status int, body any) (string, string, bool) {
	code := safe.String(body, "code")
	msg := safe.String(body, "msg")
	return code, msg, strings.HasPrefix(code, "-")
}

func (c *Commex) get(ctx context.Context, access exchange.Access, path string, params exchange.Params, weight int) (any, error) {
	return c.Request(ctx, exchange.Call{Access: access, Method: http.MethodGet, Path: path, Params: params.Values(), Weight: weight})
}

// FetchTime returns the server clock in milliseconds.
func (c *Commex) FetchTime(ctx context.Context) (int64, error) {
	resp, err := c.get(ctx, exchange.Public, "/v1/time", nil, 1)
	if err != nil {
		return 0, err
	}
	ts, _ := safe.Integer(resp, "serverTime")
	return ts, nil
}

// FetchMarkets lists the spot symbols of /v1/exchangeInfo.
func (c *Commex) FetchMarkets(ctx context.Context) ([]models.Market, error) {
	resp, err := c.get(ctx, exchange.Public, "/v1/exchangeInfo", nil, 10)
	if err != nil {
		return nil, err
	}
	raw := safe.List(resp, "symbols")
	out := make([]models.Market, 0, len(raw))
	for _, m := range raw {
		market := c.parseMarket(m)
		if market.Symbol == "" {
			continue
		}
		out = append(out, market)
	}
	return out, nil
}

// FetchCurrencies lists the assets of the asset catalog.
func (c *Commex) FetchCurrencies(ctx context.Context) (map[string]models.Currency, error) {
	resp, err := c.Request(ctx, exchange.Call{Access: exchange.Public, Method: http.MethodPost, Path: "/v1/inner/getAllAsset"})
	if err != nil {
		return nil, err
	}
	list, ok := resp.([]any)
	if !ok {
		list = safe.List(resp, "data")
	}
	out := make(map[string]models.Currency, len(list))
	for _, raw := range list {
		cur := c.parseCurrency(raw)
		if cur.Code == "" {
			continue
		}
		out[cur.Code] = cur
	}
	c.SetCurrencies(out)
	return out, nil
}

// FetchTicker returns the 24h statistics of symbol.
func (c *Commex) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	resp, err := c.get(ctx, exchange.Public, "/v1/ticker/24hr", exchange.NewParams().Set("symbol", m.ID), 1)
	if err != nil {
		return models.Ticker{}, err
	}
	return c.Normalizer.Ticker(tickerMapping.Apply(resp), m, resp), nil
}

// FetchTickers loads every ticker in one request and keeps symbols, or all
// of them when symbols is empty.
func (c *Commex) FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, exchange.Public, "/v1/ticker/24hr", nil, 40)
	if err != nil {
		return nil, err
	}
	list, _ := resp.([]any)
	return exchange.CollectTickers(list, symbols, func(raw any) models.Ticker {
		return c.Normalizer.Ticker(tickerMapping.Apply(raw), nil, raw)
	}), nil
}

// FetchOrderBook returns up to limit levels per side.
func (c *Commex) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).SetInt("limit", int64(limit))
	resp, err := c.get(ctx, exchange.Public, "/v1/depth", params, 5)
	if err != nil {
		return models.OrderBook{}, err
	}
	var nonce *int64
	if n, ok := safe.Integer(resp, "lastUpdateId"); ok {
		nonce = &n
	}
	var ts *int64
	if t, ok := safe.Integer(resp, "T", "E"); ok {
		ts = &t
	}
	return c.Normalizer.OrderBook(m.Symbol, safe.List(resp, "bids"), safe.List(resp, "asks"), "0", "1", ts, nonce, resp), nil
}

// FetchTrades returns recent aggregated trades. With since, the vendor
// window is one hour starting at since.
func (c *Commex) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).SetInt("limit", int64(limit))
	if since != nil {
		params.SetSince("startTime", since)
		end := *since + tradeWindow
		params.SetSince("endTime", &end)
	}
	resp, err := c.get(ctx, exchange.Public, "/v1/aggTrades", params, 1)
	if err != nil {
		return nil, err
	}
	return c.parseTrades(resp, m, since, limit), nil
}

// FetchMyTrades returns the account's fills on symbol.
func (c *Commex) FetchMyTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	if symbol == "" {
		return nil, exchange.ArgumentsRequired(ID, "fetchMyTrades", "symbol")
	}
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).SetSince("startTime", since).SetInt("limit", int64(limit))
	resp, err := c.get(ctx, exchange.Private, "/v1/userTrades", params, 10)
	if err != nil {
		return nil, err
	}
	return c.parseTrades(resp, m, since, limit), nil
}

// FetchBalance returns free and locked amounts per asset.
func (c *Commex) FetchBalance(ctx context.Context) (models.Balance, error) {
	resp, err := c.get(ctx, exchange.Private, "/v1/account", nil, 10)
	if err != nil {
		return models.Balance{}, err
	}
	entries := make(map[string]normalizer.BalanceEntry)
	for _, raw := range safe.List(resp, "balances", "userAssets") {
		code := c.Normalizer.Currency(safe.String(raw, "asset"))
		if code == "" {
			continue
		}
		entries[code] = normalizer.BalanceEntry{
			Free: safe.Number(raw, "free"),
			Used: safe.Number(raw, "locked"),
		}
	}
	var ts *int64
	if t, ok := safe.Integer(resp, "updateTime"); ok {
		ts = &t
	}
	return c.Normalizer.Balance(entries, ts, resp), nil
}

// CreateOrder places a limit or market order. A market buy with a price
// is sent as a quote quantity of amount * price.
func (c *Commex) CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error) {
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	if side != models.SideBuy && side != models.SideSell {
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder side must be buy or sell, got %q", side)
	}

	params := exchange.NewParams().
		Set("symbol", m.ID).
		Set("side", strings.ToUpper(string(side))).
		Set("type", strings.ToUpper(string(typ))).
		Set("newOrderRespType", "RESULT").
		Set("newClientOrderId", uuid.NewString())

	switch typ {
	case models.OrderTypeLimit:
		if price == nil {
			return models.Order{}, exchange.ArgumentsRequired(ID, "createOrder", "price")
		}
		qty, err := c.AmountToPrecision(m, amount)
		if err != nil {
			return models.Order{}, err
		}
		px, err := c.PriceToPrecision(m, *price)
		if err != nil {
			return models.Order{}, err
		}
		params.Set("quantity", qty).Set("price", px).Set("timeInForce", c.timeInForce)
	case models.OrderTypeMarket:
		if side == models.SideBuy && price != nil {
			cost, err := c.CostToPrecision(m, amount.Mul(*price))
			if err != nil {
				return models.Order{}, err
			}
			params.Set("quoteOrderQty", cost)
		} else {
			qty, err := c.AmountToPrecision(m, amount)
			if err != nil {
				return models.Order{}, err
			}
			params.Set("quantity", qty)
		}
	default:
		return models.Order{}, models.NewError(models.KindInvalidOrder, ID, "createOrder type %q is not supported", typ)
	}

	resp, err := c.Request(ctx, exchange.Call{Access: exchange.Private, Method: http.MethodPost, Path: "/v1/order", Params: params.Values(), Weight: 1})
	if err != nil {
		return models.Order{}, err
	}
	order := c.parseOrder(resp, m)
	c.RememberOrder(order)
	return order, nil
}

// CancelOrder cancels order id on symbol.
func (c *Commex) CancelOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if symbol == "" {
		return models.Order{}, exchange.ArgumentsRequired(ID, "cancelOrder", "symbol")
	}
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).Set("orderId", id)
	resp, err := c.Request(ctx, exchange.Call{Access: exchange.Private, Method: http.MethodDelete, Path: "/v1/order", Params: params.Values(), Weight: 1})
	if err != nil {
		return models.Order{}, err
	}
	order := c.parseOrder(resp, m)
	c.Backfill(&order)
	return order, nil
}

// FetchOrder returns order id on symbol.
func (c *Commex) FetchOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	if symbol == "" {
		return models.Order{}, exchange.ArgumentsRequired(ID, "fetchOrder", "symbol")
	}
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return models.Order{}, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).Set("orderId", id)
	resp, err := c.get(ctx, exchange.Private, "/v1/order", params, 2)
	if err != nil {
		return models.Order{}, err
	}
	order := c.parseOrder(resp, m)
	c.Backfill(&order)
	return order, nil
}

// FetchOrders returns every order of symbol, open or not.
func (c *Commex) FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	if symbol == "" {
		return nil, exchange.ArgumentsRequired(ID, "fetchOrders", "symbol")
	}
	m, err := c.Market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	params := exchange.NewParams().Set("symbol", m.ID).SetSince("startTime", since).SetInt("limit", int64(limit))
	resp, err := c.get(ctx, exchange.Private, "/v1/allOrders", params, 10)
	if err != nil {
		return nil, err
	}
	return normalizer.FilterBySinceLimit(c.parseOrders(resp, m), since, limit), nil
}

// FetchOpenOrders returns the open orders of symbol, or of every market
// when symbol is empty.
func (c *Commex) FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	params := exchange.NewParams()
	var m *models.Market
	if symbol != "" {
		var err error
		if m, err = c.Market(ctx, symbol); err != nil {
			return nil, err
		}
		params.Set("symbol", m.ID)
	} else if _, err := c.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, exchange.Private, "/v1/openOrders", params, 3)
	if err != nil {
		return nil, err
	}
	return exchange.OpenOrders(c.parseOrders(resp, m), since, limit), nil
}

// FetchClosedOrders keeps the closed orders of FetchOrders.
func (c *Commex) FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	orders, err := c.FetchOrders(ctx, symbol, since, 0)
	if err != nil {
		return nil, err
	}
	return exchange.ClosedOrders(orders, since, limit), nil
}

func (c *Commex) history(ctx context.Context, path, code string, since *int64, limit int, extra exchange.Params) (any, error) {
	params := extra
	if params == nil {
		params = exchange.NewParams()
	}
	if code != "" {
		params.Set("coin", c.CurrencyID(code))
	}
	if since != nil {
		end := *since + historyWindow
		params.SetSince("startTime", since).SetSince("endTime", &end)
	}
	params.SetInt("limit", int64(limit))
	return c.get(ctx, exchange.Private, path, params, 1)
}

// FetchDeposits returns deposit history, optionally for one currency.
func (c *Commex) FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	resp, err := c.history(ctx, "/v1/capital/deposit/history", code, since, limit, nil)
	if err != nil {
		return nil, err
	}
	return c.parseTransactions(resp, models.Deposit, since, limit), nil
}

// FetchWithdrawals returns withdrawal history, optionally for one currency.
func (c *Commex) FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return nil, err
	}
	resp, err := c.history(ctx, "/v1/capital/withdraw/history", code, since, limit, exchange.NewParams().Set("transactionType", "1"))
	if err != nil {
		return nil, err
	}
	return c.parseTransactions(resp, models.Withdrawal, since, limit), nil
}

// FetchDepositAddress returns the deposit address of code on the default
// network.
func (c *Commex) FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error) {
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return models.DepositAddress{}, err
	}
	params := exchange.NewParams().Set("coin", c.CurrencyID(code)).Set("network", c.Config.DefaultNetwork)
	resp, err := c.get(ctx, exchange.Private, "/v1/capital/deposit/address", params, 10)
	if err != nil {
		return models.DepositAddress{}, err
	}
	return models.DepositAddress{
		Currency: code,
		Address:  safe.String(resp, "address"),
		Tag:      safe.String(resp, "tag"),
		Network:  c.Config.DefaultNetwork,
		Info:     resp,
	}, nil
}

// Withdraw sends amount of code to address.
func (c *Commex) Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error) {
	if address == "" {
		return models.Transaction{}, exchange.ArgumentsRequired(ID, "withdraw", "address")
	}
	if _, err := c.LoadMarkets(ctx, false); err != nil {
		return models.Transaction{}, err
	}
	params := exchange.NewParams().
		Set("coin", c.CurrencyID(code)).
		Set("address", address).
		Set("addressTag", tag).
		Set("amount", amount.String()).
		Set("network", c.Config.DefaultNetwork)
	resp, err := c.Request(ctx, exchange.Call{Access: exchange.Private, Method: http.MethodPost, Path: "/v1/capital/withdraw", Params: params.Values(), Weight: 1})
	if err != nil {
		return models.Transaction{}, err
	}
	bag := normalizer.Bag{}.
		Set("id", safe.String(resp, "id")).
		Set("type", string(models.Withdrawal)).
		Set("currency", code).
		Set("amount", amount).
		Set("address", address).
		Set("tag", tag).
		Set("network", c.Config.DefaultNetwork).
		Set("status", string(models.TxPending))
	return c.Normalizer.Transaction(bag, resp), nil
}
