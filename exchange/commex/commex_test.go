package commex

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/models"
)

const exchangeInfo = `{"symbols":[{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","status":"TRADING",
"pair_decimals":2,"lot_decimals":4,"ordermin":"0.0001","costmin":"5"}]}`

func newTestCommex(t *testing.T, routes map[string]http.HandlerFunc) *Commex {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, exchangeInfo)
	})
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(exchange.Options{
		Exchange:   config.ExchangeConfig{BaseURL: srv.URL, APIKey: "key", Secret: "secret"},
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// verifySignature checks the trailing signature of a signed query or body.
func verifySignature(t *testing.T, payload string) url.Values {
	t.Helper()
	i := strings.LastIndex(payload, "&signature=")
	if i < 0 {
		t.Fatalf("payload %q is not signed", payload)
	}
	if want := exchange.HMACSHA256Hex("secret", payload[:i]); payload[i+len("&signature="):] != want {
		t.Fatalf("signature mismatch for %q", payload)
	}
	values, err := url.ParseQuery(payload)
	if err != nil {
		t.Fatalf("parse %q: %v", payload, err)
	}
	return values
}

func TestFetchMarkets(t *testing.T) {
	c := newTestCommex(t, nil)
	markets, err := c.LoadMarkets(context.Background(), false)
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	m, ok := markets["BTC/USDT"]
	if !ok {
		t.Fatalf("BTC/USDT missing: %v", markets)
	}
	if m.ID != "BTCUSDT" || m.BaseID != "BTC" || m.QuoteID != "USDT" || !m.Active {
		t.Fatalf("market = %+v", m)
	}
	if m.Precision.Price.Value != "0.01" || m.Precision.Amount.Value != "0.0001" {
		t.Fatalf("precision = %+v", m.Precision)
	}
	if m.Limits.Amount.Min == nil || m.Limits.Amount.Min.String() != "0.0001" {
		t.Fatalf("amount min = %v", m.Limits.Amount.Min)
	}
	if m.Limits.Cost.Min == nil || m.Limits.Cost.Min.String() != "5" {
		t.Fatalf("cost min = %v", m.Limits.Cost.Min)
	}
}

func TestFetchOrderFilledWithoutRemaining(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/order": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-MBX-APIKEY") != "key" {
				t.Errorf("api key header = %q", r.Header.Get("X-MBX-APIKEY"))
			}
			q := verifySignature(t, r.URL.RawQuery)
			if q.Get("symbol") != "BTCUSDT" || q.Get("orderId") != "7" || q.Get("recvWindow") != "5000" {
				t.Errorf("query = %v", q)
			}
			io.WriteString(w, `{"status":"FILLED","origQty":"10","executedQty":"10"}`)
		},
	})

	o, err := c.FetchOrder(context.Background(), "7", "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchOrder: %v", err)
	}
	if o.Status != models.StatusClosed {
		t.Fatalf("status = %s", o.Status)
	}
	if o.Remaining == nil || !o.Remaining.IsZero() {
		t.Fatalf("remaining = %v", o.Remaining)
	}
	if o.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %s", o.Symbol)
	}
}

func TestRateLimitFallsBackToStatus(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/time": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"code":"-1130","msg":"Too many requests."}`)
		},
	})

	_, err := c.FetchTime(context.Background())
	kind, ok := models.KindOf(err)
	if !ok || kind != models.KindRateLimitExceeded {
		t.Fatalf("err = %v, want RateLimitExceeded", err)
	}
	var e *models.Error
	if !errors.As(err, &e) || e.Exchange != ID || e.Status != http.StatusTooManyRequests {
		t.Fatalf("error = %#v", err)
	}
}

func TestVendorErrorOnSuccessStatus(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/order": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"code":-2013,"msg":"Order does not exist."}`)
		},
	})
	_, err := c.FetchOrder(context.Background(), "1", "BTC/USDT")
	if kind, _ := models.KindOf(err); kind != models.KindOrderNotFound {
		t.Fatalf("err = %v, want OrderNotFound", err)
	}
}

func TestCreateLimitOrder(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/order": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("content type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			form := verifySignature(t, string(body))
			if form.Get("quantity") != "0.1234" || form.Get("price") != "100.13" || form.Get("timeInForce") != "GTC" {
				t.Errorf("form = %v", form)
			}
			if form.Get("side") != "BUY" || form.Get("type") != "LIMIT" || form.Get("newClientOrderId") == "" {
				t.Errorf("form = %v", form)
			}
			io.WriteString(w, `{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"abc","transactTime":1700000000000,
"price":"100.13","origQty":"0.1234","executedQty":"0","cummulativeQuoteQty":"0","status":"NEW","timeInForce":"GTC","type":"LIMIT","side":"BUY"}`)
		},
	})

	price := decimal.RequireFromString("100.127")
	o, err := c.CreateOrder(context.Background(), "BTC/USDT", models.OrderTypeLimit, models.SideBuy, decimal.RequireFromString("0.12345"), &price)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID != "42" || o.Status != models.StatusOpen || o.Side != models.SideBuy || o.Type != models.OrderTypeLimit {
		t.Fatalf("order = %+v", o)
	}
	if o.Remaining == nil || o.Remaining.String() != "0.1234" {
		t.Fatalf("remaining = %v", o.Remaining)
	}
	if o.Timestamp == nil || *o.Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %v", o.Timestamp)
	}
}

func TestCreateMarketBuyByCost(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/order": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			form := verifySignature(t, string(body))
			if form.Get("quoteOrderQty") != "50.01" || form.Has("quantity") {
				t.Errorf("form = %v", form)
			}
			io.WriteString(w, `{"symbol":"BTCUSDT","orderId":43,"status":"FILLED","type":"MARKET","side":"BUY","price":"0",
"origQty":"0.5","executedQty":"0.5","cummulativeQuoteQty":"50.01","transactTime":1700000000000}`)
		},
	})

	price := decimal.RequireFromString("100.02")
	o, err := c.CreateOrder(context.Background(), "BTC/USDT", models.OrderTypeMarket, models.SideBuy, decimal.RequireFromString("0.5"), &price)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.Price != nil {
		t.Fatalf("market order price = %v, want unset", o.Price)
	}
	if o.Average == nil || o.Average.String() != "100.02" {
		t.Fatalf("average = %v", o.Average)
	}
	if o.LastTradeTimestamp == nil {
		t.Fatal("lastTradeTimestamp not set on a filled order")
	}
}

func TestCreateOrderArguments(t *testing.T) {
	c := newTestCommex(t, nil)
	_, err := c.CreateOrder(context.Background(), "BTC/USDT", models.OrderTypeLimit, models.SideBuy, decimal.NewFromInt(1), nil)
	if kind, _ := models.KindOf(err); kind != models.KindArgumentsRequired {
		t.Fatalf("err = %v, want ArgumentsRequired", err)
	}
	_, err = c.CreateOrder(context.Background(), "ETH/USDT", models.OrderTypeMarket, models.SideSell, decimal.NewFromInt(1), nil)
	if kind, _ := models.KindOf(err); kind != models.KindBadSymbol {
		t.Fatalf("err = %v, want BadSymbol", err)
	}
	_, err = c.FetchOrders(context.Background(), "", nil, 0)
	if kind, _ := models.KindOf(err); kind != models.KindArgumentsRequired {
		t.Fatalf("err = %v, want ArgumentsRequired", err)
	}
}

func TestFetchTrades(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/aggTrades": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("startTime") != "1000" || q.Get("endTime") != "3601000" {
				t.Errorf("query = %v", q)
			}
			io.WriteString(w, `[{"a":1,"p":"10","q":"2","T":1000,"m":true},{"a":2,"p":"11","q":"1","T":2000,"m":false}]`)
		},
	})

	since := int64(1000)
	trades, err := c.FetchTrades(context.Background(), "BTC/USDT", &since, 0)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len = %d", len(trades))
	}
	if trades[0].Side != models.SideSell || trades[1].Side != models.SideBuy {
		t.Fatalf("sides = %s, %s", trades[0].Side, trades[1].Side)
	}
	if trades[0].Cost == nil || trades[0].Cost.String() != "20" || trades[0].Symbol != "BTC/USDT" {
		t.Fatalf("trade = %+v", trades[0])
	}
}

func TestFetchTickersFiltersSymbols(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/ticker/24hr": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `[{"symbol":"BTCUSDT","lastPrice":"101","openPrice":"100","volume":"2","quoteVolume":"201","closeTime":5},
{"symbol":"XYZABC","lastPrice":"1"}]`)
		},
	})
	tickers, err := c.FetchTickers(context.Background(), []string{"BTC/USDT"})
	if err != nil {
		t.Fatalf("FetchTickers: %v", err)
	}
	tk, ok := tickers["BTC/USDT"]
	if len(tickers) != 1 || !ok {
		t.Fatalf("tickers = %v", tickers)
	}
	if tk.Change == nil || tk.Change.String() != "1" || tk.Percentage == nil || tk.Percentage.String() != "1" {
		t.Fatalf("ticker = %+v", tk)
	}
	if tk.Close == nil || !tk.Close.Equal(*tk.Last) {
		t.Fatalf("close = %v, last = %v", tk.Close, tk.Last)
	}
}

func TestFetchBalance(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/account": func(w http.ResponseWriter, r *http.Request) {
			verifySignature(t, r.URL.RawQuery)
			io.WriteString(w, `{"updateTime":99,"balances":[{"asset":"BTC","free":"1.5","locked":"0.5"}]}`)
		},
	})
	bal, err := c.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchBalance: %v", err)
	}
	acc := bal.Currencies["BTC"]
	if acc.Total == nil || acc.Total.String() != "2" {
		t.Fatalf("BTC = %+v", acc)
	}
	if bal.Timestamp == nil || *bal.Timestamp != 99 {
		t.Fatalf("timestamp = %v", bal.Timestamp)
	}
}

func TestFetchDepositsStatus(t *testing.T) {
	c := newTestCommex(t, map[string]http.HandlerFunc{
		"/v1/capital/deposit/history": func(w http.ResponseWriter, r *http.Request) {
			q := verifySignature(t, r.URL.RawQuery)
			if q.Get("coin") != "BTC" {
				t.Errorf("coin = %q", q.Get("coin"))
			}
			io.WriteString(w, `[{"id":"d1","coin":"BTC","amount":"0.1","status":1,"insertTime":10,"txId":"Internal transfer 123","network":"BTC"},
{"id":"d2","coin":"BTC","amount":"0.2","status":0,"insertTime":20}]`)
		},
		"/v1/capital/withdraw/history": func(w http.ResponseWriter, r *http.Request) {
			q := verifySignature(t, r.URL.RawQuery)
			if q.Get("transactionType") != "1" {
				t.Errorf("transactionType = %q", q.Get("transactionType"))
			}
			io.WriteString(w, `[{"id":"w1","coin":"BTC","amount":"1","status":1,"applyTime":"2023-11-14 22:13:20","address":"addr"}]`)
		},
	})

	deposits, err := c.FetchDeposits(context.Background(), "BTC", nil, 0)
	if err != nil {
		t.Fatalf("FetchDeposits: %v", err)
	}
	if len(deposits) != 2 || deposits[0].Status != models.TxOK || deposits[1].Status != models.TxPending {
		t.Fatalf("deposits = %+v", deposits)
	}
	if deposits[0].TxID != "123" || deposits[0].Type != models.Deposit {
		t.Fatalf("deposit = %+v", deposits[0])
	}

	withdrawals, err := c.FetchWithdrawals(context.Background(), "BTC", nil, 0)
	if err != nil {
		t.Fatalf("FetchWithdrawals: %v", err)
	}
	w := withdrawals[0]
	if w.Status != models.TxCanceled || w.AddressTo != "addr" || w.Timestamp == nil || *w.Timestamp != 1700000000000 {
		t.Fatalf("withdrawal = %+v", w)
	}
}
