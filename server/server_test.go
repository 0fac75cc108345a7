package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

type stubExchange struct {
	exchange.Unsupported
	lastLimit int
	lastSince *int64
}

func (s *stubExchange) ID() string { return s.Exchange }

func (s *stubExchange) LoadMarkets(ctx context.Context, reload bool) (map[string]models.Market, error) {
	return map[string]models.Market{"BTC/USDT": {ID: "BTCUSDT", Symbol: "BTC/USDT"}}, nil
}

func (s *stubExchange) FetchMarkets(ctx context.Context) ([]models.Market, error) { return nil, nil }

func (s *stubExchange) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	if symbol != "BTC/USDT" {
		return models.Ticker{}, models.NewError(models.KindBadSymbol, s.Exchange, "unknown symbol %s", symbol)
	}
	last := decimal.RequireFromString("42000.5")
	return models.Ticker{Exchange: s.Exchange, Symbol: symbol, Last: &last}, nil
}

func (s *stubExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	s.lastLimit = limit
	return models.OrderBook{Exchange: s.Exchange, Symbol: symbol}, nil
}

func (s *stubExchange) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	s.lastSince = since
	return nil, models.NewError(models.KindRateLimitExceeded, s.Exchange, "too many requests")
}

func newTestServer(t *testing.T) (*Server, *stubExchange, http.Handler) {
	t.Helper()
	stub := &stubExchange{Unsupported: exchange.Unsupported{Exchange: "commex"}}
	srv := New(config.ServerConfig{Address: ":0", Mode: "test"}, "exchangeflow", map[string]exchange.Exchange{"commex": stub}, logger.GetLogger())
	t.Cleanup(srv.cleanup)
	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return srv, stub, router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                     "0.0.0.0:8080",
		"  :9090  ":            "0.0.0.0:9090",
		"localhost":            "localhost:8080",
		"[::1]:443":            "[::1]:443",
		"::1":                  "[::1]:8080",
		"*:8080":               "0.0.0.0:8080",
		"http://10.0.0.1:8080": "10.0.0.1:8080",
		"tcp://localhost:5050": "localhost:5050",
	}
	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTickerEndpoint(t *testing.T) {
	_, _, router := newTestServer(t)

	res := get(router, "/api/v1/exchanges/commex/ticker?symbol=BTC/USDT")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.Code, res.Body)
	}
	var ticker map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &ticker); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ticker["symbol"] != "BTC/USDT" || ticker["last"] != "42000.5" {
		t.Fatalf("unexpected ticker: %v", ticker)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	_, _, router := newTestServer(t)

	cases := []struct {
		path   string
		status int
		kind   string
	}{
		{"/api/v1/exchanges/commex/ticker?symbol=NOPE/USDT", http.StatusBadRequest, "BadSymbol"},
		{"/api/v1/exchanges/commex/ticker", http.StatusBadRequest, "BadRequest"},
		{"/api/v1/exchanges/commex/trades?symbol=BTC/USDT", http.StatusTooManyRequests, "RateLimitExceeded"},
		{"/api/v1/exchanges/commex/currencies", http.StatusNotImplemented, "NotSupported"},
		{"/api/v1/exchanges/commex/orderbook?symbol=BTC/USDT&limit=-1", http.StatusBadRequest, "BadRequest"},
	}
	for _, tc := range cases {
		res := get(router, tc.path)
		if res.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.path, res.Code, tc.status)
		}
		var body map[string]string
		if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if body["kind"] != tc.kind {
			t.Fatalf("%s: kind = %q, want %q", tc.path, body["kind"], tc.kind)
		}
	}

	if res := get(router, "/api/v1/exchanges/binance/markets"); res.Code != http.StatusNotFound {
		t.Fatalf("unknown exchange status = %d", res.Code)
	}
}

func TestQueryParametersForwarded(t *testing.T) {
	_, stub, router := newTestServer(t)

	if res := get(router, "/api/v1/exchanges/commex/orderbook?symbol=BTC/USDT&limit=50"); res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if stub.lastLimit != 50 {
		t.Fatalf("limit = %d", stub.lastLimit)
	}

	get(router, "/api/v1/exchanges/commex/trades?symbol=BTC/USDT&since=1700000000000")
	if stub.lastSince == nil || *stub.lastSince != 1700000000000 {
		t.Fatalf("since was not forwarded")
	}
	get(router, "/api/v1/exchanges/commex/trades?symbol=BTC/USDT")
	if stub.lastSince != nil {
		t.Fatalf("absent since should stay nil")
	}
}

func TestMarketsAndExchanges(t *testing.T) {
	_, _, router := newTestServer(t)

	res := get(router, "/api/v1/exchanges/commex/markets")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"BTC/USDT"`) {
		t.Fatalf("markets: %d %s", res.Code, res.Body)
	}
	res = get(router, "/api/v1/exchanges")
	if !strings.Contains(res.Body.String(), `"commex"`) {
		t.Fatalf("exchanges: %s", res.Body)
	}
	if res := get(router, "/health"); res.Code != http.StatusOK {
		t.Fatalf("health status = %d", res.Code)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _, router := newTestServer(t)

	metrics.ObserveRequest("commex", "GET", 0, "")
	metrics.EmitMetric(logger.GetLogger(), "exchange", "requests_in_flight", 1, "gauge", logger.Fields{"exchange": "commex"})

	res := get(router, "/metrics")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "commex") {
		t.Fatalf("prometheus endpoint: %d", res.Code)
	}

	res = get(router, "/api/metrics?exchange=commex")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if len(srv.metricStore.forExchange("commex")) == 0 {
		t.Fatalf("metric store empty")
	}
}
