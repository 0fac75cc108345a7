package normalizer

import (
	"testing"

	"github.com/shopspring/decimal"

	"exchangeflow/models"
)

type staticMarkets map[string]*models.Market

func (s staticMarkets) MarketByID(id string) (*models.Market, bool) {
	m, ok := s[id]
	return m, ok
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func eq(t *testing.T, name string, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s is unknown, want %s", name, want)
	}
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", name, got.String(), want)
	}
}

func i64(v int64) *int64 { return &v }

func TestTickerDerivations(t *testing.T) {
	n := New("test", staticMarkets{"BTCUSDT": {ID: "BTCUSDT", Symbol: "BTC/USDT"}})
	raw := map[string]any{"s": "BTCUSDT", "o": "100", "c": "110", "v": "2", "qv": "210"}
	bag := Mapping{
		F("marketId", String, "s"),
		F("open", Number, "o"),
		F("last", Number, "c"),
		F("baseVolume", Number, "v"),
		F("quoteVolume", Number, "qv"),
	}.Apply(raw)
	tk := n.Ticker(bag, nil, raw)
	if tk.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %q", tk.Symbol)
	}
	eq(t, "close", tk.Close, "110")
	eq(t, "change", tk.Change, "10")
	eq(t, "percentage", tk.Percentage, "10")
	eq(t, "average", tk.Average, "105")
	eq(t, "vwap", tk.VWAP, "105")
	if tk.High != nil {
		t.Fatalf("high should stay unknown")
	}
}

func TestTickerOpenFromChange(t *testing.T) {
	n := New("test", nil)
	tk := n.Ticker(Bag{"last": "50", "change": "-5"}, nil, nil)
	eq(t, "open", tk.Open, "55")
	eq(t, "close", tk.Close, "50")
}

func TestTradeCostAndSide(t *testing.T) {
	n := &Normalizer{Exchange: "kucoin", Delimiter: "-"}
	tr := n.Trade(Bag{"marketId": "XBT-USDT", "price": "2.5", "amount": "4", "side": "sideways"}, nil, nil)
	if tr.Symbol != "BTC/USDT" {
		t.Fatalf("symbol = %q", tr.Symbol)
	}
	eq(t, "cost", tr.Cost, "10")
	if tr.Side != models.SideUnknown {
		t.Fatalf("side = %s", tr.Side)
	}
	if tr.TakerOrMaker != models.LiquidityUnknown {
		t.Fatalf("takerOrMaker = %s", tr.TakerOrMaker)
	}
}

func TestOrderRemainingFromAmountAndFilled(t *testing.T) {
	n := New("test", nil)
	o := n.Order(Bag{"amount": "1.5", "filled": "0.5", "price": "10", "status": "open", "type": "limit"}, nil, nil)
	eq(t, "remaining", o.Remaining, "1")
	eq(t, "cost", o.Cost, "5")
	eq(t, "average", o.Average, "10")
	if o.Status != models.StatusOpen {
		t.Fatalf("status = %s", o.Status)
	}
}

func TestOrderOverfillIsNotClamped(t *testing.T) {
	n := New("test", nil)
	o := n.Order(Bag{"amount": "1", "filled": "1.2"}, nil, nil)
	eq(t, "remaining", o.Remaining, "-0.2")
}

func TestOrderFilledFromAmountAndRemaining(t *testing.T) {
	n := New("test", nil)
	o := n.Order(Bag{"amount": "3", "remaining": "1"}, nil, nil)
	eq(t, "filled", o.Filled, "2")
}

func TestOrderAmountWhenClosed(t *testing.T) {
	n := New("test", nil)
	o := n.Order(Bag{"filled": "2", "status": "closed"}, nil, nil)
	eq(t, "amount", o.Amount, "2")
	eq(t, "remaining", o.Remaining, "0")
}

func TestOrderUnknownMarkers(t *testing.T) {
	n := New("test", nil)
	o := n.Order(Bag{"status": "weird"}, nil, nil)
	if o.Status != models.StatusUnknown || o.Side != models.SideUnknown || o.Type != models.OrderTypeUnknown {
		t.Fatalf("expected unknown markers, got %s %s %s", o.Status, o.Side, o.Type)
	}
	if o.Amount != nil || o.Filled != nil || o.Remaining != nil || o.Cost != nil {
		t.Fatalf("numbers should stay unknown")
	}
}

func TestOrderFromTrades(t *testing.T) {
	n := New("test", nil)
	p1, a1 := dec("100"), dec("1")
	p2, a2 := dec("110"), dec("3")
	f1, f2 := dec("0.1"), dec("0.3")
	trades := []models.Trade{
		{Price: &p1, Amount: &a1, Timestamp: i64(1000), Fee: &models.Fee{Cost: &f1, Currency: "USDT"}},
		{Price: &p2, Amount: &a2, Timestamp: i64(2000), Fee: &models.Fee{Cost: &f2, Currency: "USDT"}},
	}
	o := n.Order(Bag{"id": "42", "symbol": "BTC/USDT", "amount": "5", "trades": trades}, nil, nil)
	eq(t, "filled", o.Filled, "4")
	eq(t, "cost", o.Cost, "430")
	eq(t, "average", o.Average, "107.5")
	eq(t, "remaining", o.Remaining, "1")
	if o.Fee == nil || o.Fee.Currency != "USDT" {
		t.Fatalf("fee = %+v", o.Fee)
	}
	eq(t, "fee", o.Fee.Cost, "0.4")
	if o.LastTradeTimestamp == nil || *o.LastTradeTimestamp != 2000 {
		t.Fatalf("lastTradeTimestamp = %v", o.LastTradeTimestamp)
	}
	if o.Trades[0].Order != "42" || o.Trades[1].Symbol != "BTC/USDT" {
		t.Fatalf("trades not linked to order: %+v", o.Trades[0])
	}
}

func TestBalanceDerivesMissingPart(t *testing.T) {
	n := New("test", nil)
	b := n.Balance(map[string]BalanceEntry{
		"BTC": {Free: "1", Used: "0.5"},
		"ETH": {Total: "3", Used: "1"},
		"XRP": {Total: "10", Free: "4"},
		"LTC": {Free: "1"},
	}, nil, nil)
	eq(t, "BTC total", b.Currencies["BTC"].Total, "1.5")
	eq(t, "ETH free", b.Currencies["ETH"].Free, "2")
	eq(t, "XRP used", b.Currencies["XRP"].Used, "6")
	if b.Currencies["LTC"].Total != nil {
		t.Fatalf("LTC total should stay unknown")
	}
	for code, acc := range b.Currencies {
		if acc.Free == nil || acc.Used == nil || acc.Total == nil {
			continue
		}
		if !acc.Free.Add(*acc.Used).Equal(*acc.Total) {
			t.Fatalf("%s: free + used != total", code)
		}
	}
}

func TestOrderBookSorted(t *testing.T) {
	n := New("test", nil)
	bids := []any{
		[]any{"99", "1"},
		[]any{"101", "2"},
		[]any{"bad", "1"},
		[]any{"100", "3"},
		[]any{"101", "5"},
	}
	asks := []any{
		map[string]any{"price": "105", "size": "1"},
		map[string]any{"price": "103", "size": "1"},
		map[string]any{"price": "104"},
	}
	ob := n.OrderBook("BTC/USDT", bids, nil, "0", "1", nil, nil, nil)
	if len(ob.Bids) != 4 {
		t.Fatalf("bids = %d, want 4", len(ob.Bids))
	}
	for i := 1; i < len(ob.Bids); i++ {
		if ob.Bids[i-1].Price.LessThan(ob.Bids[i].Price) {
			t.Fatalf("bids not descending at %d", i)
		}
	}
	if !ob.Bids[0].Amount.Equal(dec("2")) || !ob.Bids[1].Amount.Equal(dec("5")) {
		t.Fatalf("equal prices should keep vendor order")
	}

	ob = n.OrderBook("BTC/USDT", nil, asks, "price", "size", nil, nil, nil)
	if len(ob.Asks) != 2 || !ob.Asks[0].Price.Equal(dec("103")) {
		t.Fatalf("asks = %+v", ob.Asks)
	}
}

func TestTransactionDefaults(t *testing.T) {
	n := New("indodax", nil)
	tx := n.Transaction(Bag{"currencyId": "str", "type": "withdrawal", "address": "GABC", "feeCost": "0.01", "status": "nope"}, nil)
	if tx.Currency != "XLM" {
		t.Fatalf("currency = %s", tx.Currency)
	}
	if tx.AddressTo != "GABC" {
		t.Fatalf("addressTo = %s", tx.AddressTo)
	}
	if tx.Status != models.TxUnknown {
		t.Fatalf("status = %s", tx.Status)
	}
	if tx.Fee == nil || tx.Fee.Currency != "XLM" {
		t.Fatalf("fee = %+v", tx.Fee)
	}
}

func TestMarketSymbol(t *testing.T) {
	n := New("kucoin", nil)
	m := n.Market(Bag{"id": "XBT-USDT", "baseId": "XBT", "quoteId": "USDT", "active": false}, models.MarketPrecision{}, nil)
	if m.Symbol != "BTC/USDT" || m.Base != "BTC" || m.Active || m.Type != models.MarketSpot {
		t.Fatalf("market = %+v", m)
	}
}

func TestLookupAndScale(t *testing.T) {
	raw := map[string]any{"st": "FILLED", "other": "WEIRD", "ts": int64(5), "rate": "0.015"}
	bag := Mapping{
		T("status", String, Lookup(map[string]string{"FILLED": "closed"}, ""), "st"),
		T("side", String, Lookup(map[string]string{"BUY": "buy"}, "unknown"), "other"),
		T("timestamp", Integer, Scale("1000"), "ts"),
		T("percentage", Number, Scale("100"), "rate"),
		T("missing", String, Lookup(nil, ""), "nope"),
	}.Apply(raw)
	if bag.String("status") != "closed" || bag.String("side") != "unknown" {
		t.Fatalf("lookup bag = %v", bag)
	}
	if ts := bag.Int("timestamp"); ts == nil || *ts != 5000 {
		t.Fatalf("timestamp = %v", ts)
	}
	eq(t, "percentage", bag.Decimal("percentage"), "1.5")
	if bag.Has("missing") {
		t.Fatalf("missing key should not be set")
	}
}

func TestFilterBySinceLimit(t *testing.T) {
	trades := []models.Trade{
		{ID: "c", Timestamp: i64(300)},
		{ID: "a", Timestamp: i64(100)},
		{ID: "d", Timestamp: i64(400)},
		{ID: "b", Timestamp: i64(200)},
	}
	got := FilterBySinceLimit(trades, i64(200), 2)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("since+limit = %+v", got)
	}
	got = FilterBySinceLimit(trades, nil, 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "d" {
		t.Fatalf("limit only = %+v", got)
	}
	got = FilterBySinceLimit(trades, i64(500), 0)
	if len(got) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
	if len(FilterBySinceLimit(trades, nil, 0)) != 4 {
		t.Fatalf("no filter should keep everything")
	}
}

func TestFilterHelpers(t *testing.T) {
	orders := []models.Order{
		{ID: "1", Symbol: "BTC/USDT", Status: models.StatusOpen},
		{ID: "2", Symbol: "ETH/USDT", Status: models.StatusClosed},
		{ID: "3", Symbol: "BTC/USDT", Status: models.StatusCanceled},
	}
	if got := FilterOrdersByStatus(orders, models.StatusClosed, models.StatusCanceled); len(got) != 2 {
		t.Fatalf("status filter = %+v", got)
	}
	if got := FilterBySymbol(orders, "BTC/USDT"); len(got) != 2 {
		t.Fatalf("symbol filter = %+v", got)
	}
	txs := []models.Transaction{{Currency: "BTC"}, {Currency: "ETH"}}
	if got := FilterByCurrency(txs, "ETH"); len(got) != 1 {
		t.Fatalf("currency filter = %+v", got)
	}
}
