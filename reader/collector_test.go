package reader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/internal/channel"
	"exchangeflow/models"
)

type fakeExchange struct {
	exchange.Unsupported
	trades      []models.Trade
	sinceSeen   []*int64
	tickersUnsp bool
}

func (f *fakeExchange) ID() string { return f.Exchange }

func (f *fakeExchange) LoadMarkets(ctx context.Context, reload bool) (map[string]models.Market, error) {
	return nil, nil
}

func (f *fakeExchange) FetchMarkets(ctx context.Context) ([]models.Market, error) { return nil, nil }

func (f *fakeExchange) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	return models.OrderBook{
		Exchange: f.Exchange,
		Symbol:   symbol,
		Bids:     []models.OrderBookLevel{{Price: decimal.NewFromInt(10), Amount: decimal.NewFromInt(1)}},
		Asks:     []models.OrderBookLevel{{Price: decimal.NewFromInt(11), Amount: decimal.NewFromInt(1)}},
	}, nil
}

func (f *fakeExchange) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	f.sinceSeen = append(f.sinceSeen, since)
	return f.trades, nil
}

func (f *fakeExchange) FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	if f.tickersUnsp {
		return f.Unsupported.FetchTickers(ctx, symbols)
	}
	out := map[string]models.Ticker{}
	for _, s := range symbols {
		out[s] = models.Ticker{Exchange: f.Exchange, Symbol: s}
	}
	return out, nil
}

func trade(id string, ts int64) models.Trade {
	return models.Trade{ID: id, Timestamp: &ts}
}

func newTestCollector(ex *fakeExchange, tickers bool) (*Collector, *channel.Channels) {
	cfg := &appconfig.Config{
		Exchanges: map[string]appconfig.ExchangeConfig{
			ex.Exchange: {Enabled: true, Symbols: []string{"BTC/USDT", "ETH/USDT"}},
		},
		Collector: appconfig.CollectorConfig{Interval: time.Second, Depth: 5, Trades: true, Tickers: tickers},
	}
	ch := channel.NewChannels(16, 1)
	return NewCollector(cfg, map[string]exchange.Exchange{ex.Exchange: ex}, ch), ch
}

func drain(ch *channel.Channels) []models.Snapshot {
	var out []models.Snapshot
	for {
		select {
		case s := <-ch.Raw:
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestCollectQueuesEveryKind(t *testing.T) {
	ex := &fakeExchange{
		Unsupported: exchange.Unsupported{Exchange: "kucoin"},
		trades:      []models.Trade{trade("1", 100), trade("2", 200)},
	}
	c, ch := newTestCollector(ex, true)
	c.now = func() time.Time { return time.UnixMilli(5000) }

	c.Collect(context.Background(), "kucoin")
	snaps := drain(ch)

	// tickers, then order book and trades for each of the two symbols
	if len(snaps) != 5 {
		t.Fatalf("snapshots = %d, want 5", len(snaps))
	}
	if snaps[0].Kind != models.DataTickers || len(snaps[0].Tickers) != 2 || snaps[0].Tickers[0].Symbol != "BTC/USDT" {
		t.Fatalf("unexpected ticker snapshot: %+v", snaps[0])
	}
	ob := snaps[1]
	if ob.Kind != models.DataOrderBook || ob.Symbol != "BTC/USDT" || ob.OrderBook == nil {
		t.Fatalf("unexpected order book snapshot: %+v", ob)
	}
	if ob.OrderBook.Timestamp == nil || *ob.OrderBook.Timestamp != 5000 {
		t.Fatalf("missing book timestamp should be stamped with the fetch time")
	}
	if snaps[2].Kind != models.DataTrades || len(snaps[2].Trades) != 2 {
		t.Fatalf("unexpected trades snapshot: %+v", snaps[2])
	}
}

func TestCollectTradesOnlyNewOnes(t *testing.T) {
	ex := &fakeExchange{
		Unsupported: exchange.Unsupported{Exchange: "upbit"},
		trades:      []models.Trade{trade("1", 100), trade("2", 200)},
	}
	c, ch := newTestCollector(ex, false)

	c.collectTrades(context.Background(), ex, "BTC/USDT")
	if got := drain(ch); len(got) != 1 || len(got[0].Trades) != 2 {
		t.Fatalf("first poll should queue both trades: %+v", got)
	}
	if ex.sinceSeen[0] != nil {
		t.Fatalf("first poll should not pass since")
	}

	ex.trades = []models.Trade{trade("2", 200), trade("3", 200), trade("4", 300)}
	c.collectTrades(context.Background(), ex, "BTC/USDT")
	got := drain(ch)
	if len(got) != 1 || len(got[0].Trades) != 2 {
		t.Fatalf("second poll should queue trades 3 and 4: %+v", got)
	}
	if got[0].Trades[0].ID != "3" || got[0].Trades[1].ID != "4" {
		t.Fatalf("unexpected trades: %+v", got[0].Trades)
	}
	if ex.sinceSeen[1] == nil || *ex.sinceSeen[1] != 200 {
		t.Fatalf("second poll should pass the cursor timestamp")
	}

	c.collectTrades(context.Background(), ex, "BTC/USDT")
	if got := drain(ch); len(got) != 0 {
		t.Fatalf("a poll with nothing new should queue nothing: %+v", got)
	}
}

func TestNotSupportedDisablesKind(t *testing.T) {
	ex := &fakeExchange{Unsupported: exchange.Unsupported{Exchange: "indodax"}, tickersUnsp: true}
	c, ch := newTestCollector(ex, true)

	c.Collect(context.Background(), "indodax")
	if c.enabled("indodax", models.DataTickers) {
		t.Fatalf("tickers should be disabled after NotSupported")
	}
	if !c.enabled("indodax", models.DataOrderBook) {
		t.Fatalf("order books should stay enabled")
	}
	for _, s := range drain(ch) {
		if s.Kind == models.DataTickers {
			t.Fatalf("no ticker snapshot expected")
		}
	}
}

func TestStartRequiresSymbols(t *testing.T) {
	cfg := &appconfig.Config{Collector: appconfig.CollectorConfig{Interval: time.Second}}
	c := NewCollector(cfg, map[string]exchange.Exchange{}, channel.NewChannels(1, 1))
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error without symbols")
	}
}

func TestStartStop(t *testing.T) {
	ex := &fakeExchange{Unsupported: exchange.Unsupported{Exchange: "commex"}}
	c, _ := newTestCollector(ex, false)
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	c.Stop()
}

func TestFailedStartCanBeRetried(t *testing.T) {
	ex := &fakeExchange{Unsupported: exchange.Unsupported{Exchange: "commex"}}
	c, _ := newTestCollector(ex, false)
	c.config.Interval = 0
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if c.running {
		t.Fatalf("collector marked running after a failed start")
	}

	c.config.Interval = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("retry after fixing interval: %v", err)
	}
	cancel()
	c.Stop()
}
