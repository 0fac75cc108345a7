package models

import "time"

// DataKind names what a collected snapshot or a row batch carries.
type DataKind string

const (
	DataOrderBook DataKind = "orderbook"
	DataTrades    DataKind = "trades"
	DataTickers   DataKind = "tickers"
)

// Snapshot is one poll result handed from the collector to the processor.
// Exactly one of OrderBook, Trades or Tickers is set, according to Kind.
type Snapshot struct {
	Exchange  string
	Symbol    string
	Kind      DataKind
	FetchedAt time.Time
	OrderBook *OrderBook
	Trades    []Trade
	Tickers   []Ticker
}

// Size is the number of records the snapshot holds.
func (s Snapshot) Size() int {
	switch s.Kind {
	case DataOrderBook:
		if s.OrderBook == nil {
			return 0
		}
		return len(s.OrderBook.Bids) + len(s.OrderBook.Asks)
	case DataTrades:
		return len(s.Trades)
	case DataTickers:
		return len(s.Tickers)
	}
	return 0
}

// OrderBookRow is one price level of a snapshot laid out as a row for
// columnar export.
type OrderBookRow struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Side      string  `json:"side"` // "bid" or "ask"
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Level     int     `json:"level"` // 1 = best
}

// TradeRow is a public trade laid out as a row.
type TradeRow struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Cost      float64 `json:"cost"`
}

// TickerRow is a ticker laid out as a row. Unknown numbers are zero.
type TickerRow struct {
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	Timestamp   int64   `json:"timestamp"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	BaseVolume  float64 `json:"base_volume"`
	QuoteVolume float64 `json:"quote_volume"`
	Percentage  float64 `json:"percentage"`
}

// RowBatch groups rows of one kind for one exchange and symbol. Ticker
// batches span symbols and leave Symbol empty.
type RowBatch struct {
	BatchID     string         `json:"batch_id"`
	Kind        DataKind       `json:"kind"`
	Exchange    string         `json:"exchange"`
	Symbol      string         `json:"symbol,omitempty"`
	OrderBooks  []OrderBookRow `json:"orderbooks,omitempty"`
	Trades      []TradeRow     `json:"trades,omitempty"`
	Tickers     []TickerRow    `json:"tickers,omitempty"`
	RecordCount int            `json:"record_count"`
	Timestamp   time.Time      `json:"timestamp"`
	ProcessedAt time.Time      `json:"processed_at"`
}
