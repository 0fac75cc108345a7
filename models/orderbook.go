package models

import "github.com/shopspring/decimal"

// OrderBookLevel is a single (price, amount) pair.
type OrderBookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderBook holds bids sorted by price descending and asks ascending.
type OrderBook struct {
	Exchange  string           `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Timestamp *int64           `json:"timestamp,omitempty"`
	Nonce     *int64           `json:"nonce,omitempty"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Info      any              `json:"info,omitempty"`
}

// BestBid returns the top bid, if any.
func (ob *OrderBook) BestBid() (OrderBookLevel, bool) {
	if len(ob.Bids) == 0 {
		return OrderBookLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask, if any.
func (ob *OrderBook) BestAsk() (OrderBookLevel, bool) {
	if len(ob.Asks) == 0 {
		return OrderBookLevel{}, false
	}
	return ob.Asks[0], true
}
