package models

import "github.com/shopspring/decimal"

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeLimit   OrderType = "limit"
	OrderTypeMarket  OrderType = "market"
	OrderTypeUnknown OrderType = "unknown"
)

// OrderStatus is the closed set of unified order states.
type OrderStatus string

const (
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
	StatusExpired  OrderStatus = "expired"
	StatusRejected OrderStatus = "rejected"
	StatusUnknown  OrderStatus = "unknown"
)

// Order is a unified order. Nil numeric fields are unknown.
type Order struct {
	Exchange           string           `json:"exchange"`
	ID                 string           `json:"id"`
	ClientOrderID      string           `json:"clientOrderId,omitempty"`
	Timestamp          *int64           `json:"timestamp,omitempty"`
	LastTradeTimestamp *int64           `json:"lastTradeTimestamp,omitempty"`
	Symbol             string           `json:"symbol"`
	Type               OrderType        `json:"type"`
	Side               Side             `json:"side"`
	TimeInForce        string           `json:"timeInForce,omitempty"`
	PostOnly           bool             `json:"postOnly"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	StopPrice          *decimal.Decimal `json:"stopPrice,omitempty"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	Filled             *decimal.Decimal `json:"filled,omitempty"`
	Remaining          *decimal.Decimal `json:"remaining,omitempty"`
	Cost               *decimal.Decimal `json:"cost,omitempty"`
	Average            *decimal.Decimal `json:"average,omitempty"`
	Status             OrderStatus      `json:"status"`
	Fee                *Fee             `json:"fee,omitempty"`
	Trades             []Trade          `json:"trades,omitempty"`
	Info               any              `json:"info,omitempty"`
}
