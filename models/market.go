package models

import (
	"github.com/shopspring/decimal"

	"exchangeflow/internal/precise"
)

// MarketType tags a market as exactly one of spot, swap, future or option.
type MarketType string

const (
	MarketSpot   MarketType = "spot"
	MarketSwap   MarketType = "swap"
	MarketFuture MarketType = "future"
	MarketOption MarketType = "option"
)

// MinMax is an optional lower and upper bound.
type MinMax struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// Limits groups the trading bounds of a market.
type Limits struct {
	Amount   MinMax `json:"amount"`
	Price    MinMax `json:"price"`
	Cost     MinMax `json:"cost"`
	Leverage MinMax `json:"leverage"`
}

// MarketPrecision describes how amounts and prices must be rounded.
type MarketPrecision struct {
	Amount precise.Precision `json:"amount"`
	Price  precise.Precision `json:"price"`
}

// Market is one tradable instrument. ID is the vendor symbol and is the only
// field sent back to the exchange; Symbol is derived from Base, Quote and
// Settle.
type Market struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Base      string           `json:"base"`
	Quote     string           `json:"quote"`
	Settle    string           `json:"settle,omitempty"`
	BaseID    string           `json:"baseId"`
	QuoteID   string           `json:"quoteId"`
	SettleID  string           `json:"settleId,omitempty"`
	Type      MarketType       `json:"type"`
	Active    bool             `json:"active"`
	Maker     *decimal.Decimal `json:"maker,omitempty"`
	Taker     *decimal.Decimal `json:"taker,omitempty"`
	Precision MarketPrecision  `json:"precision"`
	Limits    Limits           `json:"limits"`
	Info      any              `json:"info,omitempty"`
}

// Network is a deposit/withdraw chain of a currency.
type Network struct {
	ID       string           `json:"id"`
	Network  string           `json:"network"`
	Active   bool             `json:"active"`
	Deposit  bool             `json:"deposit"`
	Withdraw bool             `json:"withdraw"`
	Fee      *decimal.Decimal `json:"fee,omitempty"`
	Limits   Limits           `json:"limits"`
}

// Currency describes an asset and its funding capabilities.
type Currency struct {
	Code      string             `json:"code"`
	ID        string             `json:"id"`
	Name      string             `json:"name,omitempty"`
	Precision precise.Precision  `json:"precision"`
	Active    bool               `json:"active"`
	Deposit   bool               `json:"deposit"`
	Withdraw  bool               `json:"withdraw"`
	Fee       *decimal.Decimal   `json:"fee,omitempty"`
	Networks  map[string]Network `json:"networks,omitempty"`
	Deposits  MinMax             `json:"depositLimits"`
	Withdraws MinMax             `json:"withdrawLimits"`
	Info      any                `json:"info,omitempty"`
}

// DepositAddress is where funds of a currency can be sent.
type DepositAddress struct {
	Currency string `json:"currency"`
	Address  string `json:"address"`
	Tag      string `json:"tag,omitempty"`
	Network  string `json:"network,omitempty"`
	Info     any    `json:"info,omitempty"`
}
