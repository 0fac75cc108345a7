package models

import "github.com/shopspring/decimal"

// Side is the direction of a trade or order.
type Side string

const (
	SideBuy     Side = "buy"
	SideSell    Side = "sell"
	SideUnknown Side = "unknown"
)

// TakerOrMaker is the liquidity role of a fill.
type TakerOrMaker string

const (
	Taker            TakerOrMaker = "taker"
	Maker            TakerOrMaker = "maker"
	LiquidityUnknown TakerOrMaker = "unknown"
)

// Fee is a charged amount in a currency.
type Fee struct {
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Rate     *decimal.Decimal `json:"rate,omitempty"`
}

// Trade is a public or private fill.
type Trade struct {
	Exchange     string           `json:"exchange"`
	ID           string           `json:"id"`
	Order        string           `json:"order,omitempty"`
	Timestamp    *int64           `json:"timestamp,omitempty"`
	Symbol       string           `json:"symbol"`
	Type         OrderType        `json:"type"`
	Side         Side             `json:"side"`
	TakerOrMaker TakerOrMaker     `json:"takerOrMaker"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
	Fee          *Fee             `json:"fee,omitempty"`
	Info         any              `json:"info,omitempty"`
}
