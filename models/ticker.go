package models

import "github.com/shopspring/decimal"

// Ticker is a 24h statistics snapshot. Nil numeric fields are unknown.
type Ticker struct {
	Exchange      string           `json:"exchange"`
	Symbol        string           `json:"symbol"`
	Timestamp     *int64           `json:"timestamp,omitempty"`
	High          *decimal.Decimal `json:"high,omitempty"`
	Low           *decimal.Decimal `json:"low,omitempty"`
	Bid           *decimal.Decimal `json:"bid,omitempty"`
	BidVolume     *decimal.Decimal `json:"bidVolume,omitempty"`
	Ask           *decimal.Decimal `json:"ask,omitempty"`
	AskVolume     *decimal.Decimal `json:"askVolume,omitempty"`
	VWAP          *decimal.Decimal `json:"vwap,omitempty"`
	Open          *decimal.Decimal `json:"open,omitempty"`
	Close         *decimal.Decimal `json:"close,omitempty"`
	Last          *decimal.Decimal `json:"last,omitempty"`
	PreviousClose *decimal.Decimal `json:"previousClose,omitempty"`
	Change        *decimal.Decimal `json:"change,omitempty"`
	Percentage    *decimal.Decimal `json:"percentage,omitempty"`
	Average       *decimal.Decimal `json:"average,omitempty"`
	BaseVolume    *decimal.Decimal `json:"baseVolume,omitempty"`
	QuoteVolume   *decimal.Decimal `json:"quoteVolume,omitempty"`
	Info          any              `json:"info,omitempty"`
}
