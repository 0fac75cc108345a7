package models

import "github.com/shopspring/decimal"

// Account is the balance of one currency. Total = Free + Used.
type Account struct {
	Free  *decimal.Decimal `json:"free,omitempty"`
	Used  *decimal.Decimal `json:"used,omitempty"`
	Total *decimal.Decimal `json:"total,omitempty"`
}

// Balance maps currency codes to accounts.
type Balance struct {
	Exchange   string             `json:"exchange"`
	Timestamp  *int64             `json:"timestamp,omitempty"`
	Currencies map[string]Account `json:"currencies"`
	Info       any                `json:"info,omitempty"`
}
