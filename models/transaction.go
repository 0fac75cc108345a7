package models

import "github.com/shopspring/decimal"

// TransactionType separates deposits from withdrawals.
type TransactionType string

const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
)

// TransactionStatus is the unified funding state.
type TransactionStatus string

const (
	TxPending  TransactionStatus = "pending"
	TxOK       TransactionStatus = "ok"
	TxFailed   TransactionStatus = "failed"
	TxCanceled TransactionStatus = "canceled"
	TxUnknown  TransactionStatus = "unknown"
)

// Transaction is a deposit or a withdrawal.
type Transaction struct {
	Exchange    string            `json:"exchange"`
	ID          string            `json:"id"`
	TxID        string            `json:"txid,omitempty"`
	Type        TransactionType   `json:"type"`
	Currency    string            `json:"currency"`
	Amount      *decimal.Decimal  `json:"amount,omitempty"`
	Network     string            `json:"network,omitempty"`
	Address     string            `json:"address,omitempty"`
	AddressFrom string            `json:"addressFrom,omitempty"`
	AddressTo   string            `json:"addressTo,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	Status      TransactionStatus `json:"status"`
	Fee         *Fee              `json:"fee,omitempty"`
	Timestamp   *int64            `json:"timestamp,omitempty"`
	Updated     *int64            `json:"updated,omitempty"`
	Info        any               `json:"info,omitempty"`
}
