// Package exchange holds the pieces every REST adapter shares: the unified
// operation set, the request pipeline, the market cache and the transport.
package exchange

import (
	"context"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"exchangeflow/models"
)

// Exchange is the unified operation set. Operations a vendor lacks return
// an error of kind NotSupported.
type Exchange interface {
	ID() string

	LoadMarkets(ctx context.Context, reload bool) (map[string]models.Market, error)
	FetchMarkets(ctx context.Context) ([]models.Market, error)
	FetchCurrencies(ctx context.Context) (map[string]models.Currency, error)
	FetchTime(ctx context.Context) (int64, error)

	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error)
	FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error)

	FetchBalance(ctx context.Context) (models.Balance, error)
	FetchMyTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error)

	CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error)
	CancelOrder(ctx context.Context, id, symbol string) (models.Order, error)
	FetchOrder(ctx context.Context, id, symbol string) (models.Order, error)
	FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error)
	FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error)
	FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error)

	FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error)
	FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error)
	FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error)
	Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error)
}

// Unsupported implements every optional operation of Exchange by returning
// NotSupported. Adapters embed it and override what their vendor offers.
type Unsupported struct {
	Exchange string
}

func (u Unsupported) notSupported(op string) error {
	return models.NewError(models.KindNotSupported, u.Exchange, "%s is not supported", op)
}

func (u Unsupported) FetchCurrencies(ctx context.Context) (map[string]models.Currency, error) {
	return nil, u.notSupported("fetchCurrencies")
}

func (u Unsupported) FetchTime(ctx context.Context) (int64, error) {
	return 0, u.notSupported("fetchTime")
}

func (u Unsupported) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	return models.Ticker{}, u.notSupported("fetchTicker")
}

func (u Unsupported) FetchTickers(ctx context.Context, symbols []string) (map[string]models.Ticker, error) {
	return nil, u.notSupported("fetchTickers")
}

func (u Unsupported) FetchOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	return models.OrderBook{}, u.notSupported("fetchOrderBook")
}

func (u Unsupported) FetchTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	return nil, u.notSupported("fetchTrades")
}

func (u Unsupported) FetchBalance(ctx context.Context) (models.Balance, error) {
	return models.Balance{}, u.notSupported("fetchBalance")
}

func (u Unsupported) FetchMyTrades(ctx context.Context, symbol string, since *int64, limit int) ([]models.Trade, error) {
	return nil, u.notSupported("fetchMyTrades")
}

func (u Unsupported) CreateOrder(ctx context.Context, symbol string, typ models.OrderType, side models.Side, amount decimal.Decimal, price *decimal.Decimal) (models.Order, error) {
	return models.Order{}, u.notSupported("createOrder")
}

func (u Unsupported) CancelOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	return models.Order{}, u.notSupported("cancelOrder")
}

func (u Unsupported) FetchOrder(ctx context.Context, id, symbol string) (models.Order, error) {
	return models.Order{}, u.notSupported("fetchOrder")
}

func (u Unsupported) FetchOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return nil, u.notSupported("fetchOrders")
}

func (u Unsupported) FetchOpenOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return nil, u.notSupported("fetchOpenOrders")
}

func (u Unsupported) FetchClosedOrders(ctx context.Context, symbol string, since *int64, limit int) ([]models.Order, error) {
	return nil, u.notSupported("fetchClosedOrders")
}

func (u Unsupported) FetchDeposits(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return nil, u.notSupported("fetchDeposits")
}

func (u Unsupported) FetchWithdrawals(ctx context.Context, code string, since *int64, limit int) ([]models.Transaction, error) {
	return nil, u.notSupported("fetchWithdrawals")
}

func (u Unsupported) FetchDepositAddress(ctx context.Context, code string) (models.DepositAddress, error) {
	return models.DepositAddress{}, u.notSupported("fetchDepositAddress")
}

func (u Unsupported) Withdraw(ctx context.Context, code string, amount decimal.Decimal, address, tag string) (models.Transaction, error) {
	return models.Transaction{}, u.notSupported("withdraw")
}

// ArgumentsRequired reports a missing argument of op.
func ArgumentsRequired(exchange, op, arg string) error {
	return models.NewError(models.KindArgumentsRequired, exchange, "%s requires a %s argument", op, arg)
}

// Params is a small builder over url.Values that skips empty values.
type Params url.Values

// NewParams returns an empty parameter set.
func NewParams() Params { return Params{} }

// Set stores v under key unless v is empty.
func (p Params) Set(key, v string) Params {
	if v != "" {
		url.Values(p).Set(key, v)
	}
	return p
}

// Add appends v under key, for array-repeat encoding.
func (p Params) Add(key, v string) Params {
	url.Values(p).Add(key, v)
	return p
}

// SetInt stores a positive integer under key.
func (p Params) SetInt(key string, v int64) Params {
	if v > 0 {
		url.Values(p).Set(key, strconv.FormatInt(v, 10))
	}
	return p
}

// SetSince stores the since timestamp, if any.
func (p Params) SetSince(key string, since *int64) Params {
	if since != nil {
		url.Values(p).Set(key, strconv.FormatInt(*since, 10))
	}
	return p
}

// Values returns p as url.Values.
func (p Params) Values() url.Values { return url.Values(p) }
