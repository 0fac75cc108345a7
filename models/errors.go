package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy every adapter failure maps into.
type ErrorKind int

const (
	KindExchangeError ErrorKind = iota
	KindAuthenticationError
	KindPermissionDenied
	KindAccountSuspended
	KindInvalidNonce
	KindArgumentsRequired
	KindBadRequest
	KindBadSymbol
	KindInvalidOrder
	KindInvalidAddress
	KindNotSupported
	KindInsufficientFunds
	KindOrderNotFound
	KindDuplicateOrderID
	KindNetworkError
	KindDDoSProtection
	KindRateLimitExceeded
	KindExchangeNotAvailable
	KindOnMaintenance
	KindRequestTimeout
)

var kindNames = [...]string{
	KindExchangeError:        "ExchangeError",
	KindAuthenticationError:  "AuthenticationError",
	KindPermissionDenied:     "PermissionDenied",
	KindAccountSuspended:     "AccountSuspended",
	KindInvalidNonce:         "InvalidNonce",
	KindArgumentsRequired:    "ArgumentsRequired",
	KindBadRequest:           "BadRequest",
	KindBadSymbol:            "BadSymbol",
	KindInvalidOrder:         "InvalidOrder",
	KindInvalidAddress:       "InvalidAddress",
	KindNotSupported:         "NotSupported",
	KindInsufficientFunds:    "InsufficientFunds",
	KindOrderNotFound:        "OrderNotFound",
	KindDuplicateOrderID:     "DuplicateOrderId",
	KindNetworkError:         "NetworkError",
	KindDDoSProtection:       "DDoSProtection",
	KindRateLimitExceeded:    "RateLimitExceeded",
	KindExchangeNotAvailable: "ExchangeNotAvailable",
	KindOnMaintenance:        "OnMaintenance",
	KindRequestTimeout:       "RequestTimeout",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseErrorKind resolves a kind from its name.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for i, n := range kindNames {
		if n == name {
			return ErrorKind(i), true
		}
	}
	return KindExchangeError, false
}

// ErrorCategory groups kinds by how a caller should react.
type ErrorCategory string

const (
	CategoryCaller     ErrorCategory = "caller"
	CategoryAccount    ErrorCategory = "account"
	CategoryTransient  ErrorCategory = "transient"
	CategoryBusiness   ErrorCategory = "business"
	CategoryUnexpected ErrorCategory = "unexpected"
)

// Category returns the reaction group of k.
func (k ErrorKind) Category() ErrorCategory {
	switch k {
	case KindBadRequest, KindBadSymbol, KindArgumentsRequired, KindInvalidOrder, KindInvalidAddress, KindNotSupported:
		return CategoryCaller
	case KindAuthenticationError, KindPermissionDenied, KindAccountSuspended, KindInvalidNonce:
		return CategoryAccount
	case KindNetworkError, KindExchangeNotAvailable, KindOnMaintenance, KindDDoSProtection, KindRateLimitExceeded, KindRequestTimeout:
		return CategoryTransient
	case KindInsufficientFunds, KindOrderNotFound, KindDuplicateOrderID:
		return CategoryBusiness
	default:
		return CategoryUnexpected
	}
}

// Retryable reports whether backing off and retrying can succeed.
func (k ErrorKind) Retryable() bool {
	return k.Category() == CategoryTransient
}

// Error is a classified adapter failure. It always names the adapter and
// keeps the raw response body when there was one.
type Error struct {
	Kind     ErrorKind
	Exchange string
	Message  string
	Status   int
	Code     string
	Body     string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Body
	}
	if e.Exchange == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Exchange, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind whose Exchange is empty or
// equal, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Exchange == "" || t.Exchange == e.Exchange)
}

// NewError builds a classified error.
func NewError(kind ErrorKind, exchange, format string, args ...any) *Error {
	return &Error{Kind: kind, Exchange: exchange, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or KindExchangeError for foreign errors.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindExchangeError, false
}

var (
	ErrExchangeError        = &Error{Kind: KindExchangeError}
	ErrAuthenticationError  = &Error{Kind: KindAuthenticationError}
	ErrPermissionDenied     = &Error{Kind: KindPermissionDenied}
	ErrAccountSuspended     = &Error{Kind: KindAccountSuspended}
	ErrInvalidNonce         = &Error{Kind: KindInvalidNonce}
	ErrArgumentsRequired    = &Error{Kind: KindArgumentsRequired}
	ErrBadRequest           = &Error{Kind: KindBadRequest}
	ErrBadSymbol            = &Error{Kind: KindBadSymbol}
	ErrInvalidOrder         = &Error{Kind: KindInvalidOrder}
	ErrInvalidAddress       = &Error{Kind: KindInvalidAddress}
	ErrNotSupported         = &Error{Kind: KindNotSupported}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrOrderNotFound        = &Error{Kind: KindOrderNotFound}
	ErrDuplicateOrderID     = &Error{Kind: KindDuplicateOrderID}
	ErrNetworkError         = &Error{Kind: KindNetworkError}
	ErrDDoSProtection       = &Error{Kind: KindDDoSProtection}
	ErrRateLimitExceeded    = &Error{Kind: KindRateLimitExceeded}
	ErrExchangeNotAvailable = &Error{Kind: KindExchangeNotAvailable}
	ErrOnMaintenance        = &Error{Kind: KindOnMaintenance}
	ErrRequestTimeout       = &Error{Kind: KindRequestTimeout}
)
