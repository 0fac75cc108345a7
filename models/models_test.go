package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("fetch balance: %w", NewError(KindRateLimitExceeded, "kucoin", "too many requests"))
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected errors.Is to match sentinel: %v", err)
	}
	if errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("unexpected match on different kind")
	}
	if !errors.Is(err, &Error{Kind: KindRateLimitExceeded, Exchange: "kucoin"}) {
		t.Fatalf("expected match on same exchange")
	}
	if errors.Is(err, &Error{Kind: KindRateLimitExceeded, Exchange: "upbit"}) {
		t.Fatalf("unexpected match on other exchange")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindRateLimitExceeded {
		t.Fatalf("KindOf = %v %v", kind, ok)
	}
	if !kind.Retryable() {
		t.Fatalf("rate limit should be retryable")
	}
}

func TestErrorMessageCarriesExchangeAndBody(t *testing.T) {
	e := &Error{Kind: KindExchangeError, Exchange: "indodax", Body: `{"success":0}`}
	if got := e.Error(); got != `indodax ExchangeError: {"success":0}` {
		t.Fatalf("Error() = %q", got)
	}
}

func TestErrorKindNames(t *testing.T) {
	for k := KindExchangeError; k <= KindRequestTimeout; k++ {
		name := k.String()
		back, ok := ParseErrorKind(name)
		if !ok || back != k {
			t.Errorf("round trip of %d via %q failed", k, name)
		}
	}
	tests := map[ErrorKind]ErrorCategory{
		KindBadSymbol:           CategoryCaller,
		KindInvalidNonce:        CategoryAccount,
		KindOnMaintenance:       CategoryTransient,
		KindInsufficientFunds:   CategoryBusiness,
		KindExchangeError:       CategoryUnexpected,
		KindAuthenticationError: CategoryAccount,
	}
	for k, want := range tests {
		if got := k.Category(); got != want {
			t.Errorf("%s category = %s, want %s", k, got, want)
		}
	}
}

func TestOrderBookBest(t *testing.T) {
	ob := OrderBook{
		Bids: []OrderBookLevel{{Price: decimal.RequireFromString("100"), Amount: decimal.RequireFromString("1")}},
	}
	if bid, ok := ob.BestBid(); !ok || !bid.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("BestBid = %v %v", bid, ok)
	}
	if _, ok := ob.BestAsk(); ok {
		t.Fatalf("expected no ask")
	}
}
