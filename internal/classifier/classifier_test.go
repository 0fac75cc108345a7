package classifier

import (
	"errors"
	"testing"

	"exchangeflow/models"
)

var table = Table{
	Exact: map[string]models.ErrorKind{
		"400100":          models.KindBadRequest,
		"order not exist": models.KindOrderNotFound,
		"Order size below the minimum requirement.": models.KindInvalidOrder,
	},
	Broad: []Marker{
		{Substring: "order", Kind: models.KindInvalidOrder},
		{Substring: "Exceeded the access frequency", Kind: models.KindRateLimitExceeded},
	},
}

func TestExactBeatsBroad(t *testing.T) {
	e := table.Classify(Input{Exchange: "kucoin", Status: 200, Message: "order not exist"})
	if e.Kind != models.KindOrderNotFound {
		t.Fatalf("kind = %s, want OrderNotFound", e.Kind)
	}
	e = table.Classify(Input{Exchange: "kucoin", Status: 200, Message: "bad order"})
	if e.Kind != models.KindInvalidOrder {
		t.Fatalf("kind = %s, want InvalidOrder", e.Kind)
	}
}

func TestCodeCheckedBeforeMessage(t *testing.T) {
	e := table.Classify(Input{Status: 400, Code: "400100", Message: "order not exist"})
	if e.Kind != models.KindBadRequest {
		t.Fatalf("kind = %s, want BadRequest", e.Kind)
	}
}

func TestDeterministic(t *testing.T) {
	in := Input{Exchange: "kucoin", Status: 429, Code: "429000", Message: "Exceeded the access frequency"}
	first := table.Classify(in).Kind
	for i := 0; i < 20; i++ {
		if got := table.Classify(in).Kind; got != first {
			t.Fatalf("classification changed: %s then %s", first, got)
		}
	}
}

func TestStatusFallbackForUnknownCode(t *testing.T) {
	body := `{"code":"-1130","msg":"Too many requests."}`
	e := Table{}.Classify(Input{Exchange: "commex", Status: 429, Code: "-1130", Message: "Too many requests.", Body: body})
	if e.Kind != models.KindRateLimitExceeded {
		t.Fatalf("kind = %s, want RateLimitExceeded", e.Kind)
	}
	if !errors.Is(e, models.ErrRateLimitExceeded) || e.Exchange != "commex" || e.Body != body {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestStatusTable(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   models.ErrorKind
	}{
		{400, "", models.KindBadRequest},
		{401, "", models.KindAuthenticationError},
		{402, "", models.KindAuthenticationError},
		{403, "", models.KindPermissionDenied},
		{404, "", models.KindBadRequest},
		{500, "", models.KindExchangeError},
		{502, "", models.KindExchangeNotAvailable},
		{503, "system under maintenance", models.KindOnMaintenance},
		{503, "", models.KindExchangeNotAvailable},
		{504, "", models.KindRequestTimeout},
		{520, "cloudflare error", models.KindDDoSProtection},
		{418, "server busy, retry later", models.KindExchangeNotAvailable},
		{418, "teapot", models.KindExchangeError},
	}
	for _, tt := range tests {
		if got := (Table{}).Classify(Input{Status: tt.status, Body: tt.body}).Kind; got != tt.want {
			t.Errorf("status %d body %q = %s, want %s", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestFlaggedSuccessFallsThrough(t *testing.T) {
	e := Table{}.Classify(Input{Exchange: "indodax", Status: 200, Message: "strange", Body: `{"success":0,"error":"strange"}`})
	if e.Kind != models.KindExchangeError || e.Exchange != "indodax" {
		t.Fatalf("unexpected %+v", e)
	}
}

func TestBroadFallsBackToCode(t *testing.T) {
	named := Table{Broad: []Marker{{Substring: "insufficient_funds", Kind: models.KindInsufficientFunds}}}
	e := named.Classify(Input{Exchange: "upbit", Status: 400, Code: "insufficient_funds_bid", Message: "not enough KRW"})
	if e.Kind != models.KindInsufficientFunds {
		t.Fatalf("kind = %s, want InsufficientFunds", e.Kind)
	}
}

func TestBroadSearchesBodyWithoutMessage(t *testing.T) {
	named := Table{Broad: []Marker{{Substring: "insufficient balance", Kind: models.KindInsufficientFunds}}}
	e := named.Classify(Input{Exchange: "indodax", Status: 400, Body: "insufficient balance"})
	if e.Kind != models.KindInsufficientFunds {
		t.Fatalf("kind = %s, want InsufficientFunds", e.Kind)
	}

	// An extracted message keeps the body out of the search.
	e = named.Classify(Input{Exchange: "indodax", Status: 400, Message: "rejected", Body: `{"error":"rejected","hint":"insufficient balance"}`})
	if e.Kind != models.KindBadRequest {
		t.Fatalf("kind = %s, want BadRequest from status", e.Kind)
	}
}
