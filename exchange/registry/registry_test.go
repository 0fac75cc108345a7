package registry

import (
	"testing"

	"exchangeflow/config"
	"exchangeflow/exchange"
)

func TestNewBuildsEveryAdapter(t *testing.T) {
	for _, id := range IDs() {
		ex, err := New(id, exchange.Options{})
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if ex.ID() != id {
			t.Fatalf("ID() = %q, want %q", ex.ID(), id)
		}
	}
	if len(IDs()) != len(config.SupportedExchanges) {
		t.Fatalf("registry and config disagree on the exchange list: %v vs %v", IDs(), config.SupportedExchanges)
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("binance", exchange.Options{}); err == nil {
		t.Fatalf("expected error for an unknown id")
	}
}

func TestFromConfigOnlyEnabled(t *testing.T) {
	cfg := &config.Config{Exchanges: map[string]config.ExchangeConfig{
		"upbit":   {Enabled: true},
		"indodax": {Enabled: false},
		"kucoin":  {Enabled: true, BaseURL: "https://openapi-sandbox.kucoin.com"},
	}}
	got, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(got) != 2 || got["upbit"] == nil || got["kucoin"] == nil {
		t.Fatalf("unexpected adapters: %v", got)
	}
}

func TestFromConfigInvalidOptions(t *testing.T) {
	cfg := &config.Config{Exchanges: map[string]config.ExchangeConfig{
		"commex": {Enabled: true, BaseURL: "not a url"},
	}}
	if _, err := FromConfig(cfg); err == nil {
		t.Fatalf("expected invalid base_url to fail")
	}
}
