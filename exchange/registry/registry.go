// Package registry builds adapters by exchange id.
package registry

import (
	"fmt"
	"sort"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/exchange/commex"
	"exchangeflow/exchange/indodax"
	"exchangeflow/exchange/kucoin"
	"exchangeflow/exchange/upbit"
)

// Constructor builds one adapter.
type Constructor func(opts exchange.Options) (exchange.Exchange, error)

var constructors = map[string]Constructor{
	commex.ID:  func(o exchange.Options) (exchange.Exchange, error) { return commex.New(o) },
	indodax.ID: func(o exchange.Options) (exchange.Exchange, error) { return indodax.New(o) },
	kucoin.ID:  func(o exchange.Options) (exchange.Exchange, error) { return kucoin.New(o) },
	upbit.ID:   func(o exchange.Options) (exchange.Exchange, error) { return upbit.New(o) },
}

// IDs lists the known exchange ids in order.
func IDs() []string {
	ids := make([]string, 0, len(constructors))
	for id := range constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds the adapter registered under id.
func New(id string, opts exchange.Options) (exchange.Exchange, error) {
	ctor, ok := constructors[id]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", id)
	}
	ex, err := ctor(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return ex, nil
}

// FromConfig builds every enabled exchange of cfg, keyed by id.
func FromConfig(cfg *config.Config) (map[string]exchange.Exchange, error) {
	out := make(map[string]exchange.Exchange)
	for _, id := range cfg.EnabledExchanges() {
		ex, err := New(id, exchange.OptionsFromConfig(cfg, id))
		if err != nil {
			return nil, err
		}
		out[id] = ex
	}
	return out, nil
}
