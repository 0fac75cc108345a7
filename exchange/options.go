package exchange

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exchangeflow/config"
	"exchangeflow/logger"
)

// Options configures one adapter instance. It is validated once by NewBase.
type Options struct {
	Exchange  config.ExchangeConfig
	Transport config.TransportConfig

	// HTTPClient replaces the pooled client built from Transport.
	HTTPClient *http.Client
	// Executor replaces the resty transport entirely.
	Executor Transport
	Logger   *logger.Log
	Now      func() time.Time
}

// OptionsFromConfig picks the settings of exchange out of cfg.
func OptionsFromConfig(cfg *config.Config, exchange string) Options {
	return Options{
		Exchange:  cfg.Exchanges[exchange],
		Transport: cfg.Transport,
	}
}

var validTimeInForce = map[string]bool{"": true, "GTC": true, "IOC": true, "FOK": true, "GTT": true}

// Validate reports the first invalid setting.
func (o Options) Validate() error {
	ex := o.Exchange
	if ex.BaseURL != "" {
		u, err := url.Parse(ex.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url %q is not an absolute URL", ex.BaseURL)
		}
	}
	if ex.APIKey != "" && ex.Secret == "" {
		return fmt.Errorf("secret is required when api_key is set")
	}
	if ex.RecvWindow < 0 {
		return fmt.Errorf("recv_window must not be negative")
	}
	if ex.RateLimit.RequestsPerSecond < 0 || ex.RateLimit.BurstSize < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if !validTimeInForce[strings.ToUpper(ex.TimeInForce)] {
		return fmt.Errorf("time_in_force %q is not one of GTC, IOC, FOK, GTT", ex.TimeInForce)
	}
	return nil
}
