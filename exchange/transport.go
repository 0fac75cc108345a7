package exchange

import (
	"context"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"

	"exchangeflow/config"
)

// Request is the signed call handed to a Transport.
type Request struct {
	URL     string
	Method  string
	Headers http.Header
	Body    []byte
}

// Response is what a Transport returns for any HTTP status.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport executes one HTTP call. Non-2xx statuses are returned as a
// Response, not an error; errors are reserved for network failures.
type Transport interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// RestyTransport is the default Transport.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport wraps httpClient in a resty client without retries.
func NewRestyTransport(httpClient *http.Client) *RestyTransport {
	client := resty.NewWithClient(httpClient)
	client.SetRetryCount(0)
	return &RestyTransport{client: client}
}

func (t *RestyTransport) Execute(ctx context.Context, req Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaderMultiValues(map[string][]string(req.Headers))
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode(), Headers: resp.Header(), Body: resp.Body()}, nil
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds a pooled client from the transport config, binding
// outbound connections to LocalIP when set.
func NewHTTPClient(cfg config.TransportConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		}
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = userAgentTransport{agent: cfg.UserAgent, base: transport}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
	}
}
