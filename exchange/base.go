package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"exchangeflow/config"
	"exchangeflow/internal/classifier"
	"exchangeflow/internal/metrics"
	ratemetrics "exchangeflow/internal/metrics/rate"
	"exchangeflow/internal/normalizer"
	"exchangeflow/internal/safe"
	"exchangeflow/logger"
	"exchangeflow/models"
)

// ErrorExtractor inspects a decoded response for a vendor error. failed is
// set when the body reports an error even on HTTP 200.
type ErrorExtractor func(status int, body any) (code, message string, failed bool)

// MarketsLoader fetches the full market list from the vendor.
type MarketsLoader func(ctx context.Context) ([]models.Market, error)

// Base is embedded by every adapter. It runs the request pipeline and owns
// the market cache; adapters supply the signer, the error table, the error
// extractor and the markets loader.
type Base struct {
	Unsupported

	BaseURL    string
	Config     config.ExchangeConfig
	Transport  Transport
	Signer     Signer
	Errors     classifier.Table
	Normalizer *normalizer.Normalizer
	Extract    ErrorExtractor
	Loader     MarketsLoader

	log     *logger.Log
	entry   *logger.Entry
	limiter *rate.Limiter
	nonce   Nonce
	now     func() time.Time

	marketsMu   sync.Mutex
	markets     map[string]*models.Market
	marketsByID map[string]*models.Market
	currencies  map[string]models.Currency

	ordersMu sync.Mutex
	orders   map[string]models.Order
}

// NewBase validates opts and builds the shared part of adapter id.
// defaultURL is used when the config carries no base_url.
func NewBase(id, defaultURL string, opts Options) (*Base, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid options: %w", id, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	transport := opts.Executor
	if transport == nil {
		client := opts.HTTPClient
		if client == nil {
			client = NewHTTPClient(opts.Transport)
		}
		transport = NewRestyTransport(client)
	}

	baseURL := strings.TrimRight(opts.Exchange.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}

	b := &Base{
		Unsupported: Unsupported{Exchange: id},
		BaseURL:     baseURL,
		Config:      opts.Exchange,
		Transport:   transport,
		log:         log,
		entry:       log.WithExchange(id),
		now:         now,
		nonce:       Nonce{Now: now},
		orders:      make(map[string]models.Order),
	}
	b.Normalizer = normalizer.New(id, b)

	if rl := opts.Exchange.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.BurstSize
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}
	return b, nil
}

// ID returns the adapter id.
func (b *Base) ID() string { return b.Exchange }

// Logger returns the adapter's log entry.
func (b *Base) Logger() *logger.Entry { return b.entry }

// Now returns the adapter clock.
func (b *Base) Now() time.Time { return b.now() }

// Milliseconds returns the adapter clock in Unix milliseconds.
func (b *Base) Milliseconds() int64 { return b.now().UnixMilli() }

// Nonce returns a strictly increasing millisecond nonce.
func (b *Base) Nonce() int64 { return b.nonce.Next() }

// Request runs call through the pipeline: rate limiter, signer, transport,
// quota headers, JSON decode and error classification. It returns the
// decoded body of a successful call.
func (b *Base) Request(ctx context.Context, call Call) (any, error) {
	if call.Access == Private && !b.Config.HasCredentials() {
		return nil, models.NewError(models.KindAuthenticationError, b.Exchange, "%s requires api_key and secret", call.Path)
	}

	if b.limiter != nil {
		weight := call.Weight
		if weight < 1 {
			weight = 1
		}
		if weight > b.limiter.Burst() {
			weight = b.limiter.Burst()
		}
		if err := b.limiter.WaitN(ctx, weight); err != nil {
			return nil, b.transportError(call, err)
		}
	}

	req, err := b.Signer.Sign(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%s: sign %s: %w", b.Exchange, call.Path, err)
	}

	start := time.Now()
	resp, err := b.Transport.Execute(ctx, req)
	duration := time.Since(start)
	if err != nil {
		cerr := b.transportError(call, err)
		b.observe(call, duration, cerr)
		return nil, cerr
	}

	ratemetrics.ReportUsedWeight(b.log, b.Exchange, call.Path, resp.Headers)

	var parsed any
	var decodeErr error
	if len(strings.TrimSpace(string(resp.Body))) > 0 {
		parsed, decodeErr = safe.Decode(resp.Body)
	}

	var code, message string
	failed := false
	if decodeErr == nil && b.Extract != nil {
		code, message, failed = b.Extract(resp.Status, parsed)
	}

	if resp.Status < 200 || resp.Status >= 300 || failed {
		cerr := b.Errors.Classify(classifier.Input{
			Exchange: b.Exchange,
			Status:   resp.Status,
			Code:     code,
			Message:  message,
			Body:     string(resp.Body),
		})
		ratemetrics.ReportLimitFromMessage(b.log, b.Exchange, "", call.Path, cerr.Message)
		b.observe(call, duration, cerr)
		return nil, cerr
	}

	if decodeErr != nil {
		cerr := &models.Error{
			Kind:     models.KindExchangeError,
			Exchange: b.Exchange,
			Message:  "malformed response",
			Status:   resp.Status,
			Body:     string(resp.Body),
			Err:      decodeErr,
		}
		b.observe(call, duration, cerr)
		return nil, cerr
	}

	b.observe(call, duration, nil)
	return parsed, nil
}

func (b *Base) transportError(call Call, err error) *models.Error {
	kind := models.KindNetworkError
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindRequestTimeout
	}
	return &models.Error{
		Kind:     kind,
		Exchange: b.Exchange,
		Message:  fmt.Sprintf("%s %s", call.Method, call.Path),
		Err:      err,
	}
}

func (b *Base) observe(call Call, duration time.Duration, err *models.Error) {
	kind := ""
	if err != nil {
		kind = err.Kind.String()
	}
	metrics.ObserveRequest(b.Exchange, call.Path, duration, kind)
	logger.RecordRequest(b.Exchange, err != nil)

	fields := logger.Fields{"method": call.Method, "endpoint": call.Path}
	if err != nil {
		fields["kind"] = kind
		fields["status"] = err.Status
		b.entry.WithFields(fields).WithError(err).Warn("request failed")
	}
	logger.LogPerformanceEntry(b.entry, "exchange", "request", duration, fields)
}
