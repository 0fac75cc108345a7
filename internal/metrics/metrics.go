// Registers:
//
//	#exchangeflow_requests_total{exchange,method,outcome}
//	#exchangeflow_request_errors_total{exchange,kind}
//	#exchangeflow_request_duration_seconds{exchange,method}
//	#exchangeflow_collected_total{exchange,kind}
//	#exchangeflow_writer_stat{component,stat}
//	#go_* and process_* system metrics
//
// Exposes them on the configured listen address (default :2112/metrics)
// using the Prometheus HTTP handler.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exchangeflow/config"
	"exchangeflow/logger"
)

var (
	once            sync.Once
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	collectedTotal  *prometheus.CounterVec
	writerStat      *prometheus.GaugeVec

	features atomic.Pointer[config.MetricsConfig]
)

func init() {
	features.Store(&config.MetricsConfig{UsedWeight: true, QueueSize: true})
}

// Feature names gate optional metric families.
type Feature string

const (
	FeatureUsedWeight Feature = "used_weight"
	FeatureQueueSize  Feature = "queue_size"
)

// Configure applies the metric feature switches.
func Configure(cfg config.MetricsConfig) {
	c := cfg
	features.Store(&c)
}

// IsFeatureEnabled reports whether the optional metric family is on.
func IsFeatureEnabled(f Feature) bool {
	cfg := features.Load()
	if cfg == nil {
		return true
	}
	switch f {
	case FeatureUsedWeight:
		return cfg.UsedWeight
	case FeatureQueueSize:
		return cfg.QueueSize
	default:
		return true
	}
}

func register() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		requestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangeflow_requests_total",
				Help: "Number of REST calls made to exchanges",
			},
			[]string{"exchange", "method", "outcome"},
		)
		requestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangeflow_request_errors_total",
				Help: "Number of classified exchange errors by kind",
			},
			[]string{"exchange", "kind"},
		)
		requestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchangeflow_request_duration_seconds",
				Help:    "Latency of REST calls to exchanges",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"exchange", "method"},
		)
		collectedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchangeflow_collected_total",
				Help: "Number of order books and trades collected",
			},
			[]string{"exchange", "kind"},
		)

		writerStat = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exchangeflow_writer_stat",
				Help: "Latest counters reported by the storage writers",
			},
			[]string{"component", "stat"},
		)

		registry.MustRegister(requestsTotal, requestErrors, requestDuration, collectedTotal, writerStat)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Init registers the collectors and, when listen is non-empty, serves them
// on listen until the process exits.
func Init(listen string) {
	register()
	if listen == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		if err := http.ListenAndServe(listen, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
		}
	}()
}

// ObserveRequest records one REST call. kind is the error kind name, or ""
// on success.
func ObserveRequest(exchange, method string, duration time.Duration, kind string) {
	register()
	outcome := "ok"
	if kind != "" {
		outcome = "error"
		requestErrors.WithLabelValues(exchange, kind).Inc()
	}
	requestsTotal.WithLabelValues(exchange, method, outcome).Inc()
	requestDuration.WithLabelValues(exchange, method).Observe(duration.Seconds())
}

// IncrementCollected counts n collected items of kind ("orderbook",
// "trades") for exchange.
func IncrementCollected(exchange, kind string, n int) {
	register()
	collectedTotal.WithLabelValues(exchange, kind).Add(float64(n))
}
