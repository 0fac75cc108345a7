package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"exchangeflow/logger"
)

// Metric is one emitted metric event. Exchange is lifted from the
// "exchange" field when present.
type Metric struct {
	Timestamp time.Time
	Component string
	Exchange  string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler receives every metric event, e.g. the gateway's history.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registration; zero means none.
type MetricHandlerID uint64

type registeredHandler struct {
	id MetricHandlerID
	fn MetricHandler
}

// Registrations are copy-on-write so dispatch never takes a lock.
var (
	handlersMu sync.Mutex
	handlers   atomic.Pointer[[]registeredHandler]
	lastID     MetricHandlerID
)

func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()

	lastID++
	next := append(currentHandlers(), registeredHandler{id: lastID, fn: handler})
	handlers.Store(&next)
	return lastID
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()

	current := currentHandlers()
	next := make([]registeredHandler, 0, len(current))
	for _, h := range current {
		if h.id != id {
			next = append(next, h)
		}
	}
	handlers.Store(&next)
}

// currentHandlers returns a copy of the registrations.
func currentHandlers() []registeredHandler {
	p := handlers.Load()
	if p == nil {
		return nil
	}
	return append([]registeredHandler(nil), (*p)...)
}

func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	own := make(logger.Fields, len(fields))
	for k, v := range fields {
		own[k] = v
	}
	exchange, _ := own["exchange"].(string)

	log.WithComponent(component).WithFields(own).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Debug("metric")

	m := Metric{
		Timestamp: time.Now(),
		Component: component,
		Exchange:  exchange,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    own,
	}
	if p := handlers.Load(); p != nil {
		for _, h := range *p {
			h.fn(m)
		}
	}
	return m, true
}
