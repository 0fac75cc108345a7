package metrics

import (
	"context"
	"time"

	"exchangeflow/logger"
)

// Gauge reports the current length and capacity of a queue.
type Gauge func() (length, capacity int)

// ChanGauge adapts a channel to a Gauge.
func ChanGauge[T any](ch chan T) Gauge {
	return func() (int, int) { return len(ch), cap(ch) }
}

// StartQueueMetrics emits occupancy of the named queues every interval until
// ctx is cancelled. A non-positive interval means one second.
func StartQueueMetrics(ctx context.Context, queues map[string]Gauge, interval time.Duration) {
	if !IsFeatureEnabled(FeatureQueueSize) || len(queues) == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitQueueSizes(log, queues)
			}
		}
	}()
}

func emitQueueSizes(log *logger.Log, queues map[string]Gauge) {
	for name, gauge := range queues {
		if gauge == nil {
			continue
		}
		length, capacity := gauge()
		EmitMetric(log, "queues", name+"_queue_length", length, "gauge", logger.Fields{
			"queue":    name,
			"capacity": capacity,
		})
	}
}
