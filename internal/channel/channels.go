package channel

import (
	"context"
	"sort"
	"sync"
	"time"

	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

type ChannelStats struct {
	RawSent     int64
	RawDropped  int64
	RowsSent    int64
	RowsDropped int64
}

// Channels connects the collector to the processor (Raw) and the processor
// to every registered writer. Each sink receives its own copy of a batch.
type Channels struct {
	Raw chan models.Snapshot

	sinks      map[string]chan models.RowBatch
	sinkSize   int
	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, rowBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:      make(chan models.Snapshot, rawBufferSize),
		sinks:    make(map[string]chan models.RowBatch),
		sinkSize: rowBufferSize,
		log:      log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size": rawBufferSize,
		"row_buffer_size": rowBufferSize,
	}).Info("channels initialized")

	return c
}

// AddSink registers a writer queue under name and returns its receive side.
// Sinks must be added before the processor starts.
func (c *Channels) AddSink(name string) <-chan models.RowBatch {
	c.statsMutex.Lock()
	defer c.statsMutex.Unlock()
	if ch, ok := c.sinks[name]; ok {
		return ch
	}
	ch := make(chan models.RowBatch, c.sinkSize)
	c.sinks[name] = ch
	return ch
}

func (c *Channels) Close() {
	close(c.Raw)
	c.statsMutex.Lock()
	for _, ch := range c.sinks {
		close(ch)
	}
	c.statsMutex.Unlock()
	c.log.WithComponent("channels").Info("channels closed")
}

func dropMetricFor(kind models.DataKind) metrics.DropMetric {
	switch kind {
	case models.DataTrades:
		return metrics.DropMetricTrades
	case models.DataTickers:
		return metrics.DropMetricTickers
	}
	return metrics.DropMetricOrderBook
}

// SendRaw queues a snapshot without blocking. A full queue drops it.
func (c *Channels) SendRaw(ctx context.Context, snap models.Snapshot) bool {
	select {
	case c.Raw <- snap:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("raw", snap.Size())
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, dropMetricFor(snap.Kind), snap.Exchange, snap.Symbol, "raw")
		return false
	}
}

// SendRows offers batch to every sink and reports how many accepted it.
func (c *Channels) SendRows(ctx context.Context, batch models.RowBatch) int {
	c.statsMutex.RLock()
	names := make([]string, 0, len(c.sinks))
	for name := range c.sinks {
		names = append(names, name)
	}
	c.statsMutex.RUnlock()
	sort.Strings(names)

	accepted := 0
	for _, name := range names {
		c.statsMutex.RLock()
		ch := c.sinks[name]
		c.statsMutex.RUnlock()

		select {
		case ch <- batch:
			accepted++
			c.statsMutex.Lock()
			c.stats.RowsSent++
			c.statsMutex.Unlock()
			logger.RecordChannelMessage(name, batch.RecordCount)
		case <-ctx.Done():
			return accepted
		default:
			c.statsMutex.Lock()
			c.stats.RowsDropped++
			c.statsMutex.Unlock()
			metrics.EmitDropMetric(c.log, metrics.DropMetricRows, batch.Exchange, batch.Symbol, name)
		}
	}
	return accepted
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// Gauges exposes the queue depths for metrics.StartQueueMetrics.
func (c *Channels) Gauges() map[string]metrics.Gauge {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	g := map[string]metrics.Gauge{"raw": metrics.ChanGauge(c.Raw)}
	for name, ch := range c.sinks {
		g[name] = metrics.ChanGauge(ch)
	}
	return g
}

// StartMetricsReporting logs the channel counters every interval until ctx
// is done.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()
	fields := logger.Fields{
		"raw_sent":     stats.RawSent,
		"raw_dropped":  stats.RawDropped,
		"rows_sent":    stats.RowsSent,
		"rows_dropped": stats.RowsDropped,
		"raw_len":      len(c.Raw),
		"raw_cap":      cap(c.Raw),
	}
	c.statsMutex.RLock()
	for name, ch := range c.sinks {
		fields[name+"_len"] = len(ch)
	}
	c.statsMutex.RUnlock()
	c.log.WithComponent("channels").WithFields(fields).Info("channel statistics")
}
