package metrics

import "exchangeflow/logger"

// DropMetric identifies the metric name emitted when a queued item is dropped.
type DropMetric string

const (
	// DropMetricOrderBook records order books dropped before flattening.
	DropMetricOrderBook DropMetric = "orderbook_messages_dropped"
	// DropMetricTrades records trade batches dropped before flattening.
	DropMetricTrades DropMetric = "trade_messages_dropped"
	// DropMetricTickers records ticker snapshots dropped before flattening.
	DropMetricTickers DropMetric = "ticker_messages_dropped"
	// DropMetricRows records flattened batches dropped before a writer.
	DropMetricRows DropMetric = "row_batches_dropped"
)

// EmitDropMetric emits one dropped item. Empty metadata is omitted from the
// fields.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, symbol, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "queue_drops", string(metric), 1, "counter", fields)
}
