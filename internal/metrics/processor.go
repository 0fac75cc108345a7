package metrics

import "exchangeflow/logger"

// ProcessorStats holds counters for the flattening processor.
type ProcessorStats struct {
	BooksProcessed  int64
	TradesProcessed int64
	RowsProduced    int64
	ErrorsCount     int64
	QueueLen        int
	QueueCap        int
}

// ReportProcessor emits metrics for the flattening processor.
func ReportProcessor(log *logger.Log, stats ProcessorStats) {
	l := log.WithComponent("processor")

	inputs := stats.BooksProcessed + stats.TradesProcessed
	errorRate := float64(0)
	if inputs+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(inputs+stats.ErrorsCount)
	}
	avgRows := float64(0)
	if inputs > 0 {
		avgRows = float64(stats.RowsProduced) / float64(inputs)
	}

	l.LogMetric("processor", "books_processed", stats.BooksProcessed, "counter", logger.Fields{})
	l.LogMetric("processor", "trades_processed", stats.TradesProcessed, "counter", logger.Fields{})
	l.LogMetric("processor", "rows_produced", stats.RowsProduced, "counter", logger.Fields{})
	l.LogMetric("processor", "error_rate", errorRate, "gauge", logger.Fields{})

	l.WithFields(logger.Fields{
		"books_processed":  stats.BooksProcessed,
		"trades_processed": stats.TradesProcessed,
		"rows_produced":    stats.RowsProduced,
		"errors_count":     stats.ErrorsCount,
		"error_rate":       errorRate,
		"avg_rows":         avgRows,
		"queue_len":        stats.QueueLen,
		"queue_cap":        stats.QueueCap,
	}).Info("processor metrics")
}
