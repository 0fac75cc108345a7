package metrics

import "exchangeflow/logger"

// WriterStats are the counters a storage writer keeps.
type WriterStats struct {
	BatchesWritten int64
	FilesWritten   int64
	BytesWritten   int64
	ErrorsCount    int64
	QueueLen       int
	QueueCap       int
}

// ErrorRate is the share of failed batches.
func (s WriterStats) ErrorRate() float64 {
	total := s.BatchesWritten + s.ErrorsCount
	if total == 0 {
		return 0
	}
	return float64(s.ErrorsCount) / float64(total)
}

// AvgBytesPerFile is zero until a file has been written.
func (s WriterStats) AvgBytesPerFile() float64 {
	if s.FilesWritten == 0 {
		return 0
	}
	return float64(s.BytesWritten) / float64(s.FilesWritten)
}

// ReportWriter logs the counters of the writer named component and exports
// them as exchangeflow_writer_stat gauges.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	register()

	values := []struct {
		name  string
		kind  string
		value float64
	}{
		{"batches_written", "counter", float64(stats.BatchesWritten)},
		{"files_written", "counter", float64(stats.FilesWritten)},
		{"bytes_written", "counter", float64(stats.BytesWritten)},
		{"errors_count", "counter", float64(stats.ErrorsCount)},
		{"error_rate", "gauge", stats.ErrorRate()},
		{"avg_bytes_per_file", "gauge", stats.AvgBytesPerFile()},
		{"writer_queue_length", "gauge", float64(stats.QueueLen)},
	}

	l := log.WithComponent(component)
	fields := logger.Fields{"queue_cap": stats.QueueCap}
	for _, v := range values {
		writerStat.WithLabelValues(component, v.name).Set(v.value)
		l.LogMetric(component, v.name, v.value, v.kind, logger.Fields{})
		fields[v.name] = v.value
	}

	entry := l.WithFields(fields)
	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}
	entry.Info(component + " metrics")
}
