package metrics

import (
	"testing"

	"exchangeflow/config"
	"exchangeflow/logger"
)

// capture registers a handler collecting events until the test ends.
func capture(t *testing.T) *[]Metric {
	t.Helper()
	var got []Metric
	id := RegisterMetricHandler(func(m Metric) { got = append(got, m) })
	t.Cleanup(func() { UnregisterMetricHandler(id) })
	return &got
}

func TestRegisterMetricHandlerIDs(t *testing.T) {
	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("nil handler got id %d", id)
	}
	first := RegisterMetricHandler(func(Metric) {})
	second := RegisterMetricHandler(func(Metric) {})
	defer UnregisterMetricHandler(first)
	defer UnregisterMetricHandler(second)
	if first == 0 || second == first {
		t.Fatalf("ids not unique: %d %d", first, second)
	}
}

func TestUnregisteredHandlerStopsReceiving(t *testing.T) {
	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	EmitMetric(nil, "collector", "snapshots", 1, "counter", nil)
	UnregisterMetricHandler(id)
	EmitMetric(nil, "collector", "snapshots", 1, "counter", nil)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestEmitMetricDispatches(t *testing.T) {
	got := capture(t)

	fields := logger.Fields{"exchange": "indodax", "unit": "count"}
	EmitMetric(logger.Logger(), "exchange", "request_count", 3, "gauge", fields)
	EmitMetric(nil, "flattener", "rows", 7, "", nil)
	EmitMetric(nil, "flattener", "", 1, "counter", nil)

	if len(*got) != 2 {
		t.Fatalf("events = %d, want 2", len(*got))
	}
	first := (*got)[0]
	if first.Component != "exchange" || first.Exchange != "indodax" || first.Name != "request_count" || first.Type != "gauge" {
		t.Fatalf("unexpected event: %+v", first)
	}
	if _, ok := first.Fields["metric"]; ok {
		t.Fatalf("log-only keys leaked into fields: %v", first.Fields)
	}
	if _, ok := fields["metric"]; ok {
		t.Fatalf("caller fields mutated: %v", fields)
	}
	if (*got)[1].Type != "counter" {
		t.Fatalf("default type = %q", (*got)[1].Type)
	}
}

func TestEmitMetricDisabledFeature(t *testing.T) {
	Configure(config.MetricsConfig{UsedWeight: false, QueueSize: false})
	t.Cleanup(func() { Configure(config.MetricsConfig{UsedWeight: true, QueueSize: true}) })
	got := capture(t)

	EmitMetric(nil, "rate_limit", "used_weight", 1, "gauge", nil)
	EmitMetric(nil, "channels", "raw_queue_length", 1, "gauge", nil)

	if len(*got) != 0 {
		t.Fatalf("disabled features emitted %d events", len(*got))
	}
}
