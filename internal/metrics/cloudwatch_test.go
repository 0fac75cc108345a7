package metrics

import (
	"context"
	"testing"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"exchangeflow/logger"
)

type recordingPublisher struct {
	batches [][]cwtypes.MetricDatum
}

func stubCloudWatch(t *testing.T, interval time.Duration, now time.Time) (*recordingPublisher, *time.Time) {
	t.Helper()
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: nopClient{}, namespace: "test"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	original := cloudWatchPublishInterval
	cloudWatchPublishInterval = interval
	t.Cleanup(func() { cloudWatchPublishInterval = original })

	clock := now
	timeNow = func() time.Time { return clock }
	t.Cleanup(func() { timeNow = time.Now })

	rec := &recordingPublisher{}
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copied := make([]cwtypes.MetricDatum, len(data))
		copy(copied, data)
		rec.batches = append(rec.batches, copied)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return rec, &clock
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	base := time.Now()
	rec, clock := stubCloudWatch(t, 50*time.Millisecond, base)

	metric := Metric{Component: "exchange", Name: "requests", Timestamp: base, Fields: logger.Fields{"unit": "count", "exchange": "kucoin"}}
	publishMetricDatum(metric, 1)

	*clock = base.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(rec.batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(rec.batches))
	}
	datum := rec.batches[0][0]
	if datum.MetricName == nil || *datum.MetricName != "requests" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
	if len(datum.Dimensions) != 2 {
		t.Fatalf("expected component and exchange dimensions, got %d", len(datum.Dimensions))
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	base := time.Now()
	rec, clock := stubCloudWatch(t, 50*time.Millisecond, base)

	metric := Metric{Component: "exchange", Name: "requests", Timestamp: base, Fields: logger.Fields{"unit": "percent"}}
	publishMetricDatum(metric, 1)

	*clock = base.Add(75 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(rec.batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(rec.batches))
	}
	datum := rec.batches[1][0]
	if datum.Value == nil || *datum.Value != 2 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
	if datum.Unit != cwtypes.StandardUnitPercent {
		t.Fatalf("unexpected unit: %s", datum.Unit)
	}
}

func TestPublishWithoutClientIsNoop(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(context.Context, *cloudWatchState, []cwtypes.MetricDatum) { called = true }
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "x", Name: "y"}, 1)
	if called {
		t.Fatal("publish should be skipped without a client")
	}
}
