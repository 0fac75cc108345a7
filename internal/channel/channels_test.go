package channel

import (
	"context"
	"testing"
	"time"

	"exchangeflow/models"
)

func TestSendRawDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()
	snap := models.Snapshot{Exchange: "kucoin", Symbol: "BTC/USDT", Kind: models.DataTrades}

	if !c.SendRaw(ctx, snap) {
		t.Fatalf("first send should be queued")
	}
	if c.SendRaw(ctx, snap) {
		t.Fatalf("second send should be dropped")
	}
	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendRowsFansOut(t *testing.T) {
	c := NewChannels(1, 1)
	s3 := c.AddSink("s3")
	kafka := c.AddSink("kafka")
	if again := c.AddSink("s3"); again != s3 {
		t.Fatalf("adding a sink twice should return the same queue")
	}

	batch := models.RowBatch{BatchID: "b1", Exchange: "upbit", RecordCount: 3}
	if n := c.SendRows(context.Background(), batch); n != 2 {
		t.Fatalf("accepted = %d, want 2", n)
	}
	if got := (<-s3).BatchID; got != "b1" {
		t.Fatalf("s3 got %q", got)
	}
	if got := (<-kafka).BatchID; got != "b1" {
		t.Fatalf("kafka got %q", got)
	}

	c.SendRows(context.Background(), batch)
	<-s3
	if n := c.SendRows(context.Background(), batch); n != 1 {
		t.Fatalf("accepted = %d, want 1 with kafka full", n)
	}
	if stats := c.GetStats(); stats.RowsDropped != 1 || stats.RowsSent != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGaugesAndClose(t *testing.T) {
	c := NewChannels(2, 2)
	c.AddSink("kafka")
	g := c.Gauges()
	if len(g) != 2 {
		t.Fatalf("gauges = %d, want 2", len(g))
	}
	if _, capacity := g["raw"](); capacity != 2 {
		t.Fatalf("raw capacity = %d", capacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.StartMetricsReporting(ctx, 5*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	cancel()
	c.Close()
}
