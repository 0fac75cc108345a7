package writer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "exchangeflow/config"
	"exchangeflow/models"
)

type fakeKafka struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafka) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeKafka) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	cfg := &appconfig.Config{}
	if _, err := NewKafkaWriter(cfg, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
	cfg.Storage.Kafka.Brokers = []string{"localhost:9092"}
	if _, err := NewKafkaWriter(cfg, nil); err == nil {
		t.Fatalf("expected error without topic")
	}
}

func TestPublishEncodesBatch(t *testing.T) {
	fake := &fakeKafka{}
	kw := newKafkaWriter("rows", fake, nil)
	batch := tradeBatch("BTC/USDT", 2, time.Unix(1700000000, 0).UTC())

	kw.publish(context.Background(), batch)

	if len(fake.msgs) != 1 {
		t.Fatalf("messages = %d", len(fake.msgs))
	}
	msg := fake.msgs[0]
	if string(msg.Key) != "kucoin:BTC/USDT" {
		t.Fatalf("key = %q", msg.Key)
	}
	var got models.RowBatch
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != models.DataTrades || len(got.Trades) != 2 || got.RecordCount != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "trades" {
		t.Fatalf("unexpected headers: %+v", msg.Headers)
	}
	if s := kw.Stats(); s.BatchesWritten != 1 || s.BytesWritten != int64(len(msg.Value)) {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestPublishCountsErrors(t *testing.T) {
	kw := newKafkaWriter("rows", &fakeKafka{err: errors.New("broker down")}, nil)
	kw.publish(context.Background(), models.RowBatch{Kind: models.DataTickers, Exchange: "upbit"})
	if s := kw.Stats(); s.ErrorsCount != 1 || s.BatchesWritten != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestKafkaWriterRunAndStop(t *testing.T) {
	rows := make(chan models.RowBatch, 2)
	fake := &fakeKafka{}
	kw := newKafkaWriter("rows", fake, rows)
	ctx, cancel := context.WithCancel(context.Background())
	if err := kw.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := kw.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}

	rows <- models.RowBatch{Kind: models.DataTickers, Exchange: "upbit"}
	deadline := time.Now().Add(time.Second)
	for fake.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	kw.Stop()

	if fake.count() != 1 || !fake.closed {
		t.Fatalf("messages=%d closed=%v", fake.count(), fake.closed)
	}
	if string(fake.msgs[0].Key) != "upbit" {
		t.Fatalf("ticker batches are keyed by exchange, got %q", fake.msgs[0].Key)
	}
}
