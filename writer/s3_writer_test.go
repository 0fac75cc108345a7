package writer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "exchangeflow/config"
	"exchangeflow/models"
)

type recordingPutter struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
	err  error
}

func (p *recordingPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, *in.Key)
	p.body = append(p.body, data)
	return &s3.PutObjectOutput{}, nil
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		App:       appconfig.AppConfig{Version: "test"},
		Collector: appconfig.CollectorConfig{FlushInterval: time.Hour},
		Storage: appconfig.StorageConfig{
			S3: appconfig.S3Config{Bucket: "market-data", Prefix: "/raw/"},
		},
	}
}

func tradeBatch(symbol string, n int, ts time.Time) models.RowBatch {
	rows := make([]models.TradeRow, n)
	for i := range rows {
		rows[i] = models.TradeRow{Exchange: "kucoin", Symbol: symbol, ID: "t", Timestamp: ts.UnixMilli(), Side: "buy", Price: 1, Amount: 2, Cost: 2}
	}
	return models.RowBatch{
		BatchID:     "0123456789abcdef",
		Kind:        models.DataTrades,
		Exchange:    "kucoin",
		Symbol:      symbol,
		Trades:      rows,
		RecordCount: n,
		Timestamp:   ts,
	}
}

func TestGenerateS3Key(t *testing.T) {
	w := newS3Writer(testConfig(), &recordingPutter{}, nil)
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	key := w.generateS3Key(tradeBatch("BTC/USDT", 1, ts))
	want := "raw/trades/exchange=kucoin/symbol=BTC-USDT/year=2024/month=03/day=09/hour=07/kucoin_trades_20240309070501_01234567.parquet"
	if key != want {
		t.Fatalf("key = %q\nwant  %q", key, want)
	}

	tickers := models.RowBatch{BatchID: "ab", Kind: models.DataTickers, Exchange: "upbit", Timestamp: ts}
	if key := w.generateS3Key(tickers); strings.Contains(key, "symbol=") {
		t.Fatalf("ticker keys should not carry a symbol partition: %q", key)
	}
}

func TestAddBatchMergesByKey(t *testing.T) {
	w := newS3Writer(testConfig(), &recordingPutter{}, nil)
	ts := time.Unix(1700000000, 0).UTC()

	w.addBatch(tradeBatch("BTC/USDT", 2, ts))
	w.addBatch(tradeBatch("BTC/USDT", 3, ts.Add(time.Second)))
	w.addBatch(tradeBatch("ETH/USDT", 1, ts))

	if len(w.buffer) != 2 {
		t.Fatalf("buffers = %d, want 2", len(w.buffer))
	}
	buf := w.buffer["trades|kucoin|BTC/USDT"]
	if buf == nil || buf.RecordCount != 5 || len(buf.Trades) != 5 {
		t.Fatalf("unexpected buffer: %+v", buf)
	}
	if !buf.Timestamp.Equal(ts.Add(time.Second)) {
		t.Fatalf("buffer timestamp should follow the latest batch")
	}
}

func TestFlushUploadsParquet(t *testing.T) {
	putter := &recordingPutter{}
	w := newS3Writer(testConfig(), putter, nil)
	w.addBatch(tradeBatch("BTC/USDT", 3, time.Unix(1700000000, 0).UTC()))

	w.flushBuffers(context.Background(), "test")

	if len(putter.keys) != 1 {
		t.Fatalf("uploads = %d, want 1", len(putter.keys))
	}
	data := putter.body[0]
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("upload is not a parquet file")
	}
	stats := w.Stats()
	if stats.FilesWritten != 1 || stats.BytesWritten != int64(len(data)) || stats.ErrorsCount != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(w.buffer) != 0 {
		t.Fatalf("buffers should be empty after a flush")
	}
}

func TestFlushCountsUploadErrors(t *testing.T) {
	w := newS3Writer(testConfig(), &recordingPutter{err: errors.New("denied")}, nil)
	w.addBatch(tradeBatch("BTC/USDT", 1, time.Now()))
	w.flushBuffers(context.Background(), "test")
	if w.Stats().ErrorsCount != 1 {
		t.Fatalf("upload failure should be counted")
	}
}

func TestEncodeParquetKinds(t *testing.T) {
	batches := []models.RowBatch{
		{Kind: models.DataOrderBook, OrderBooks: []models.OrderBookRow{{Exchange: "commex", Symbol: "BTC/USDT", Side: "bid", Price: 1, Amount: 1, Level: 1}}},
		{Kind: models.DataTickers, Tickers: []models.TickerRow{{Exchange: "indodax", Symbol: "BTC/IDR", Last: 5}}},
	}
	for _, b := range batches {
		data, err := encodeParquet(b)
		if err != nil {
			t.Fatalf("%s: %v", b.Kind, err)
		}
		if !bytes.HasPrefix(data, []byte("PAR1")) {
			t.Fatalf("%s: missing parquet magic", b.Kind)
		}
	}
	if _, err := encodeParquet(models.RowBatch{Kind: "funding"}); err == nil {
		t.Fatalf("unknown kind should fail")
	}
}

func TestS3WriterStartStop(t *testing.T) {
	rows := make(chan models.RowBatch, 1)
	putter := &recordingPutter{}
	w := newS3Writer(testConfig(), putter, rows)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	rows <- tradeBatch("BTC/USDT", 1, time.Now().UTC())
	deadline := time.Now().Add(time.Second)
	for w.Stats().BatchesWritten == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	w.Stop()

	if len(putter.keys) != 1 {
		t.Fatalf("shutdown should flush the buffer, uploads = %d", len(putter.keys))
	}
}
