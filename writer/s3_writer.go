package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "exchangeflow/config"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

// objectPutter is the part of the S3 client the writer needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer buffers row batches per kind, exchange and symbol and uploads
// each buffer as one parquet object when the flush interval elapses.
type S3Writer struct {
	config        appconfig.S3Config
	version       string
	flushInterval time.Duration
	rows          <-chan models.RowBatch
	client        objectPutter
	ctx           context.Context
	wg            *sync.WaitGroup
	mu            sync.RWMutex
	running       bool
	log           *logger.Log
	buffer        map[string]*models.RowBatch
	now           func() time.Time

	// Metrics
	batchesWritten int64
	filesWritten   int64
	bytesWritten   int64
	errorsCount    int64
}

// NewS3Writer loads the AWS configuration and builds the S3 client. Static
// keys from the config take precedence over the default chain.
func NewS3Writer(cfg *appconfig.Config, rows <-chan models.RowBatch) (*S3Writer, error) {
	log := logger.GetLogger()
	ctx := context.Background()
	s3cfg := cfg.Storage.S3

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s3cfg.Region),
	}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	w := newS3Writer(cfg, client, rows)
	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":     s3cfg.Bucket,
		"region":     s3cfg.Region,
		"endpoint":   s3cfg.Endpoint,
		"path_style": s3cfg.PathStyle,
	}).Info("s3 writer initialized")
	return w, nil
}

func newS3Writer(cfg *appconfig.Config, client objectPutter, rows <-chan models.RowBatch) *S3Writer {
	interval := cfg.Collector.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &S3Writer{
		config:        cfg.Storage.S3,
		version:       cfg.App.Version,
		flushInterval: interval,
		rows:          rows,
		client:        client,
		wg:            &sync.WaitGroup{},
		log:           logger.GetLogger(),
		buffer:        make(map[string]*models.RowBatch),
		now:           time.Now,
	}
}

func (w *S3Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("s3 writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"operation":      "start",
		"flush_interval": w.flushInterval.String(),
	}).Info("starting s3 writer")

	w.wg.Add(2)
	go w.worker()
	go w.flushWorker()
	return nil
}

// Stop waits for the workers, which flush what is buffered on the way out.
func (w *S3Writer) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("s3_writer").Info("stopping s3 writer")
	w.wg.Wait()
	metrics.ReportWriter(w.log, "s3_writer", w.Stats())
	w.log.WithComponent("s3_writer").Info("s3 writer stopped")
}

func (w *S3Writer) worker() {
	defer w.wg.Done()

	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{"worker": "s3_writer"})
	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.rows:
			if !ok {
				log.Info("row channel closed, worker stopping")
				return
			}
			w.addBatch(batch)
		}
	}
}

func bufferKey(batch models.RowBatch) string {
	return fmt.Sprintf("%s|%s|%s", batch.Kind, batch.Exchange, batch.Symbol)
}

func (w *S3Writer) addBatch(batch models.RowBatch) {
	key := bufferKey(batch)
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, ok := w.buffer[key]
	if !ok {
		buf = &models.RowBatch{
			BatchID:  uuid.New().String(),
			Kind:     batch.Kind,
			Exchange: batch.Exchange,
			Symbol:   batch.Symbol,
		}
		w.buffer[key] = buf
	}
	buf.OrderBooks = append(buf.OrderBooks, batch.OrderBooks...)
	buf.Trades = append(buf.Trades, batch.Trades...)
	buf.Tickers = append(buf.Tickers, batch.Tickers...)
	buf.RecordCount += batch.RecordCount
	if batch.Timestamp.After(buf.Timestamp) {
		buf.Timestamp = batch.Timestamp
	}
	w.batchesWritten++
}

func (w *S3Writer) flushWorker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	metricsTicker := time.NewTicker(30 * time.Second)
	defer metricsTicker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers(context.WithoutCancel(w.ctx), "shutdown")
			return
		case <-ticker.C:
			w.flushBuffers(w.ctx, "interval")
		case <-metricsTicker.C:
			metrics.ReportWriter(w.log, "s3_writer", w.Stats())
		}
	}
}

func (w *S3Writer) flushBuffers(ctx context.Context, reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string]*models.RowBatch)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for _, batch := range buffers {
		if batch.RecordCount == 0 {
			continue
		}
		if batch.Timestamp.IsZero() {
			batch.Timestamp = w.now().UTC()
		}
		w.processBatch(ctx, *batch)
	}
}

func (w *S3Writer) processBatch(ctx context.Context, batch models.RowBatch) {
	key := w.generateS3Key(batch)
	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"kind":         string(batch.Kind),
		"exchange":     batch.Exchange,
		"symbol":       batch.Symbol,
		"record_count": batch.RecordCount,
		"s3_key":       key,
		"operation":    "process_batch",
	})

	start := time.Now()
	data, err := encodeParquet(batch)
	if err != nil {
		w.countError()
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.upload(ctx, key, data); err != nil {
		w.countError()
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Bucket}).
			Error("failed to upload to S3")
		return
	}

	w.mu.Lock()
	w.filesWritten++
	w.bytesWritten += int64(len(data))
	w.mu.Unlock()

	logger.LogPerformanceEntry(log, "s3_writer", "upload", time.Since(start), logger.Fields{"file_size": len(data)})
	logger.LogDataFlowEntry(log, "writer", "s3", batch.RecordCount, string(batch.Kind))
}

func (w *S3Writer) countError() {
	w.mu.Lock()
	w.errorsCount++
	w.mu.Unlock()
}

// symbolPath makes a unified symbol safe for an object key.
func symbolPath(symbol string) string {
	return strings.NewReplacer("/", "-", ":", "_").Replace(symbol)
}

// generateS3Key lays objects out as
// prefix/kind/exchange=x/[symbol=y/]year=/month=/day=/hour=/file.parquet.
func (w *S3Writer) generateS3Key(batch models.RowBatch) string {
	ts := batch.Timestamp.UTC()

	parts := []string{}
	if w.config.Prefix != "" {
		parts = append(parts, strings.Trim(w.config.Prefix, "/"))
	}
	parts = append(parts, string(batch.Kind), "exchange="+batch.Exchange)
	if batch.Symbol != "" {
		parts = append(parts, "symbol="+symbolPath(batch.Symbol))
	}
	parts = append(parts,
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", ts.Month()),
		fmt.Sprintf("day=%02d", ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
	)

	id := batch.BatchID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s_%s_%s_%s.parquet", batch.Exchange, batch.Kind, ts.Format("20060102150405"), id)
	return path.Join(append(parts, name)...)
}

func (w *S3Writer) upload(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":         "parquet",
			"compression":          "snappy",
			"exchangeflow-version": w.version,
		},
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Bucket, err)
	}
	return nil
}

// Stats returns the writer counters.
func (w *S3Writer) Stats() metrics.WriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return metrics.WriterStats{
		BatchesWritten: w.batchesWritten,
		FilesWritten:   w.filesWritten,
		BytesWritten:   w.bytesWritten,
		ErrorsCount:    w.errorsCount,
		QueueLen:       len(w.rows),
		QueueCap:       cap(w.rows),
	}
}
