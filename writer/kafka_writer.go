package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "exchangeflow/config"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

// messageWriter is the part of kafka.Writer the KafkaWriter needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes every row batch as one JSON message keyed by
// exchange and symbol.
type KafkaWriter struct {
	topic   string
	rows    <-chan models.RowBatch
	writer  messageWriter
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	batchesWritten int64
	bytesWritten   int64
	errorsCount    int64
}

func NewKafkaWriter(cfg *appconfig.Config, rows <-chan models.RowBatch) (*KafkaWriter, error) {
	kcfg := cfg.Storage.Kafka
	if len(kcfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if kcfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	kw := newKafkaWriter(kcfg.Topic, &kafka.Writer{
		Addr:         kafka.TCP(kcfg.Brokers...),
		Topic:        kcfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    kcfg.BatchSize,
		BatchTimeout: kcfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}, rows)
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": kcfg.Brokers,
		"topic":   kcfg.Topic,
	}).Info("kafka writer initialized")
	return kw, nil
}

func newKafkaWriter(topic string, w messageWriter, rows <-chan models.RowBatch) *KafkaWriter {
	return &KafkaWriter{
		topic:  topic,
		rows:   rows,
		writer: w,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	kw.wg.Add(1)
	go kw.run()

	return nil
}

func (kw *KafkaWriter) run() {
	defer kw.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-kw.ctx.Done():
			return
		case <-ticker.C:
			metrics.ReportWriter(kw.log, "kafka_writer", kw.Stats())
		case batch, ok := <-kw.rows:
			if !ok {
				return
			}
			kw.publish(kw.ctx, batch)
		}
	}
}

// messageKey keeps the batches of one market on one partition.
func messageKey(batch models.RowBatch) []byte {
	if batch.Symbol == "" {
		return []byte(batch.Exchange)
	}
	return []byte(batch.Exchange + ":" + batch.Symbol)
}

func (kw *KafkaWriter) publish(ctx context.Context, batch models.RowBatch) {
	log := kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"batch_id": batch.BatchID,
		"kind":     string(batch.Kind),
		"exchange": batch.Exchange,
		"records":  batch.RecordCount,
	})

	data, err := json.Marshal(batch)
	if err != nil {
		kw.countError()
		log.WithError(err).Warn("failed to marshal batch")
		return
	}
	msg := kafka.Message{
		Key:   messageKey(batch),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(batch.Kind)},
			{Key: "exchange", Value: []byte(batch.Exchange)},
		},
	}

	start := time.Now()
	if err := kw.writer.WriteMessages(ctx, msg); err != nil {
		kw.countError()
		log.WithError(err).Warn("failed to write message")
		return
	}

	kw.mu.Lock()
	kw.batchesWritten++
	kw.bytesWritten += int64(len(data))
	kw.mu.Unlock()

	logger.LogPerformanceEntry(log, "kafka_writer", "write_messages", time.Since(start), logger.Fields{"topic": kw.topic})
	logger.LogDataFlowEntry(log, "writer", "kafka", batch.RecordCount, string(batch.Kind))
}

func (kw *KafkaWriter) countError() {
	kw.mu.Lock()
	kw.errorsCount++
	kw.mu.Unlock()
}

func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	kw.wg.Wait()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	metrics.ReportWriter(kw.log, "kafka_writer", kw.Stats())
	kw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}

// Stats returns the writer counters. Every batch is one message, so files
// written stays zero.
func (kw *KafkaWriter) Stats() metrics.WriterStats {
	kw.mu.RLock()
	defer kw.mu.RUnlock()
	return metrics.WriterStats{
		BatchesWritten: kw.batchesWritten,
		BytesWritten:   kw.bytesWritten,
		ErrorsCount:    kw.errorsCount,
		QueueLen:       len(kw.rows),
		QueueCap:       cap(kw.rows),
	}
}
