package main

import (
	"context"
	"fmt"
	"time"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/internal/channel"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/processor"
	"exchangeflow/reader"
	"exchangeflow/server"
	"exchangeflow/writer"
)

const (
	queueMetricsInterval = 30 * time.Second
	drainTimeout         = 10 * time.Second
)

type sink interface {
	Start(ctx context.Context) error
	Stop()
}

// collect runs collector -> flattener -> writers until ctx is cancelled,
// then stops the stages front to back so buffered rows reach the sinks.
func collect(ctx context.Context, cfg *config.Config, exchanges map[string]exchange.Exchange) error {
	log := logger.GetLogger()

	if !cfg.Collector.Enabled {
		return fmt.Errorf("collector is disabled in the configuration")
	}

	channels := channel.NewChannels(cfg.Collector.Buffer, cfg.Collector.Buffer)

	var sinks []sink
	if cfg.Storage.S3.Enabled {
		w, err := writer.NewS3Writer(cfg, channels.AddSink("s3"))
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
	}
	if cfg.Storage.Kafka.Enabled {
		w, err := writer.NewKafkaWriter(cfg, channels.AddSink("kafka"))
		if err != nil {
			return err
		}
		sinks = append(sinks, w)
	}
	if len(sinks) == 0 {
		log.WithComponent("main").Warn("no storage sink enabled; rows are flattened and discarded")
	}

	// Writers outlive the collecting stages so the final flush has a reader.
	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()

	for _, s := range sinks {
		if err := s.Start(sinkCtx); err != nil {
			return err
		}
	}

	// Flattener workers exit only on cancellation.
	stageCtx, cancelStages := context.WithCancel(ctx)
	defer cancelStages()

	flattener := processor.NewFlattener(cfg.Collector, channels)
	if err := flattener.Start(stageCtx); err != nil {
		stopSinks(sinks, cancelSinks)
		return err
	}
	collector := reader.NewCollector(cfg, exchanges, channels)
	if err := collector.Start(stageCtx); err != nil {
		cancelStages()
		flattener.Stop()
		stopSinks(sinks, cancelSinks)
		return err
	}

	metrics.StartQueueMetrics(sinkCtx, channels.Gauges(), queueMetricsInterval)
	channels.StartMetricsReporting(sinkCtx, queueMetricsInterval)

	log.WithComponent("main").WithFields(logger.Fields{
		"exchanges": len(exchanges),
		"sinks":     len(sinks),
	}).Info("all components started successfully")

	<-ctx.Done()
	log.WithComponent("main").Info("starting graceful shutdown")

	collector.Stop()
	flattener.Stop()
	waitForDrain(channels, drainTimeout)
	stopSinks(sinks, cancelSinks)
	channels.Close()

	stats := channels.GetStats()
	log.WithComponent("main").WithFields(logger.Fields{
		"raw_sent":     stats.RawSent,
		"raw_dropped":  stats.RawDropped,
		"rows_sent":    stats.RowsSent,
		"rows_dropped": stats.RowsDropped,
	}).Info("exchangeflow stopped")
	return nil
}

func stopSinks(sinks []sink, cancel context.CancelFunc) {
	cancel()
	for _, s := range sinks {
		s.Stop()
	}
}

// waitForDrain blocks until the sink queues are empty or timeout passes.
func waitForDrain(channels *channel.Channels, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pending := 0
		for name, gauge := range channels.Gauges() {
			if name == "raw" {
				continue
			}
			n, _ := gauge()
			pending += n
		}
		if pending == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	logger.GetLogger().WithComponent("main").Warn("graceful shutdown timeout exceeded; pending rows dropped")
}

func serve(ctx context.Context, cfg *config.Config, exchanges map[string]exchange.Exchange) error {
	return server.New(cfg.Server, cfg.App.Name, exchanges, logger.GetLogger()).Run(ctx)
}
