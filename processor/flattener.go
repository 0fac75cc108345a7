package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appconfig "exchangeflow/config"
	"exchangeflow/internal/channel"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

// Flattener turns collected snapshots into row batches and hands each
// batch to every writer sink once it is full or old enough.
type Flattener struct {
	config   appconfig.CollectorConfig
	channels *channel.Channels
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	now      func() time.Time

	// Batching
	batches   map[string]*models.RowBatch
	lastFlush map[string]time.Time

	// Metrics
	booksProcessed   int64
	tradesProcessed  int64
	tickersProcessed int64
	rowsProduced     int64
	batchesFlushed   int64
	errorsCount      int64
}

func NewFlattener(cfg appconfig.CollectorConfig, channels *channel.Channels) *Flattener {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &Flattener{
		config:    cfg,
		channels:  channels,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		now:       time.Now,
		batches:   make(map[string]*models.RowBatch),
		lastFlush: make(map[string]time.Time),
	}
}

func (f *Flattener) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("flattener already running")
	}
	f.running = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	log := f.log.WithComponent("flattener").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"batch_size":     f.config.BatchSize,
		"flush_interval": f.config.FlushInterval.String(),
	}).Info("starting flattener")

	f.wg.Add(2)
	go f.worker()
	go f.batchFlusher()
	go f.metricsReporter(f.ctx)

	return nil
}

// Stop cancels the workers, waits for them and hands every pending batch
// to the sinks.
func (f *Flattener) Stop() {
	f.mu.Lock()
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	f.log.WithComponent("flattener").Info("stopping flattener")
	f.wg.Wait()
	f.flushAllBatches()
	f.reportMetrics()
	f.log.WithComponent("flattener").Info("flattener stopped")
}

func (f *Flattener) worker() {
	defer f.wg.Done()

	log := f.log.WithComponent("flattener").WithFields(logger.Fields{"worker": "flattener"})

	for {
		select {
		case <-f.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case snap, ok := <-f.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			rows := f.process(snap)
			logger.LogPerformanceEntry(log, "flattener", "process_snapshot", time.Since(start), logger.Fields{
				"exchange": snap.Exchange,
				"symbol":   snap.Symbol,
				"kind":     string(snap.Kind),
				"rows":     rows,
			})
		}
	}
}

// process flattens one snapshot into the pending batch of its key and
// returns the number of rows produced.
func (f *Flattener) process(snap models.Snapshot) int {
	ts := snap.FetchedAt.UnixMilli()
	if snap.FetchedAt.IsZero() {
		ts = f.now().UnixMilli()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		key   string
		batch *models.RowBatch
		n     int
	)
	switch snap.Kind {
	case models.DataOrderBook:
		if snap.OrderBook == nil {
			f.errorsCount++
			return 0
		}
		rows := FlattenOrderBook(*snap.OrderBook, ts)
		f.booksProcessed++
		key, batch = f.batchFor(snap.Kind, snap.Exchange, snap.Symbol)
		batch.OrderBooks = append(batch.OrderBooks, rows...)
		n = len(rows)
	case models.DataTrades:
		rows, skipped := FlattenTrades(snap.Trades, ts)
		f.tradesProcessed++
		f.errorsCount += int64(skipped)
		key, batch = f.batchFor(snap.Kind, snap.Exchange, snap.Symbol)
		batch.Trades = append(batch.Trades, rows...)
		n = len(rows)
	case models.DataTickers:
		rows := FlattenTickers(snap.Tickers, ts)
		f.tickersProcessed++
		key, batch = f.batchFor(snap.Kind, snap.Exchange, "")
		batch.Tickers = append(batch.Tickers, rows...)
		n = len(rows)
	default:
		f.errorsCount++
		f.log.WithComponent("flattener").WithFields(logger.Fields{
			"exchange": snap.Exchange,
			"kind":     string(snap.Kind),
		}).Warn("unknown snapshot kind")
		return 0
	}

	f.rowsProduced += int64(n)
	batch.RecordCount = len(batch.OrderBooks) + len(batch.Trades) + len(batch.Tickers)
	if t := time.UnixMilli(ts).UTC(); t.After(batch.Timestamp) {
		batch.Timestamp = t
	}
	if batch.RecordCount >= f.config.BatchSize {
		f.flushBatch(f.ctx, key)
	}
	return n
}

func batchKey(kind models.DataKind, exchange, symbol string) string {
	return fmt.Sprintf("%s_%s_%s", kind, exchange, symbol)
}

// batchFor returns the pending batch and its key, creating it when absent.
// Callers hold f.mu.
func (f *Flattener) batchFor(kind models.DataKind, exchange, symbol string) (string, *models.RowBatch) {
	key := batchKey(kind, exchange, symbol)
	batch, ok := f.batches[key]
	if !ok {
		batch = &models.RowBatch{
			BatchID:  uuid.New().String(),
			Kind:     kind,
			Exchange: exchange,
			Symbol:   symbol,
		}
		f.batches[key] = batch
		f.lastFlush[key] = f.now()
	}
	return key, batch
}

func (f *Flattener) batchFlusher() {
	defer f.wg.Done()

	interval := time.Second
	if f.config.FlushInterval < interval {
		interval = f.config.FlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.flushTimedOutBatches()
		}
	}
}

func (f *Flattener) flushTimedOutBatches() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for key, last := range f.lastFlush {
		if now.Sub(last) >= f.config.FlushInterval {
			f.flushBatch(f.ctx, key)
		}
	}
}

// flushBatch sends the batch under key to the sinks and forgets it. Callers
// hold f.mu.
func (f *Flattener) flushBatch(ctx context.Context, key string) {
	batch, ok := f.batches[key]
	if !ok {
		return
	}
	delete(f.batches, key)
	delete(f.lastFlush, key)
	if batch.RecordCount == 0 {
		return
	}
	batch.ProcessedAt = f.now().UTC()
	if ctx == nil {
		ctx = context.Background()
	}

	log := f.log.WithComponent("flattener").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"kind":         string(batch.Kind),
		"exchange":     batch.Exchange,
		"symbol":       batch.Symbol,
		"record_count": batch.RecordCount,
		"operation":    "flush_batch",
	})

	if accepted := f.channels.SendRows(ctx, *batch); accepted == 0 {
		log.Warn("no writer accepted batch")
		return
	}
	f.batchesFlushed++
	logger.LogDataFlowEntry(log, "flattener", "writers", batch.RecordCount, string(batch.Kind))
}

func (f *Flattener) flushAllBatches() {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx := context.Background()
	if f.ctx != nil {
		ctx = context.WithoutCancel(f.ctx)
	}
	for key := range f.batches {
		f.flushBatch(ctx, key)
	}
}

func (f *Flattener) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.reportMetrics()
		}
	}
}

// Stats returns the processor counters.
func (f *Flattener) Stats() metrics.ProcessorStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return metrics.ProcessorStats{
		BooksProcessed:  f.booksProcessed,
		TradesProcessed: f.tradesProcessed + f.tickersProcessed,
		RowsProduced:    f.rowsProduced,
		ErrorsCount:     f.errorsCount,
		QueueLen:        len(f.channels.Raw),
		QueueCap:        cap(f.channels.Raw),
	}
}

func (f *Flattener) reportMetrics() {
	metrics.ReportProcessor(f.log, f.Stats())
}

func toFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

// FlattenOrderBook lays out the levels of ob as rows, best first on each
// side. Empty levels are skipped; ts is used when the book has no
// timestamp.
func FlattenOrderBook(ob models.OrderBook, ts int64) []models.OrderBookRow {
	if ob.Timestamp != nil {
		ts = *ob.Timestamp
	}
	rows := make([]models.OrderBookRow, 0, len(ob.Bids)+len(ob.Asks))
	add := func(side string, levels []models.OrderBookLevel) {
		for i, l := range levels {
			if l.Price.IsZero() || l.Amount.IsZero() {
				continue
			}
			rows = append(rows, models.OrderBookRow{
				Exchange:  ob.Exchange,
				Symbol:    ob.Symbol,
				Timestamp: ts,
				Side:      side,
				Price:     l.Price.InexactFloat64(),
				Amount:    l.Amount.InexactFloat64(),
				Level:     i + 1,
			})
		}
	}
	add("bid", ob.Bids)
	add("ask", ob.Asks)
	return rows
}

// FlattenTrades lays out trades as rows. Trades without a price or amount
// are skipped and counted.
func FlattenTrades(trades []models.Trade, ts int64) (rows []models.TradeRow, skipped int) {
	rows = make([]models.TradeRow, 0, len(trades))
	for _, t := range trades {
		if t.Price == nil || t.Amount == nil {
			skipped++
			continue
		}
		row := models.TradeRow{
			Exchange:  t.Exchange,
			Symbol:    t.Symbol,
			ID:        t.ID,
			Timestamp: ts,
			Side:      string(t.Side),
			Price:     t.Price.InexactFloat64(),
			Amount:    t.Amount.InexactFloat64(),
			Cost:      toFloat(t.Cost),
		}
		if t.Timestamp != nil {
			row.Timestamp = *t.Timestamp
		}
		if t.Cost == nil {
			row.Cost = t.Price.Mul(*t.Amount).InexactFloat64()
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// FlattenTickers lays out tickers as rows; unknown numbers become zero.
func FlattenTickers(tickers []models.Ticker, ts int64) []models.TickerRow {
	rows := make([]models.TickerRow, 0, len(tickers))
	for _, t := range tickers {
		row := models.TickerRow{
			Exchange:    t.Exchange,
			Symbol:      t.Symbol,
			Timestamp:   ts,
			Bid:         toFloat(t.Bid),
			Ask:         toFloat(t.Ask),
			Last:        toFloat(t.Last),
			High:        toFloat(t.High),
			Low:         toFloat(t.Low),
			BaseVolume:  toFloat(t.BaseVolume),
			QuoteVolume: toFloat(t.QuoteVolume),
			Percentage:  toFloat(t.Percentage),
		}
		if t.Timestamp != nil {
			row.Timestamp = *t.Timestamp
		}
		rows = append(rows, row)
	}
	return rows
}
