// Package reader polls the configured exchanges and queues what it reads
// for the processor.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appconfig "exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/internal/channel"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
	"exchangeflow/models"
)

// tradeCursor remembers the newest trade timestamp seen for a market and
// the ids already seen at that timestamp.
type tradeCursor struct {
	since int64
	ids   map[string]bool
}

// Collector runs one worker per exchange. On every aligned tick the worker
// reads tickers, order books and recent trades for the exchange's symbols.
type Collector struct {
	config    appconfig.CollectorConfig
	exchanges map[string]exchange.Exchange
	symbols   map[string][]string
	channels  *channel.Channels
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
	now       func() time.Time

	cursors  map[string]*tradeCursor
	disabled map[string]bool
}

// NewCollector builds a collector over exchanges. Symbols come from each
// exchange's config entry; exchanges without symbols are skipped.
func NewCollector(cfg *appconfig.Config, exchanges map[string]exchange.Exchange, channels *channel.Channels) *Collector {
	symbols := make(map[string][]string)
	for id := range exchanges {
		if syms := cfg.Exchanges[id].Symbols; len(syms) > 0 {
			symbols[id] = syms
		}
	}
	return &Collector{
		config:    cfg.Collector,
		exchanges: exchanges,
		symbols:   symbols,
		channels:  channels,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		now:       time.Now,
		cursors:   make(map[string]*tradeCursor),
		disabled:  make(map[string]bool),
	}
}

func (c *Collector) Start(ctx context.Context) error {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{"operation": "start"})
	if len(c.symbols) == 0 {
		log.Warn("no exchange has symbols to collect")
		return fmt.Errorf("no exchange has symbols to collect")
	}
	if c.config.Interval <= 0 {
		return fmt.Errorf("collector interval must be positive")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	ids := make([]string, 0, len(c.symbols))
	for id := range c.symbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		log.WithFields(logger.Fields{
			"exchange": id,
			"symbols":  c.symbols[id],
			"interval": c.config.Interval.String(),
		}).Info("starting exchange worker")
		c.wg.Add(1)
		go c.worker(id)
	}
	return nil
}

func (c *Collector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("collector").Info("stopping collector")
	c.wg.Wait()
	c.log.WithComponent("collector").Info("collector stopped")
}

func (c *Collector) worker(id string) {
	defer c.wg.Done()

	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"exchange": id,
		"worker":   "poller",
	})

	interval := c.config.Interval
	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			c.Collect(c.ctx, id)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": interval.Milliseconds(),
				}).Warn("poll took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

// Collect runs one poll of exchange id and queues the snapshots.
func (c *Collector) Collect(ctx context.Context, id string) {
	ex, ok := c.exchanges[id]
	if !ok {
		return
	}
	symbols := c.symbols[id]

	if c.config.Tickers && c.enabled(id, models.DataTickers) {
		c.collectTickers(ctx, ex, symbols)
	}
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if c.enabled(id, models.DataOrderBook) {
			c.collectOrderBook(ctx, ex, symbol)
		}
		if c.config.Trades && c.enabled(id, models.DataTrades) {
			c.collectTrades(ctx, ex, symbol)
		}
	}
}

func (c *Collector) enabled(id string, kind models.DataKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled[id+"|"+string(kind)]
}

// failed logs a poll error. NotSupported switches the kind off for the
// exchange for the rest of the run.
func (c *Collector) failed(id, symbol string, kind models.DataKind, err error) {
	entry := c.log.WithComponent("collector").WithError(err).WithFields(logger.Fields{
		"exchange": id,
		"symbol":   symbol,
		"kind":     string(kind),
	})
	if errors.Is(err, models.ErrNotSupported) {
		c.mu.Lock()
		c.disabled[id+"|"+string(kind)] = true
		c.mu.Unlock()
		entry.Warn("exchange does not support this data, disabling it")
		return
	}
	if k, ok := models.KindOf(err); ok {
		entry = entry.WithField("error_kind", k.String())
	}
	entry.Warn("poll failed")
}

func (c *Collector) collectTickers(ctx context.Context, ex exchange.Exchange, symbols []string) {
	id := ex.ID()
	start := time.Now()
	tickers, err := ex.FetchTickers(ctx, symbols)
	if err != nil {
		c.failed(id, "", models.DataTickers, err)
		return
	}
	list := make([]models.Ticker, 0, len(tickers))
	for _, t := range tickers {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })

	c.queue(models.Snapshot{
		Exchange:  id,
		Kind:      models.DataTickers,
		FetchedAt: start,
		Tickers:   list,
	})
}

func (c *Collector) collectOrderBook(ctx context.Context, ex exchange.Exchange, symbol string) {
	id := ex.ID()
	start := time.Now()
	ob, err := ex.FetchOrderBook(ctx, symbol, c.config.Depth)
	if err != nil {
		c.failed(id, symbol, models.DataOrderBook, err)
		return
	}
	if ob.Timestamp == nil {
		ts := c.now().UnixMilli()
		ob.Timestamp = &ts
	}

	logger.LogPerformanceEntry(c.log.WithComponent("collector"), "collector", "fetch_orderbook", time.Since(start), logger.Fields{
		"exchange": id,
		"symbol":   symbol,
	})

	c.queue(models.Snapshot{
		Exchange:  id,
		Symbol:    symbol,
		Kind:      models.DataOrderBook,
		FetchedAt: start,
		OrderBook: &ob,
	})
}

func (c *Collector) collectTrades(ctx context.Context, ex exchange.Exchange, symbol string) {
	id := ex.ID()
	key := id + "|" + symbol

	c.mu.RLock()
	cursor := c.cursors[key]
	c.mu.RUnlock()

	var since *int64
	if cursor != nil {
		s := cursor.since
		since = &s
	}

	start := time.Now()
	trades, err := ex.FetchTrades(ctx, symbol, since, 0)
	if err != nil {
		c.failed(id, symbol, models.DataTrades, err)
		return
	}

	fresh, next := dedupeTrades(trades, cursor)
	c.mu.Lock()
	c.cursors[key] = next
	c.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	c.queue(models.Snapshot{
		Exchange:  id,
		Symbol:    symbol,
		Kind:      models.DataTrades,
		FetchedAt: start,
		Trades:    fresh,
	})
}

// dedupeTrades drops trades already seen through cursor and returns the
// advanced cursor. Trades without a timestamp are always kept.
func dedupeTrades(trades []models.Trade, cursor *tradeCursor) ([]models.Trade, *tradeCursor) {
	next := &tradeCursor{ids: map[string]bool{}}
	if cursor != nil {
		next.since = cursor.since
		for id := range cursor.ids {
			next.ids[id] = true
		}
	}

	fresh := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp == nil {
			fresh = append(fresh, t)
			continue
		}
		ts := *t.Timestamp
		switch {
		case cursor != nil && ts < cursor.since:
			continue
		case cursor != nil && ts == cursor.since && cursor.ids[t.ID]:
			continue
		}
		fresh = append(fresh, t)

		if ts > next.since {
			next.since = ts
			next.ids = map[string]bool{}
		}
		if ts == next.since {
			next.ids[t.ID] = true
		}
	}
	return fresh, next
}

func (c *Collector) queue(snap models.Snapshot) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.channels.SendRaw(ctx, snap) {
		c.log.WithComponent("collector").WithFields(logger.Fields{
			"exchange": snap.Exchange,
			"symbol":   snap.Symbol,
			"kind":     string(snap.Kind),
		}).Warn("raw channel is full, dropping data")
		return
	}
	metrics.IncrementCollected(snap.Exchange, string(snap.Kind), snap.Size())
	logger.LogDataFlowEntry(c.log.WithComponent("collector"), snap.Exchange+"_api", "raw_channel", snap.Size(), string(snap.Kind))
}
