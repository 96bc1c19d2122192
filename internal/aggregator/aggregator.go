package aggregator

import (
	"context"
	"sync"
	"time"

	appconfig "cascadeflow/config"
	metrics "cascadeflow/internal/metrics"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// BucketSink receives closed aggregate buckets. Implementations must not
// block for long; the aggregator flushes from a single goroutine.
type BucketSink interface {
	WriteBuckets(ctx context.Context, buckets []models.AggregateBucket) error
}

type bucketKey struct {
	symbol   string
	exchange models.Exchange
	side     models.Side
	start    int64
}

// Aggregator rolls accepted events into fixed-width per symbol/exchange/side
// buckets. Events enter through a buffered queue so the analytics dispatch
// path never blocks on aggregation.
type Aggregator struct {
	config *appconfig.Config
	sinks  []BucketSink
	log    *logger.Log

	queue chan models.LiquidationEvent

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context

	open map[bucketKey]*models.AggregateBucket
}

// NewAggregator constructs an aggregator flushing to the given sinks.
func NewAggregator(cfg *appconfig.Config, sinks ...BucketSink) *Aggregator {
	return &Aggregator{
		config: cfg,
		sinks:  sinks,
		log:    logger.GetLogger(),
		queue:  make(chan models.LiquidationEvent, cfg.Aggregation.QueueSize),
		open:   map[bucketKey]*models.AggregateBucket{},
	}
}

// Offer enqueues an event without blocking. Usable as an engine event sink.
func (a *Aggregator) Offer(ev models.LiquidationEvent) {
	select {
	case a.queue <- ev:
	default:
		metrics.EmitDropMetric(a.log, metrics.DropMetricSink, string(ev.Exchange), ev.Symbol, "aggregator")
	}
}

// Start launches the bucketing worker.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run(ctx)

	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"bucket_width": a.config.Aggregation.BucketWidth.String(),
	}).Info("aggregator started")
	return nil
}

// Stop flushes open buckets and waits for the worker.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.wg.Wait()
	a.log.WithComponent("aggregator").Info("aggregator stopped")
}

func (a *Aggregator) run(ctx context.Context) {
	defer a.wg.Done()

	width := a.config.Aggregation.BucketWidth
	ticker := time.NewTicker(width)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush(context.Background(), time.Now().Add(width))
			return
		case ev := <-a.queue:
			a.ingest(ev, width)
		case now := <-ticker.C:
			a.flush(ctx, now)
		}
	}
}

func (a *Aggregator) ingest(ev models.LiquidationEvent, width time.Duration) {
	start := ev.Time().Truncate(width)
	key := bucketKey{symbol: ev.Symbol, exchange: ev.Exchange, side: ev.Side, start: start.Unix()}

	b := a.open[key]
	if b == nil {
		b = &models.AggregateBucket{
			Symbol:      ev.Symbol,
			Exchange:    ev.Exchange,
			Side:        ev.Side,
			BucketStart: start,
			BucketWidth: width,
		}
		a.open[key] = b
	}
	b.Count++
	b.TotalUSD += ev.ValueUSD
	b.TotalQty += ev.Quantity
}

// flush sends every bucket that ended before now to the sinks. Buckets still
// accepting events stay open for late arrivals within their width.
func (a *Aggregator) flush(ctx context.Context, now time.Time) {
	var closed []models.AggregateBucket
	for key, b := range a.open {
		if b.BucketStart.Add(b.BucketWidth).Before(now) {
			closed = append(closed, *b)
			delete(a.open, key)
		}
	}
	if len(closed) == 0 {
		return
	}

	for _, sink := range a.sinks {
		if err := sink.WriteBuckets(ctx, closed); err != nil {
			a.log.WithComponent("aggregator").WithError(err).Warn("bucket sink write failed")
		}
	}
}
