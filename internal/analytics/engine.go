package analytics

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	appconfig "cascadeflow/config"
	liq "cascadeflow/internal/channel/liq"
	market "cascadeflow/internal/channel/market"
	signalch "cascadeflow/internal/channel/signal"
	"cascadeflow/internal/feed"
	metrics "cascadeflow/internal/metrics"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// EventSink receives every accepted event off the analytics hot path. Sinks
// must not block; slow consumers buffer or drop internally.
type EventSink func(models.LiquidationEvent)

// Engine is the analytics core. Events are sharded by symbol across a fixed
// worker pool so each symbol's state is owned by exactly one goroutine and
// evaluation needs no locks. Results are mirrored into a read store for the
// HTTP API.
type Engine struct {
	config   *appconfig.Config
	liqCh    *liq.Channels
	marketCh *market.Channels
	signalCh *signalch.Channels
	health   *feed.Health
	regime   *RegimeDetector
	log      *logger.Log

	workers []*worker
	sinks   []EventSink

	marketMu sync.RWMutex
	oiSeries map[string][]oiPoint
	funding  map[string]float64

	store *Store

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
}

type oiPoint struct {
	at time.Time
	oi float64
}

// NewEngine wires the analytics core to its input and output channels.
func NewEngine(cfg *appconfig.Config, liqCh *liq.Channels, marketCh *market.Channels, signalCh *signalch.Channels, health *feed.Health, regime *RegimeDetector) *Engine {
	e := &Engine{
		config:   cfg,
		liqCh:    liqCh,
		marketCh: marketCh,
		signalCh: signalCh,
		health:   health,
		regime:   regime,
		log:      logger.GetLogger(),
		oiSeries: map[string][]oiPoint{},
		funding:  map[string]float64{},
		store:    NewStore(cfg.Analytics.SignalHistorySize),
	}

	n := cfg.Analytics.Workers
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		e.workers = append(e.workers, newWorker(i, e))
	}
	return e
}

// AddEventSink registers a fan-out consumer for accepted events. Must be
// called before Start.
func (e *Engine) AddEventSink(sink EventSink) {
	e.sinks = append(e.sinks, sink)
}

// Store exposes the read side for the HTTP API.
func (e *Engine) Store() *Store {
	return e.store
}

// Start launches the dispatch loop, the market-context loop and the workers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.ctx = ctx
	e.mu.Unlock()

	for _, w := range e.workers {
		e.wg.Add(1)
		go w.run(ctx, &e.wg)
	}

	e.wg.Add(2)
	go e.dispatch(ctx)
	go e.consumeMarket(ctx)

	e.log.WithComponent("analytics_engine").WithFields(logger.Fields{
		"workers":    len(e.workers),
		"timeframes": e.config.Analytics.Timeframes,
	}).Info("analytics engine started")
	return nil
}

// Stop waits for all loops to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.wg.Wait()
	e.log.WithComponent("analytics_engine").Info("analytics engine stopped")
}

// dispatch shards incoming events by symbol so per-symbol state stays
// single-writer.
func (e *Engine) dispatch(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.liqCh.Events:
			if !ok {
				return
			}
			// Already counted as ingested at the normalizer boundary.
			for _, sink := range e.sinks {
				sink(ev)
			}

			w := e.workers[shardFor(ev.Symbol, len(e.workers))]
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			default:
				metrics.EmitDropMetric(e.log, metrics.DropMetricEvent, string(ev.Exchange), ev.Symbol, "analytics")
			}
		}
	}
}

// consumeMarket tracks open interest and funding per symbol for the signal
// generator. Writes are guarded by marketMu; workers only read.
func (e *Engine) consumeMarket(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case oi, ok := <-e.marketCh.OI:
			if !ok {
				return
			}
			e.recordOI(oi)
		case fr, ok := <-e.marketCh.Funding:
			if !ok {
				return
			}
			e.marketMu.Lock()
			e.funding[fr.Symbol] = fr.FundingRate
			e.marketMu.Unlock()
		}
	}
}

func (e *Engine) recordOI(oi models.OpenInterestUpdate) {
	at := time.UnixMilli(oi.TimestampMs).UTC()
	if oi.TimestampMs == 0 {
		at = time.Now().UTC()
	}

	e.marketMu.Lock()
	defer e.marketMu.Unlock()

	series := append(e.oiSeries[oi.Symbol], oiPoint{at: at, oi: oi.OpenInterest})
	cutoff := at.Add(-2 * time.Minute)
	i := 0
	for ; i < len(series); i++ {
		if !series[i].at.Before(cutoff) {
			break
		}
	}
	e.oiSeries[oi.Symbol] = series[i:]
}

// oiChangePct returns the percent change of open interest over the last
// minute for a symbol, and whether any data exists at all. Open interest is
// only polled from one venue; symbols without coverage stay neutral rather
// than pretending to a zero change.
func (e *Engine) oiChangePct(symbol string, now time.Time) (float64, bool) {
	e.marketMu.RLock()
	defer e.marketMu.RUnlock()

	series := e.oiSeries[symbol]
	if len(series) < 2 {
		return 0, false
	}

	latest := series[len(series)-1]
	cutoff := now.Add(-time.Minute)
	base := series[0]
	for _, p := range series {
		if p.at.After(cutoff) {
			break
		}
		base = p
	}
	if base.oi <= 0 {
		return 0, false
	}
	return (latest.oi - base.oi) / base.oi * 100, true
}

func (e *Engine) fundingRate(symbol string) float64 {
	e.marketMu.RLock()
	defer e.marketMu.RUnlock()
	return e.funding[symbol]
}

func shardFor(symbol string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(n))
}

// worker owns the analytics state for its shard of symbols.
type worker struct {
	id     int
	engine *Engine
	events chan models.LiquidationEvent
	state  map[string]*symbolState
}

type symbolState struct {
	ring     *eventRing
	trackers map[models.Exchange]*velocityTracker
	scratch  []models.LiquidationEvent
}

func newWorker(id int, e *Engine) *worker {
	return &worker{
		id:     id,
		engine: e,
		events: make(chan models.LiquidationEvent, 1024),
		state:  map[string]*symbolState{},
	}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	cycle := w.engine.config.Analytics.PublishCycle
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.ingest(ev)
		case <-ticker.C:
			now := time.Now().UTC()
			for symbol, st := range w.state {
				w.evaluate(ctx, symbol, st, now)
			}
		}
	}
}

func (w *worker) ingest(ev models.LiquidationEvent) {
	st := w.state[ev.Symbol]
	if st == nil {
		cfg := w.engine.config.Analytics
		st = &symbolState{
			ring:     newEventRing(cfg.RingCapacity),
			trackers: map[models.Exchange]*velocityTracker{},
		}
		for _, ex := range models.Exchanges {
			st.trackers[ex] = newVelocityTracker(ev.Symbol, ex)
		}
		st.trackers[models.ExchangeAll] = newVelocityTracker(ev.Symbol, models.ExchangeAll)
		w.state[ev.Symbol] = st
	}
	st.ring.Append(ev)
}

// evaluate runs one full cycle for a symbol: velocity metrics per venue and
// aggregate, cross-exchange correlation, the confirmatory window score and
// the predictive signal.
func (w *worker) evaluate(ctx context.Context, symbol string, st *symbolState, now time.Time) {
	started := time.Now()
	e := w.engine
	cfg := e.config.Analytics

	maxWindow := cfg.CorrelationWindow
	for _, tf := range cfg.Timeframes {
		if tf > maxWindow {
			maxWindow = tf
		}
	}
	if e.config.Cascade.Window > maxWindow {
		maxWindow = e.config.Cascade.Window
	}

	st.scratch = st.ring.Since(now.Add(-maxWindow), st.scratch[:0])
	events := st.scratch

	velocities := make(map[models.Exchange]*models.VelocityMetrics, len(st.trackers))
	for ex, tracker := range st.trackers {
		velocities[ex] = tracker.Compute(now, cfg.Timeframes, events)
	}

	staleList := e.health.StaleExchanges()
	stale := make(map[models.Exchange]bool, len(staleList))
	for _, ex := range staleList {
		stale[ex] = true
	}

	corr := newCorrelator(cfg.CorrelationWindow).Compute(now, events, stale)

	regime := e.regime.Current()
	assessment := newCascadeScorer(e.config.Cascade).Assess(symbol, now, events, regime.VelocityThresholdMult)
	if assessment.CascadeType != models.CascadeNone {
		metrics.IncrementCascade(symbol, string(assessment.CascadeType))
		e.signalCh.SendAssessment(ctx, assessment)
	}

	agg := velocities[models.ExchangeAll]
	shortest := cfg.Timeframes[0]
	longest := cfg.Timeframes[len(cfg.Timeframes)-1]

	oiChange, oiKnown := e.oiChangePct(symbol, now)
	in := signalInputs{
		Velocity:    agg.Frame(shortest),
		LongWindow:  agg.Frame(longest),
		OIChangePct: oiChange,
		OIKnown:     oiKnown,
		FundingRate: e.fundingRate(symbol),
		Regime:      regime,
		Correlation: corr,
		Stale:       staleList,
	}

	sig := newSignalGenerator(e.config.Signal).Generate(symbol, now, in)
	sig.Meta.ProcessingTimeMs = float64(time.Since(started).Microseconds()) / 1000

	metrics.IncrementSignal(symbol, sig.Signal.String())
	metrics.ObserveEvaluation(time.Since(started).Seconds())

	e.store.record(symbol, velocities, assessment, sig, corr)
	e.signalCh.SendSignal(ctx, sig)
}
