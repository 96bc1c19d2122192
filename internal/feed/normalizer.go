package feed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	appconfig "cascadeflow/config"
	liq "cascadeflow/internal/channel/liq"
	metrics "cascadeflow/internal/metrics"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

const valueTolerance = 1e-6

// Normalizer drains the raw liquidation channel through the venue parser
// registry and forwards validated canonical events. Malformed or anomalous
// payloads are dropped with a counted metric, never fatal to the feed.
type Normalizer struct {
	config   *appconfig.Config
	channels *liq.Channels
	health   *Health
	parsers  map[models.Exchange]Parser
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewNormalizer(cfg *appconfig.Config, ch *liq.Channels, health *Health) *Normalizer {
	return &Normalizer{
		config:   cfg,
		channels: ch,
		health:   health,
		parsers:  Parsers(),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the parsing workers.
func (n *Normalizer) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("normalizer already running")
	}
	n.running = true
	n.ctx = ctx
	n.mu.Unlock()

	workers := n.config.Source.NormalizerWorkers
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.run()
	}

	n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"workers": workers,
	}).Info("normalizer started")
	return nil
}

// Stop waits for the workers to drain.
func (n *Normalizer) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	n.wg.Wait()
	n.log.WithComponent("normalizer").Info("normalizer stopped")
}

func (n *Normalizer) run() {
	defer n.wg.Done()

	log := n.log.WithComponent("normalizer")

	for {
		select {
		case <-n.ctx.Done():
			return
		case raw, ok := <-n.channels.Raw:
			if !ok {
				return
			}
			n.handle(raw, log)
		}
	}
}

func (n *Normalizer) handle(raw models.RawLiquidationMessage, log *logger.Entry) {
	parser, ok := n.parsers[raw.Exchange]
	if !ok {
		metrics.IncrementRejected(string(raw.Exchange), "unknown_exchange")
		log.WithFields(logger.Fields{"exchange": raw.Exchange}).Warn("no parser registered for exchange")
		return
	}

	n.health.MarkSeen(raw.Exchange)

	events, err := parser.Parse(raw)
	if err != nil {
		metrics.IncrementRejected(string(raw.Exchange), "parse_error")
		log.WithError(err).WithFields(logger.Fields{
			"exchange": raw.Exchange,
			"symbol":   raw.Symbol,
		}).Debug("dropping unparseable liquidation payload")
		return
	}

	for _, ev := range events {
		if reason := n.validate(&ev, raw.Timestamp); reason != "" {
			metrics.IncrementRejected(string(raw.Exchange), reason)
			log.WithFields(logger.Fields{
				"exchange": ev.Exchange,
				"symbol":   ev.Symbol,
				"reason":   reason,
			}).Debug("rejecting anomalous liquidation event")
			continue
		}

		if n.channels.SendEvent(n.ctx, ev) {
			metrics.IncrementIngested(string(ev.Exchange), ev.Symbol)
		} else if n.ctx.Err() == nil {
			metrics.EmitDropMetric(n.log, metrics.DropMetricEvent, string(ev.Exchange), ev.Symbol, "norm")
		}
	}
}

// validate enforces the data-quality contract at the boundary. It may repair
// a missing event time from the ingest time; everything else is rejected.
func (n *Normalizer) validate(ev *models.LiquidationEvent, ingest time.Time) string {
	if ev.Symbol == "" {
		return "empty_symbol"
	}
	if math.IsNaN(ev.Price) || math.IsInf(ev.Price, 0) || ev.Price <= 0 {
		return "bad_price"
	}
	if math.IsNaN(ev.Quantity) || math.IsInf(ev.Quantity, 0) || ev.Quantity <= 0 {
		return "bad_quantity"
	}
	if ev.ValueUSD <= 0 {
		return "bad_value"
	}

	expected := ev.Price * ev.Quantity
	if math.Abs(ev.ValueUSD-expected) > valueTolerance*math.Max(math.Abs(expected), 1) {
		return "value_mismatch"
	}

	if ingest.IsZero() {
		ingest = time.Now().UTC()
	}
	if ev.TimestampMs == 0 {
		ev.TimestampMs = ingest.UnixMilli()
		return ""
	}

	skew := ingest.Sub(time.UnixMilli(ev.TimestampMs))
	if skew < 0 {
		skew = -skew
	}
	if skew > n.config.Source.MaxClockSkew {
		return "timestamp_skew"
	}
	return ""
}
