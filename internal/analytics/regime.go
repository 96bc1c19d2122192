package analytics

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	appconfig "cascadeflow/config"
	market "cascadeflow/internal/channel/market"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// regimeMultipliers maps each volatility tier to its threshold/sensitivity
// pair and regime risk contribution. Threshold multipliers rise with
// volatility so absolute triggers get harder to hit when baseline noise is
// high; sensitivity moves the opposite way.
var regimeMultipliers = map[models.VolatilityTier]struct {
	threshold   float64
	sensitivity float64
	risk        float64
}{
	models.VolDormant:  {0.5, 1.5, 1.0},
	models.VolQuiet:    {0.75, 1.25, 1.5},
	models.VolNormal:   {1.0, 1.0, 2.0},
	models.VolActive:   {1.25, 0.9, 3.0},
	models.VolVolatile: {1.75, 0.7, 4.0},
	models.VolExtreme:  {2.5, 0.5, 5.0},
}

type pricePoint struct {
	at    time.Time
	price float64
}

// RegimeDetector classifies the reference market into a volatility, liquidity
// and trend regime from a stream of price ticks. A single goroutine consumes
// ticks and republishes the regime through an atomic pointer, so readers on
// the hot path never take a lock.
type RegimeDetector struct {
	config   *appconfig.Config
	channels *market.Channels
	log      *logger.Log

	current atomic.Pointer[models.MarketRegime]

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	ctx     context.Context

	points []pricePoint
}

// NewRegimeDetector constructs a detector seeded with the neutral default
// regime.
func NewRegimeDetector(cfg *appconfig.Config, ch *market.Channels) *RegimeDetector {
	d := &RegimeDetector{
		config:   cfg,
		channels: ch,
		log:      logger.GetLogger(),
	}
	d.current.Store(models.DefaultRegime())
	return d
}

// Current returns the latest published regime. Safe for concurrent use.
func (d *RegimeDetector) Current() *models.MarketRegime {
	return d.current.Load()
}

// Start launches the tick-consuming worker.
func (d *RegimeDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run()

	d.log.WithComponent("regime_detector").WithFields(logger.Fields{
		"reference_symbol": d.config.Regime.ReferenceSymbol,
	}).Info("regime detector started")
	return nil
}

// Stop waits for the worker to exit.
func (d *RegimeDetector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.log.WithComponent("regime_detector").Info("regime detector stopped")
}

func (d *RegimeDetector) run() {
	defer d.wg.Done()

	ref := d.config.Regime.ReferenceSymbol
	for {
		select {
		case <-d.ctx.Done():
			return
		case tick, ok := <-d.channels.Ticks:
			if !ok {
				return
			}
			if tick.Symbol != ref || tick.Price <= 0 {
				continue
			}
			d.observe(tick)
		}
	}
}

func (d *RegimeDetector) observe(tick models.PriceTick) {
	at := time.UnixMilli(tick.TimestampMs).UTC()
	if tick.TimestampMs == 0 {
		at = time.Now().UTC()
	}
	d.points = append(d.points, pricePoint{at: at, price: tick.Price})
	d.trim(at)
	d.current.Store(d.classify(at, tick.Price))
}

// trim drops samples older than the slowest horizon in use.
func (d *RegimeDetector) trim(now time.Time) {
	keep := d.config.Regime.SlowMA
	for _, h := range d.config.Regime.VolHorizons {
		if h > keep {
			keep = h
		}
	}
	cutoff := now.Add(-keep)

	i := 0
	for ; i < len(d.points); i++ {
		if !d.points[i].at.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		d.points = append(d.points[:0], d.points[i:]...)
	}
}

func (d *RegimeDetector) classify(now time.Time, price float64) *models.MarketRegime {
	cfg := d.config.Regime

	regime := &models.MarketRegime{
		ReferencePrice: price,
		UpdatedAt:      now,
	}

	// Realized vol per horizon; the shortest horizon decides the tier, the
	// longer ones are published for context.
	vols := make([]float64, len(cfg.VolHorizons))
	for i, h := range cfg.VolHorizons {
		vols[i] = d.realizedVolBps(now, h)
	}
	if len(vols) > 0 {
		regime.RealizedVol1m = vols[0]
	}
	if len(vols) > 1 {
		regime.RealizedVol5m = vols[1]
	}

	tier := models.VolNormal
	if len(vols) > 0 {
		tier = tierForVol(vols[0], cfg.VolTierBounds)
	}

	regime.Liquidity = d.liquidityTier(now)
	switch regime.Liquidity {
	case models.LiquidityShallow:
		tier = (tier + 1).Clamp()
	case models.LiquidityIlliquid:
		tier = (tier + 1).Clamp()
	case models.LiquidityDeep:
		tier = (tier - 1).Clamp()
	}

	regime.Volatility = tier
	regime.VolatilityName = tier.String()
	regime.Trend = d.trendTier(now)

	mult := regimeMultipliers[tier]
	regime.VelocityThresholdMult = mult.threshold
	regime.SensitivityMult = mult.sensitivity
	regime.RiskMult = mult.risk

	// Confidence grows with sample coverage of the shortest horizon.
	if len(cfg.VolHorizons) > 0 {
		want := cfg.VolHorizons[0].Seconds()
		have := float64(d.samplesSince(now.Add(-cfg.VolHorizons[0])))
		regime.Confidence = math.Min(1, have/math.Max(1, want))
	}

	return regime
}

func tierForVol(volBps float64, bounds []float64) models.VolatilityTier {
	tier := models.VolDormant
	for _, b := range bounds {
		if volBps < b {
			break
		}
		tier++
	}
	return tier.Clamp()
}

// realizedVolBps is the standard deviation of log returns over the horizon,
// expressed in basis points.
func (d *RegimeDetector) realizedVolBps(now time.Time, horizon time.Duration) float64 {
	cutoff := now.Add(-horizon)

	var returns []float64
	var prev float64
	for _, p := range d.points {
		if p.at.Before(cutoff) {
			continue
		}
		if prev > 0 {
			returns = append(returns, math.Log(p.price/prev))
		}
		prev = p.price
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * 1e4
}

// liquidityTier proxies depth by tick arrival rate over the fast horizon. A
// venue printing steadily is treated as liquid; sparse prints read shallow.
func (d *RegimeDetector) liquidityTier(now time.Time) models.LiquidityTier {
	window := d.config.Regime.FastMA
	if window <= 0 {
		window = time.Minute
	}
	n := d.samplesSince(now.Add(-window))
	rate := float64(n) / window.Seconds()

	switch {
	case rate >= 2.0:
		return models.LiquidityDeep
	case rate >= 0.5:
		return models.LiquidityNormal
	case rate >= 0.1:
		return models.LiquidityShallow
	default:
		return models.LiquidityIlliquid
	}
}

// trendTier compares fast and slow moving averages of the reference price.
func (d *RegimeDetector) trendTier(now time.Time) models.TrendTier {
	fast := d.meanSince(now.Add(-d.config.Regime.FastMA))
	slow := d.meanSince(now.Add(-d.config.Regime.SlowMA))
	if fast <= 0 || slow <= 0 {
		return models.TrendNeutral
	}

	spread := (fast - slow) / slow
	switch {
	case spread > 0.01:
		return models.TrendStrongUp
	case spread > 0.002:
		return models.TrendUp
	case spread < -0.01:
		return models.TrendStrongDown
	case spread < -0.002:
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

func (d *RegimeDetector) samplesSince(cutoff time.Time) int {
	n := 0
	for _, p := range d.points {
		if !p.at.Before(cutoff) {
			n++
		}
	}
	return n
}

func (d *RegimeDetector) meanSince(cutoff time.Time) float64 {
	var sum float64
	var n int
	for _, p := range d.points {
		if !p.at.Before(cutoff) {
			sum += p.price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
