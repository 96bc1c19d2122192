package analytics

import (
	"time"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
)

// signalInputs collects everything one evaluation of the predictive generator
// consumes. All fields are snapshots; the generator itself is stateless apart
// from configuration.
type signalInputs struct {
	Velocity    models.TimeframeMetrics // shortest-window aggregate metrics
	LongWindow  models.TimeframeMetrics // longest-window metrics, for confidence
	OIChangePct float64                 // 1m open-interest change, 0 when unknown
	OIKnown     bool
	FundingRate float64
	Regime      *models.MarketRegime
	Correlation correlationResult
	Stale       []models.Exchange
}

// signalGenerator turns velocity metrics and market context into a cascade
// probability, level and recommended action. Forward-looking counterpart of
// the confirmatory scorer.
type signalGenerator struct {
	cfg appconfig.SignalConfig
}

func newSignalGenerator(cfg appconfig.SignalConfig) *signalGenerator {
	return &signalGenerator{cfg: cfg}
}

// Generate evaluates one symbol. The returned signal always carries a level,
// LevelNone included, so consumers can distinguish "evaluated calm" from
// "not evaluated".
func (g *signalGenerator) Generate(symbol string, now time.Time, in signalInputs) models.CascadeSignal {
	ceil := g.cfg.Ceilings
	w := g.cfg.Weights

	scores := models.SignalScores{
		Velocity:     saturate(in.Velocity.Velocity / ceil.Velocity),
		Acceleration: saturate(in.Velocity.Acceleration / ceil.Acceleration),
		Volume:       saturate(in.Velocity.VolumeVelocity / ceil.VolumeRate),
		Funding:      saturate(abs(in.FundingRate) / (ceil.FundingPct / 100)),
	}
	if in.OIKnown {
		scores.OIChange = saturate(abs(in.OIChangePct) / ceil.OIChangePct)
	}
	if in.Regime != nil {
		scores.Volatility = saturate(in.Regime.RiskMult / ceil.RiskMult)
	}

	probability := scores.Velocity*w.Velocity +
		scores.Acceleration*w.Acceleration +
		scores.Volume*w.Volume +
		scores.OIChange*w.OIChange +
		scores.Funding*w.Funding +
		scores.Volatility*w.Volatility

	// Momentum amplification: velocity and acceleration elevated together
	// mean the cascade is building, not just busy.
	if scores.Velocity > g.cfg.AccelVelocityGate && scores.Acceleration > g.cfg.AccelVelocityGate {
		probability *= g.cfg.AccelVelocityBoost
	}
	// Cross-venue synchrony amplification.
	if in.Correlation.Coefficient > g.cfg.CorrelationGate {
		probability *= g.cfg.CorrelationBoost
	}
	// Regime sensitivity: calm regimes make the generator jumpier, loud
	// regimes damp it.
	if in.Regime != nil {
		probability *= in.Regime.SensitivityMult
	}
	probability = saturate(probability)

	level := g.levelFor(probability)
	if ov := g.override(in.Velocity); ov > level {
		level = ov
	}

	confidence := g.confidence(in, scores)

	signal := models.CascadeSignal{
		Symbol:      symbol,
		Timestamp:   now,
		Signal:      level,
		Probability: probability,
		Confidence:  confidence,
		Action:      actionFor(level, confidence),
		Scores:      scores,
		Metrics: models.SignalMetrics{
			Velocity:     in.Velocity.Velocity,
			Acceleration: in.Velocity.Acceleration,
			VolumeUSD:    in.Velocity.VolumeUSD,
			OIChange1m:   in.OIChangePct,
			FundingRate:  in.FundingRate,
		},
		Context: models.SignalContext{
			LeadingExchange:     in.Correlation.Leading,
			ExchangeCorrelation: in.Correlation.Coefficient,
			StaleExchanges:      in.Stale,
		},
	}
	if in.Regime != nil {
		signal.Context.VolatilityRegime = in.Regime.VolatilityName
		signal.Context.ReferencePrice = in.Regime.ReferencePrice
		signal.Context.RiskMultiplier = in.Regime.RiskMult
	}
	return signal
}

func (g *signalGenerator) levelFor(p float64) models.SignalLevel {
	l := g.cfg.Levels
	switch {
	case p >= l.Extreme:
		return models.LevelExtreme
	case p >= l.Critical:
		return models.LevelCritical
	case p >= l.Alert:
		return models.LevelAlert
	case p >= l.Watch:
		return models.LevelWatch
	default:
		return models.LevelNone
	}
}

// override forces a minimum level on raw velocity and acceleration regardless
// of the weighted probability. A melt-up in raw rates must never be reported
// calm because other factors averaged it down.
func (g *signalGenerator) override(v models.TimeframeMetrics) models.SignalLevel {
	if v.Velocity > g.cfg.ExtremeVelocity && v.Acceleration > g.cfg.ExtremeAcceleration {
		return models.LevelExtreme
	}
	if v.Velocity > g.cfg.CriticalVelocity && v.Acceleration > g.cfg.CriticalAcceleration {
		return models.LevelCritical
	}
	return models.LevelNone
}

// confidence blends sample size, venue agreement and factor agreement.
func (g *signalGenerator) confidence(in signalInputs, scores models.SignalScores) float64 {
	sampleTarget := float64(g.cfg.ConfidenceSampleSize)
	if sampleTarget <= 0 {
		sampleTarget = 50
	}
	sample := saturate(float64(in.LongWindow.EventCount) / sampleTarget)

	agreement := 0.5
	if in.Correlation.LiveVenues >= 2 {
		agreement = saturate(0.5 + abs(in.Correlation.Coefficient)/2)
	}

	elevated := 0
	for _, s := range []float64{
		scores.Velocity, scores.Acceleration, scores.Volume,
		scores.OIChange, scores.Funding, scores.Volatility,
	} {
		if s > 0.5 {
			elevated++
		}
	}
	factor := float64(elevated) / 6

	return saturate(0.4*sample + 0.4*agreement + 0.2*factor)
}

func actionFor(level models.SignalLevel, confidence float64) models.Action {
	switch level {
	case models.LevelExtreme:
		return models.ActionUrgent
	case models.LevelCritical:
		if confidence >= 0.5 {
			return models.ActionUrgent
		}
		return models.ActionAlert
	case models.LevelAlert:
		return models.ActionAlert
	case models.LevelWatch:
		return models.ActionMonitor
	default:
		return models.ActionNormal
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
