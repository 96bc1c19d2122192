package analytics

import (
	"math"
	"sort"
	"time"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
)

// cascadeScorer is the confirmatory six-factor scorer over one symbol's
// trailing event window. It detects cascades already underway; the predictive
// path is the signal generator.
type cascadeScorer struct {
	cfg appconfig.CascadeConfig
}

func newCascadeScorer(cfg appconfig.CascadeConfig) *cascadeScorer {
	return &cascadeScorer{cfg: cfg}
}

// Assess scores the window ending at now. Events must be filtered to one
// symbol. The trigger gates scale with the regime threshold multiplier, so a
// burst that triggers in a dormant market needs more weight behind it in an
// extreme one. Below the gates the assessment carries CascadeNone with zeroed
// scores.
func (s *cascadeScorer) Assess(symbol string, now time.Time, events []models.LiquidationEvent, thresholdMult float64) models.CascadeRiskAssessment {
	if thresholdMult <= 0 {
		thresholdMult = 1
	}
	assessment := models.CascadeRiskAssessment{
		Symbol:     symbol,
		WindowEnd:  now,
		WindowSpan: s.cfg.Window,
	}

	cutoffMs := now.Add(-s.cfg.Window).UnixMilli()
	nowMs := now.UnixMilli()
	var window []models.LiquidationEvent
	for _, ev := range events {
		if ev.TimestampMs >= cutoffMs && ev.TimestampMs <= nowMs {
			window = append(window, ev)
		}
	}

	venues := map[models.Exchange]struct{}{}
	for _, ev := range window {
		assessment.EventCount++
		assessment.TotalValue += ev.ValueUSD
		if ev.Side == models.SideLong {
			assessment.LongCount++
		} else {
			assessment.ShortCount++
		}
		venues[ev.Exchange] = struct{}{}
	}
	for ex := range venues {
		assessment.Exchanges = append(assessment.Exchanges, ex)
	}
	sort.Slice(assessment.Exchanges, func(i, j int) bool {
		return assessment.Exchanges[i] < assessment.Exchanges[j]
	})

	minCount := int(math.Ceil(float64(s.cfg.MinCount) * thresholdMult))
	minValue := s.cfg.MinValue * thresholdMult
	if assessment.EventCount < minCount || assessment.TotalValue < minValue {
		assessment.CascadeType = models.CascadeNone
		return assessment
	}

	assessment.SubScores = s.subScores(window, assessment)
	assessment.Composite = composite(assessment.SubScores, s.cfg.Weights)

	if len(venues) >= 2 {
		assessment.CascadeType = models.CascadeCrossExchange
	} else {
		assessment.CascadeType = models.CascadeSingleExchange
	}
	return assessment
}

func (s *cascadeScorer) subScores(window []models.LiquidationEvent, a models.CascadeRiskAssessment) models.RiskSubScores {
	ceil := s.cfg.Ceilings
	var sc models.RiskSubScores

	// Volume concentration: total value against the saturation ceiling.
	sc.VolumeConcentration = saturate(a.TotalValue / ceil.VolumeUSD)

	// Time compression: event rate normalized to events per minute.
	perMinute := float64(a.EventCount) / s.cfg.Window.Minutes()
	sc.TimeCompression = saturate(perMinute / ceil.EventsPerMinute)

	// Price clustering: share of events landing inside the band around the
	// volume-weighted price. Forced fills stacked at one level indicate a
	// stop-run rather than scattered noise.
	var vwapNum, vwapDen float64
	for _, ev := range window {
		vwapNum += ev.Price * ev.ValueUSD
		vwapDen += ev.ValueUSD
	}
	if vwapDen > 0 {
		vwap := vwapNum / vwapDen
		band := vwap * ceil.PriceBandPct / 100
		inBand := 0
		for _, ev := range window {
			if math.Abs(ev.Price-vwap) <= band {
				inBand++
			}
		}
		sc.PriceClustering = float64(inBand) / float64(len(window))
	}

	// Side imbalance: one-sided windows score 1, balanced score 0.
	total := a.LongCount + a.ShortCount
	if total > 0 {
		diff := a.LongCount - a.ShortCount
		if diff < 0 {
			diff = -diff
		}
		sc.SideImbalance = float64(diff) / float64(total)
	}

	// Institutional ratio: fraction of fills at or above the size floor.
	institutional := 0
	for _, ev := range window {
		if ev.ValueUSD >= ceil.InstitutionalUSD {
			institutional++
		}
	}
	if len(window) > 0 {
		sc.InstitutionalRatio = float64(institutional) / float64(len(window))
	}

	// Exchange diversity: venues beyond the first, normalized to the fleet.
	if n := len(a.Exchanges); n > 1 {
		sc.ExchangeDiversity = float64(n-1) / float64(len(models.Exchanges)-1)
	}

	return sc
}

// composite is the weighted sum amplified when several factors saturate at
// once, mapping onto a 0..2 scale.
func composite(sc models.RiskSubScores, w appconfig.CascadeWeights) float64 {
	base := sc.VolumeConcentration*w.VolumeConcentration +
		sc.TimeCompression*w.TimeCompression +
		sc.PriceClustering*w.PriceClustering +
		sc.SideImbalance*w.SideImbalance +
		sc.InstitutionalRatio*w.InstitutionalRatio +
		sc.ExchangeDiversity*w.ExchangeDiversity

	saturated := 0
	for _, v := range []float64{
		sc.VolumeConcentration, sc.TimeCompression, sc.PriceClustering,
		sc.SideImbalance, sc.InstitutionalRatio, sc.ExchangeDiversity,
	} {
		if v >= 0.9 {
			saturated++
		}
	}

	score := base * (1 + float64(saturated)/6)
	if score > 2 {
		score = 2
	}
	return score
}

func saturate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
