package analytics

import (
	"testing"
	"time"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
)

func testSignalConfig() appconfig.SignalConfig {
	return appconfig.SignalConfig{
		Ceilings: appconfig.SignalCeilings{
			Velocity:     50,
			Acceleration: 20,
			VolumeRate:   50_000_000,
			OIChangePct:  5,
			FundingPct:   0.1,
			RiskMult:     5,
		},
		Weights: appconfig.SignalWeights{
			Velocity:     0.25,
			Acceleration: 0.20,
			Volume:       0.20,
			OIChange:     0.15,
			Funding:      0.10,
			Volatility:   0.10,
		},
		Levels: appconfig.LevelThresholds{
			Extreme:  0.90,
			Critical: 0.70,
			Alert:    0.50,
			Watch:    0.30,
		},
		AccelVelocityGate:    0.75,
		AccelVelocityBoost:   1.5,
		CorrelationGate:      0.7,
		CorrelationBoost:     1.2,
		ExtremeVelocity:      100,
		ExtremeAcceleration:  40,
		CriticalVelocity:     50,
		CriticalAcceleration: 20,
		ConfidenceSampleSize: 10,
	}
}

func neutralRegime() *models.MarketRegime {
	r := models.DefaultRegime()
	r.UpdatedAt = time.Unix(1_700_000_000, 0)
	return r
}

func TestSignalQuietMarketIsNone(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 0.1, VolumeVelocity: 1000},
		Regime:   neutralRegime(),
	})

	if sig.Signal != models.LevelNone {
		t.Fatalf("quiet market must be NONE, got %s", sig.Signal)
	}
	if sig.Action != models.ActionNormal {
		t.Fatalf("quiet market action must be NORMAL, got %s", sig.Action)
	}
	if sig.Probability < 0 || sig.Probability > 1 {
		t.Fatalf("probability out of bounds: %f", sig.Probability)
	}
}

func TestSignalProbabilityClamped(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity: models.TimeframeMetrics{
			Velocity:       500,
			Acceleration:   200,
			VolumeVelocity: 1e9,
		},
		OIChangePct: 50,
		OIKnown:     true,
		FundingRate: 0.05,
		Regime:      neutralRegime(),
		Correlation: correlationResult{Coefficient: 0.95, LiveVenues: 4},
	})

	if sig.Probability > 1 {
		t.Fatalf("probability must clamp to 1, got %f", sig.Probability)
	}
	if sig.Signal != models.LevelExtreme {
		t.Fatalf("saturated inputs must be EXTREME, got %s", sig.Signal)
	}
	if sig.Action != models.ActionUrgent {
		t.Fatalf("extreme level must act URGENT, got %s", sig.Action)
	}
}

func TestSignalVelocityOverrideForcesExtreme(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())

	// High raw velocity and acceleration but everything else neutral. The
	// weighted probability alone would land below EXTREME.
	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 120, Acceleration: 45},
		Regime:   neutralRegime(),
	})

	if sig.Signal != models.LevelExtreme {
		t.Fatalf("velocity 120 with acceleration 45 must force EXTREME, got %s", sig.Signal)
	}
}

func TestSignalVelocityOverrideForcesCritical(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 60, Acceleration: 25},
		Regime:   neutralRegime(),
	})

	if sig.Signal < models.LevelCritical {
		t.Fatalf("velocity 60 with acceleration 25 must reach at least CRITICAL, got %s", sig.Signal)
	}
}

func TestSignalMomentumAmplification(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	in := signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 40, Acceleration: 16},
		Regime:   neutralRegime(),
	}

	amplified := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), in)

	in.Velocity.Acceleration = 5 // below the gate
	flat := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), in)

	// Score gap must exceed the raw acceleration weight difference alone.
	if amplified.Probability <= flat.Probability {
		t.Fatalf("joint velocity+acceleration must amplify: %f vs %f", amplified.Probability, flat.Probability)
	}
	if amplified.Scores.Velocity != 0.8 {
		t.Fatalf("velocity score = %f, want 0.8", amplified.Scores.Velocity)
	}
	if amplified.Scores.Acceleration != 0.8 {
		t.Fatalf("acceleration score = %f, want 0.8", amplified.Scores.Acceleration)
	}
}

func TestSignalRegimeSensitivityScaling(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())

	in := signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 25, VolumeVelocity: 10_000_000},
	}

	calm := models.DefaultRegime()
	calm.SensitivityMult = 1.5

	loud := models.DefaultRegime()
	loud.SensitivityMult = 0.5

	in.Regime = calm
	calmSig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), in)
	in.Regime = loud
	loudSig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), in)

	if calmSig.Probability <= loudSig.Probability {
		t.Fatalf("calm regime must be more sensitive: %f vs %f", calmSig.Probability, loudSig.Probability)
	}
}

func TestSignalUnknownOIStaysNeutral(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity:    models.TimeframeMetrics{Velocity: 10},
		OIChangePct: 4.5,
		OIKnown:     false,
		Regime:      neutralRegime(),
	})

	if sig.Scores.OIChange != 0 {
		t.Fatalf("unknown open interest must score 0, got %f", sig.Scores.OIChange)
	}
}

func TestSignalContextCarriesMarketState(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	regime := neutralRegime()
	regime.ReferencePrice = 61234.5

	sig := g.Generate("BTCUSDT", time.Unix(1_700_000_000, 0), signalInputs{
		Velocity: models.TimeframeMetrics{Velocity: 1},
		Regime:   regime,
		Correlation: correlationResult{
			Coefficient: 0.82,
			Leading:     models.ExchangeBinance,
			LiveVenues:  3,
		},
		Stale: []models.Exchange{models.ExchangeKucoin},
	})

	if sig.Context.ReferencePrice != 61234.5 {
		t.Fatalf("reference price not carried: %f", sig.Context.ReferencePrice)
	}
	if sig.Context.LeadingExchange != models.ExchangeBinance {
		t.Fatalf("leading exchange not carried: %s", sig.Context.LeadingExchange)
	}
	if len(sig.Context.StaleExchanges) != 1 || sig.Context.StaleExchanges[0] != models.ExchangeKucoin {
		t.Fatalf("stale exchanges not carried: %v", sig.Context.StaleExchanges)
	}
}

func TestSignalLevelBoundaries(t *testing.T) {
	g := newSignalGenerator(testSignalConfig())
	cases := []struct {
		p    float64
		want models.SignalLevel
	}{
		{0.95, models.LevelExtreme},
		{0.90, models.LevelExtreme},
		{0.75, models.LevelCritical},
		{0.55, models.LevelAlert},
		{0.35, models.LevelWatch},
		{0.1, models.LevelNone},
	}
	for _, tc := range cases {
		if got := g.levelFor(tc.p); got != tc.want {
			t.Fatalf("levelFor(%f) = %s, want %s", tc.p, got, tc.want)
		}
	}
}
