package analytics

import (
	"math"
	"testing"
	"time"

	appconfig "cascadeflow/config"
	market "cascadeflow/internal/channel/market"
	"cascadeflow/internal/models"
)

func testRegimeDetector() *RegimeDetector {
	cfg := &appconfig.Config{}
	cfg.Regime = appconfig.RegimeConfig{
		ReferenceSymbol: "BTCUSDT",
		VolHorizons:     []time.Duration{time.Minute, 5 * time.Minute},
		VolTierBounds:   []float64{2, 5, 12, 25, 50},
		FastMA:          time.Minute,
		SlowMA:          5 * time.Minute,
	}
	return NewRegimeDetector(cfg, market.NewChannels(16))
}

func feedTicks(d *RegimeDetector, base time.Time, prices []float64) {
	for i, p := range prices {
		d.observe(models.PriceTick{
			Exchange:    models.ExchangeBinance,
			Symbol:      "BTCUSDT",
			Price:       p,
			TimestampMs: base.Add(time.Duration(i) * time.Second).UnixMilli(),
		})
	}
}

func TestRegimeDefaultUntilFirstTick(t *testing.T) {
	d := testRegimeDetector()
	r := d.Current()
	if r.Volatility != models.VolNormal {
		t.Fatalf("default regime must be NORMAL, got %s", r.VolatilityName)
	}
	if !r.UpdatedAt.IsZero() {
		t.Fatal("default regime must carry zero UpdatedAt")
	}
}

func TestRegimeFlatPricesAreDormant(t *testing.T) {
	d := testRegimeDetector()
	base := time.Unix(1_700_000_000, 0).UTC()

	prices := make([]float64, 120)
	for i := range prices {
		prices[i] = 60000
	}
	feedTicks(d, base, prices)

	r := d.Current()
	if r.Volatility != models.VolDormant && r.Volatility != models.VolQuiet {
		t.Fatalf("flat prices must classify calm, got %s", r.VolatilityName)
	}
	if r.VelocityThresholdMult >= 1.0 {
		t.Fatalf("calm regime must lower velocity thresholds, got %f", r.VelocityThresholdMult)
	}
	if r.SensitivityMult <= 1.0 {
		t.Fatalf("calm regime must raise sensitivity, got %f", r.SensitivityMult)
	}
}

func TestRegimeWildSwingsAreExtreme(t *testing.T) {
	d := testRegimeDetector()
	base := time.Unix(1_700_000_000, 0).UTC()

	prices := make([]float64, 120)
	for i := range prices {
		// 2% alternating swings, far past the top tier boundary.
		if i%2 == 0 {
			prices[i] = 60000
		} else {
			prices[i] = 61200
		}
	}
	feedTicks(d, base, prices)

	r := d.Current()
	if r.Volatility != models.VolExtreme {
		t.Fatalf("2%% swings must classify EXTREME, got %s", r.VolatilityName)
	}
	if r.VelocityThresholdMult != 2.5 {
		t.Fatalf("EXTREME threshold multiplier must be 2.5, got %f", r.VelocityThresholdMult)
	}
	if r.SensitivityMult != 0.5 {
		t.Fatalf("EXTREME sensitivity multiplier must be 0.5, got %f", r.SensitivityMult)
	}
	if r.RiskMult != 5.0 {
		t.Fatalf("EXTREME risk multiplier must be 5.0, got %f", r.RiskMult)
	}
}

func TestRegimeTrendFromMACross(t *testing.T) {
	d := testRegimeDetector()
	base := time.Unix(1_700_000_000, 0).UTC()

	// Steady grind upward: fast MA ends well above slow MA.
	prices := make([]float64, 300)
	for i := range prices {
		prices[i] = 60000 + float64(i)*10
	}
	feedTicks(d, base, prices)

	r := d.Current()
	if r.Trend != models.TrendUp && r.Trend != models.TrendStrongUp {
		t.Fatalf("rising prices must trend up, got %s", r.Trend)
	}
}

func TestTierForVolBoundaries(t *testing.T) {
	bounds := []float64{2, 5, 12, 25, 50}
	cases := []struct {
		vol  float64
		want models.VolatilityTier
	}{
		{0, models.VolDormant},
		{1.9, models.VolDormant},
		{2, models.VolQuiet},
		{5, models.VolNormal},
		{12, models.VolActive},
		{25, models.VolVolatile},
		{50, models.VolExtreme},
		{500, models.VolExtreme},
	}
	for _, tc := range cases {
		if got := tierForVol(tc.vol, bounds); got != tc.want {
			t.Fatalf("tierForVol(%f) = %s, want %s", tc.vol, got, tc.want)
		}
	}
}

func TestRealizedVolMatchesSwingSize(t *testing.T) {
	d := testRegimeDetector()
	base := time.Unix(1_700_000_000, 0).UTC()

	prices := make([]float64, 60)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 60000
		} else {
			prices[i] = 60060 // 10 bps swings
		}
	}
	feedTicks(d, base, prices)

	vol := d.realizedVolBps(base.Add(60*time.Second), time.Minute)
	// Alternating +-10 bps log returns have a stddev near 10 bps.
	if math.Abs(vol-10) > 1.5 {
		t.Fatalf("realized vol = %f bps, want about 10", vol)
	}
}

func TestRegimeMultiplierTableComplete(t *testing.T) {
	for tier := models.VolDormant; tier <= models.VolExtreme; tier++ {
		m, ok := regimeMultipliers[tier]
		if !ok {
			t.Fatalf("missing multipliers for tier %s", tier)
		}
		if m.threshold <= 0 || m.sensitivity <= 0 || m.risk < 1 || m.risk > 5 {
			t.Fatalf("unreasonable multipliers for %s: %+v", tier, m)
		}
	}
}
