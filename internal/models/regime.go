package models

import "time"

// VolatilityTier is the 6-level ordered volatility regime classification.
type VolatilityTier int

const (
	VolDormant VolatilityTier = iota
	VolQuiet
	VolNormal
	VolActive
	VolVolatile
	VolExtreme
)

var volatilityNames = [...]string{"DORMANT", "QUIET", "NORMAL", "ACTIVE", "VOLATILE", "EXTREME"}

func (t VolatilityTier) String() string {
	if t < VolDormant || t > VolExtreme {
		return "NORMAL"
	}
	return volatilityNames[t]
}

// Clamp bounds the tier to the defined range after +-1 liquidity adjustments.
func (t VolatilityTier) Clamp() VolatilityTier {
	if t < VolDormant {
		return VolDormant
	}
	if t > VolExtreme {
		return VolExtreme
	}
	return t
}

// LiquidityTier classifies market depth from volume and spread proxies.
type LiquidityTier string

const (
	LiquidityDeep     LiquidityTier = "DEEP"
	LiquidityNormal   LiquidityTier = "NORMAL"
	LiquidityShallow  LiquidityTier = "SHALLOW"
	LiquidityIlliquid LiquidityTier = "ILLIQUID"
)

// TrendTier classifies price direction from moving-average crosses.
type TrendTier string

const (
	TrendStrongDown TrendTier = "STRONG_DOWN"
	TrendDown       TrendTier = "DOWN"
	TrendNeutral    TrendTier = "NEUTRAL"
	TrendUp         TrendTier = "UP"
	TrendStrongUp   TrendTier = "STRONG_UP"
)

// MarketRegime is the composite classification recomputed on each reference
// price tick. It derives the adaptive multiplier pair that rescales downstream
// thresholds: the same raw velocity means different risk in calm vs extreme
// markets.
type MarketRegime struct {
	Volatility VolatilityTier `json:"-"`
	Liquidity  LiquidityTier  `json:"liquidity"`
	Trend      TrendTier      `json:"trend"`

	VolatilityName string  `json:"volatility"`
	RealizedVol1m  float64 `json:"realized_vol_1m"`
	RealizedVol5m  float64 `json:"realized_vol_5m"`
	ReferencePrice float64 `json:"reference_price"`
	Confidence     float64 `json:"confidence"`

	// VelocityThresholdMult rescales absolute velocity thresholds; hard to
	// trigger in EXTREME (baseline noise high), easy in DORMANT.
	VelocityThresholdMult float64 `json:"velocity_threshold_mult"`
	// SensitivityMult scales final probabilities the opposite way.
	SensitivityMult float64 `json:"sensitivity_mult"`
	// RiskMult expresses how much the regime itself contributes to cascade
	// risk, used as the volatility-context score input (1x..5x).
	RiskMult float64 `json:"risk_mult"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRegime is used until the first reference tick arrives. Consumers see
// the zero UpdatedAt and treat the regime as unknown rather than calm.
func DefaultRegime() *MarketRegime {
	return &MarketRegime{
		Volatility:            VolNormal,
		VolatilityName:        VolNormal.String(),
		Liquidity:             LiquidityNormal,
		Trend:                 TrendNeutral,
		VelocityThresholdMult: 1.0,
		SensitivityMult:       1.0,
		RiskMult:              1.0,
	}
}
