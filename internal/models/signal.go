package models

import "time"

// SignalLevel is the discrete severity derived from cascade probability.
type SignalLevel int

const (
	LevelNone SignalLevel = iota
	LevelWatch
	LevelAlert
	LevelCritical
	LevelExtreme
)

var levelNames = [...]string{"NONE", "WATCH", "ALERT", "CRITICAL", "EXTREME"}

func (l SignalLevel) String() string {
	if l < LevelNone || l > LevelExtreme {
		return "NONE"
	}
	return levelNames[l]
}

// MarshalJSON emits the level name; the wire schema is string-typed.
func (l SignalLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// Action is the recommended operator response derived from level and
// confidence jointly.
type Action string

const (
	ActionNormal  Action = "NORMAL"
	ActionMonitor Action = "MONITOR"
	ActionAlert   Action = "ALERT"
	ActionUrgent  Action = "URGENT"
)

// SignalScores are the six normalized [0,1] component scores of the
// predictive generator.
type SignalScores struct {
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Volume       float64 `json:"volume"`
	OIChange     float64 `json:"oi_change"`
	Funding      float64 `json:"funding"`
	Volatility   float64 `json:"volatility"`
}

// SignalMetrics are the raw inputs behind the scores, published for
// consumers that want unscaled values.
type SignalMetrics struct {
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	VolumeUSD    float64 `json:"volume_usd"`
	OIChange1m   float64 `json:"oi_change_1m"`
	FundingRate  float64 `json:"funding_rate"`
}

// SignalContext carries market state so consumers see gaps (stale venue,
// unknown regime) explicitly instead of silently wrong numbers.
type SignalContext struct {
	VolatilityRegime    string   `json:"volatility_regime"`
	ReferencePrice      float64  `json:"reference_price"`
	RiskMultiplier      float64  `json:"risk_multiplier"`
	LeadingExchange     Exchange `json:"leading_exchange"`
	ExchangeCorrelation float64  `json:"exchange_correlation"`
	StaleExchanges      []Exchange `json:"stale_exchanges,omitempty"`
}

// SignalMeta holds evaluation bookkeeping.
type SignalMeta struct {
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// CascadeSignal is the forward-looking output of one evaluation cycle for one
// symbol. Appended to a bounded rolling history and published at-most-once;
// never retroactively corrected.
type CascadeSignal struct {
	Symbol      string        `json:"symbol"`
	Timestamp   time.Time     `json:"timestamp"`
	Signal      SignalLevel   `json:"signal"`
	Probability float64       `json:"probability"`
	Confidence  float64       `json:"confidence"`
	Action      Action        `json:"action"`
	Scores      SignalScores  `json:"scores"`
	Metrics     SignalMetrics `json:"metrics"`
	Context     SignalContext `json:"context"`
	Meta        SignalMeta    `json:"meta"`
}
