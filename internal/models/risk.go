package models

import "time"

// CascadeType tags how widely a detected cascade spreads across venues.
type CascadeType string

const (
	CascadeNone           CascadeType = "NONE"
	CascadeSingleExchange CascadeType = "SINGLE_EXCHANGE"
	CascadeCrossExchange  CascadeType = "CROSS_EXCHANGE"
)

// RiskSubScores are the six normalized [0,1] factors of the confirmatory
// window scorer.
type RiskSubScores struct {
	VolumeConcentration float64 `json:"volume_concentration"`
	TimeCompression     float64 `json:"time_compression"`
	PriceClustering     float64 `json:"price_clustering"`
	SideImbalance       float64 `json:"side_imbalance"`
	InstitutionalRatio  float64 `json:"institutional_ratio"`
	ExchangeDiversity   float64 `json:"exchange_diversity"`
}

// CascadeRiskAssessment is produced per evaluation of one symbol's trailing
// window. It is backward-looking: by the time it fires the cascade is already
// underway. Used for alerting and as a calibration label for the predictive
// signal thresholds.
type CascadeRiskAssessment struct {
	Symbol      string        `json:"symbol"`
	WindowEnd   time.Time     `json:"window_end"`
	WindowSpan  time.Duration `json:"window_span"`
	EventCount  int           `json:"event_count"`
	TotalValue  float64       `json:"total_value_usd"`
	LongCount   int           `json:"long_count"`
	ShortCount  int           `json:"short_count"`
	SubScores   RiskSubScores `json:"sub_scores"`
	Composite   float64       `json:"composite"` // 0.0 - 2.0 scale
	CascadeType CascadeType   `json:"cascade_type"`
	Exchanges   []Exchange    `json:"exchanges"`
}
