package models

import "time"

// TimeframeMetrics holds the rate-of-change metrics for one lookback window.
// Velocity is events/sec, VolumeVelocity is USD/sec; Acceleration and Jerk are
// the first and second derivatives of Velocity between snapshots.
type TimeframeMetrics struct {
	Window         time.Duration `json:"window"`
	EventCount     int           `json:"event_count"`
	VolumeUSD      float64       `json:"volume_usd"`
	Velocity       float64       `json:"velocity"`
	VolumeVelocity float64       `json:"volume_velocity"`
	Acceleration   float64       `json:"acceleration"`
	Jerk           float64       `json:"jerk"`
}

// VelocityMetrics is an ephemeral snapshot keyed by (symbol, exchange|"all").
// It is recomputed each evaluation cycle and superseded, never accumulated.
type VelocityMetrics struct {
	Symbol     string                          `json:"symbol"`
	Exchange   Exchange                        `json:"exchange"`
	Timeframes map[time.Duration]TimeframeMetrics `json:"timeframes"`
	ComputedAt time.Time                       `json:"computed_at"`
}

// Frame returns the metrics for one window, or a zero value when the window
// has not been computed.
func (m *VelocityMetrics) Frame(w time.Duration) TimeframeMetrics {
	if m == nil || m.Timeframes == nil {
		return TimeframeMetrics{Window: w}
	}
	return m.Timeframes[w]
}

// CorrelationLevel classifies a cross-exchange Pearson coefficient.
type CorrelationLevel string

const (
	CorrelationHigh     CorrelationLevel = "HIGH"     // > 0.7, market-wide move
	CorrelationModerate CorrelationLevel = "MODERATE" // 0.3 - 0.7
	CorrelationLow      CorrelationLevel = "LOW"      // < 0.3, venue-specific
)

// ClassifyCorrelation maps a coefficient to its level.
func ClassifyCorrelation(coeff float64) CorrelationLevel {
	abs := coeff
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0.7:
		return CorrelationHigh
	case abs >= 0.3:
		return CorrelationModerate
	default:
		return CorrelationLow
	}
}
