package analytics

import (
	"time"

	"cascadeflow/internal/models"
)

// frameState holds the previous snapshot per window so the tracker can take
// discrete derivatives between evaluation cycles.
type frameState struct {
	prevVelocity float64
	prevAccel    float64
	prevAt       time.Time
	seeded       bool
	accelSeeded  bool
}

// velocityTracker computes multi-timeframe velocity metrics for one
// (symbol, exchange) pair. Acceleration is the velocity delta between
// consecutive snapshots divided by elapsed wall time, jerk the same applied to
// acceleration. A constant event rate therefore yields zero acceleration.
type velocityTracker struct {
	symbol   string
	exchange models.Exchange
	frames   map[time.Duration]*frameState
}

func newVelocityTracker(symbol string, exchange models.Exchange) *velocityTracker {
	return &velocityTracker{
		symbol:   symbol,
		exchange: exchange,
		frames:   map[time.Duration]*frameState{},
	}
}

// Compute builds a fresh snapshot from the events inside each window. The
// events slice must already be filtered to this tracker's symbol; arrival
// order does not matter. Exchange filtering happens here so one scan of the
// ring serves both per-venue and aggregate trackers.
func (t *velocityTracker) Compute(now time.Time, windows []time.Duration, events []models.LiquidationEvent) *models.VelocityMetrics {
	m := &models.VelocityMetrics{
		Symbol:     t.symbol,
		Exchange:   t.exchange,
		Timeframes: make(map[time.Duration]models.TimeframeMetrics, len(windows)),
		ComputedAt: now,
	}

	nowMs := now.UnixMilli()
	for _, w := range windows {
		cutoffMs := now.Add(-w).UnixMilli()

		var count int
		var volume float64
		for _, ev := range events {
			if ev.TimestampMs < cutoffMs || ev.TimestampMs > nowMs {
				continue
			}
			if t.exchange != models.ExchangeAll && ev.Exchange != t.exchange {
				continue
			}
			count++
			volume += ev.ValueUSD
		}

		secs := w.Seconds()
		frame := models.TimeframeMetrics{
			Window:         w,
			EventCount:     count,
			VolumeUSD:      volume,
			Velocity:       float64(count) / secs,
			VolumeVelocity: volume / secs,
		}

		st := t.frames[w]
		if st == nil {
			st = &frameState{}
			t.frames[w] = st
		}

		if st.seeded {
			dt := now.Sub(st.prevAt).Seconds()
			if dt > 0 {
				frame.Acceleration = (frame.Velocity - st.prevVelocity) / dt
				if st.accelSeeded {
					frame.Jerk = (frame.Acceleration - st.prevAccel) / dt
				}
				st.prevAccel = frame.Acceleration
				st.accelSeeded = true
			}
		}
		st.prevVelocity = frame.Velocity
		st.prevAt = now
		st.seeded = true

		m.Timeframes[w] = frame
	}

	return m
}
