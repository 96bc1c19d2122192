package analytics

import (
	"math"
	"testing"
	"time"

	"cascadeflow/internal/models"
)

func eventsAtRate(start time.Time, perSecond int, seconds int, valueUSD float64) []models.LiquidationEvent {
	var out []models.LiquidationEvent
	for s := 0; s < seconds; s++ {
		for i := 0; i < perSecond; i++ {
			at := start.Add(time.Duration(s)*time.Second + time.Duration(i)*time.Second/time.Duration(perSecond))
			out = append(out, models.LiquidationEvent{
				TimestampMs: at.UnixMilli(),
				Exchange:    models.ExchangeBinance,
				Symbol:      "BTCUSDT",
				Side:        models.SideLong,
				Price:       60000,
				Quantity:    valueUSD / 60000,
				ValueUSD:    valueUSD,
			})
		}
	}
	return out
}

func TestVelocityCountsAndRates(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tr := newVelocityTracker("BTCUSDT", models.ExchangeAll)

	events := eventsAtRate(base, 5, 10, 10_000)
	now := base.Add(10 * time.Second)
	m := tr.Compute(now, []time.Duration{10 * time.Second}, events)

	frame := m.Frame(10 * time.Second)
	if frame.EventCount != 50 {
		t.Fatalf("expected 50 events in window, got %d", frame.EventCount)
	}
	if math.Abs(frame.Velocity-5.0) > 1e-9 {
		t.Fatalf("expected velocity 5 ev/s, got %f", frame.Velocity)
	}
	if math.Abs(frame.VolumeVelocity-50_000) > 1e-6 {
		t.Fatalf("expected 50000 USD/s, got %f", frame.VolumeVelocity)
	}
}

func TestConstantRateHasZeroAcceleration(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tr := newVelocityTracker("BTCUSDT", models.ExchangeAll)
	windows := []time.Duration{10 * time.Second}

	// Three snapshots one second apart over a steady 5 ev/s stream.
	events := eventsAtRate(base, 5, 20, 10_000)
	for i := 10; i <= 12; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		m := tr.Compute(now, windows, events)
		if i == 12 {
			frame := m.Frame(10 * time.Second)
			if math.Abs(frame.Acceleration) > 1e-9 {
				t.Fatalf("constant rate must yield zero acceleration, got %f", frame.Acceleration)
			}
			if math.Abs(frame.Jerk) > 1e-9 {
				t.Fatalf("constant rate must yield zero jerk, got %f", frame.Jerk)
			}
		}
	}
}

func TestRateStepProducesPositiveAcceleration(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tr := newVelocityTracker("BTCUSDT", models.ExchangeAll)
	windows := []time.Duration{10 * time.Second}

	calm := eventsAtRate(base, 2, 11, 10_000)
	tr.Compute(base.Add(10*time.Second), windows, calm)

	// One second later the window contains a burst on top of the calm flow.
	burst := append(calm, eventsAtRate(base.Add(10*time.Second), 30, 1, 10_000)...)
	m := tr.Compute(base.Add(11*time.Second), windows, burst)

	frame := m.Frame(10 * time.Second)
	if frame.Acceleration <= 0 {
		t.Fatalf("rate step must yield positive acceleration, got %f", frame.Acceleration)
	}
}

func TestRateStepProducesTransientPositiveJerk(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	tr := newVelocityTracker("BTCUSDT", models.ExchangeAll)
	windows := []time.Duration{10 * time.Second}

	// Two calm snapshots seed velocity and acceleration at zero change.
	calm := eventsAtRate(base, 2, 12, 10_000)
	tr.Compute(base.Add(10*time.Second), windows, calm)
	tr.Compute(base.Add(11*time.Second), windows, calm)

	// The burst lands between the second and third snapshots, so acceleration
	// jumps from zero and the jerk of that jump must be positive.
	burst := append(calm, eventsAtRate(base.Add(11*time.Second), 30, 1, 10_000)...)
	m := tr.Compute(base.Add(12*time.Second), windows, burst)

	frame := m.Frame(10 * time.Second)
	if frame.Acceleration <= 0 {
		t.Fatalf("rate step must yield positive acceleration, got %f", frame.Acceleration)
	}
	if frame.Jerk <= 0 {
		t.Fatalf("acceleration increase must yield positive jerk, got %f", frame.Jerk)
	}
}

func TestVelocityFiltersByExchange(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	events := eventsAtRate(base, 4, 10, 10_000)
	for i := range events {
		if i%2 == 0 {
			events[i].Exchange = models.ExchangeBybit
		}
	}

	now := base.Add(10 * time.Second)
	windows := []time.Duration{10 * time.Second}

	all := newVelocityTracker("BTCUSDT", models.ExchangeAll).Compute(now, windows, events)
	bybit := newVelocityTracker("BTCUSDT", models.ExchangeBybit).Compute(now, windows, events)

	if all.Frame(10*time.Second).EventCount != 40 {
		t.Fatalf("aggregate tracker missed events: %d", all.Frame(10*time.Second).EventCount)
	}
	if bybit.Frame(10*time.Second).EventCount != 20 {
		t.Fatalf("venue tracker must only count its venue: %d", bybit.Frame(10*time.Second).EventCount)
	}
}
