package analytics

import (
	"math"
	"testing"
	"time"

	"cascadeflow/internal/models"
)

func TestPearsonPerfectCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	if got := pearson(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected coefficient 1.0, got %f", got)
	}
}

func TestPearsonDegenerateSeries(t *testing.T) {
	if got := pearson([]float64{1}, []float64{2}); got != 0 {
		t.Fatalf("single-point series must score 0, got %f", got)
	}
	if got := pearson([]float64{3, 3, 3}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("zero-variance series must score 0, got %f", got)
	}
}

func TestCorrelatorSynchronizedVenues(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	c := newCorrelator(30 * time.Second)

	var events []models.LiquidationEvent
	for s := 0; s < 30; s++ {
		n := 1 + s%4
		for i := 0; i < n; i++ {
			at := base.Add(time.Duration(s) * time.Second)
			for _, ex := range []models.Exchange{models.ExchangeBinance, models.ExchangeBybit} {
				events = append(events, models.LiquidationEvent{
					TimestampMs: at.UnixMilli(),
					Exchange:    ex,
					Symbol:      "BTCUSDT",
					Side:        models.SideLong,
					Price:       60000,
					Quantity:    1,
					ValueUSD:    60000,
				})
			}
		}
	}

	res := c.Compute(base.Add(30*time.Second), events, map[models.Exchange]bool{
		models.ExchangeOKX:    true,
		models.ExchangeKucoin: true,
	})

	if res.LiveVenues != 2 {
		t.Fatalf("expected 2 live venues, got %d", res.LiveVenues)
	}
	if res.Coefficient < 0.99 {
		t.Fatalf("identical activity must correlate near 1.0, got %f", res.Coefficient)
	}
	if res.Level != models.CorrelationHigh {
		t.Fatalf("expected HIGH correlation, got %s", res.Level)
	}
}

func TestCorrelatorExcludesStaleVenues(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	c := newCorrelator(30 * time.Second)

	var events []models.LiquidationEvent
	for s := 0; s < 30; s += 2 {
		events = append(events, models.LiquidationEvent{
			TimestampMs: base.Add(time.Duration(s) * time.Second).UnixMilli(),
			Exchange:    models.ExchangeBinance,
			Symbol:      "BTCUSDT",
			Side:        models.SideLong,
			Price:       60000,
			Quantity:    1,
			ValueUSD:    60000,
		})
	}

	stale := map[models.Exchange]bool{
		models.ExchangeBybit:  true,
		models.ExchangeOKX:    true,
		models.ExchangeKucoin: true,
	}
	res := c.Compute(base.Add(30*time.Second), events, stale)

	if res.LiveVenues != 1 {
		t.Fatalf("expected 1 live venue, got %d", res.LiveVenues)
	}
	if res.Coefficient != 0 {
		t.Fatalf("single venue yields no pairs, coefficient must be 0, got %f", res.Coefficient)
	}
	if res.Leading != models.ExchangeBinance {
		t.Fatalf("expected binance leading, got %s", res.Leading)
	}
}

func TestClassifyCorrelationBoundaries(t *testing.T) {
	cases := []struct {
		coeff float64
		want  models.CorrelationLevel
	}{
		{0.95, models.CorrelationHigh},
		{0.71, models.CorrelationHigh},
		{0.5, models.CorrelationModerate},
		{0.3, models.CorrelationModerate},
		{0.1, models.CorrelationLow},
		{-0.8, models.CorrelationHigh},
	}
	for _, tc := range cases {
		if got := models.ClassifyCorrelation(tc.coeff); got != tc.want {
			t.Fatalf("ClassifyCorrelation(%f) = %s, want %s", tc.coeff, got, tc.want)
		}
	}
}
