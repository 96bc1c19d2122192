package analytics

import (
	"math"
	"time"

	"cascadeflow/internal/models"
)

// correlator measures how synchronized liquidation activity is across venues
// for one symbol. Events are bucketed into per-second counts per exchange and
// pairwise Pearson coefficients are averaged. High correlation means the move
// is market-wide; low correlation points at venue-specific flow.
type correlator struct {
	window time.Duration
}

func newCorrelator(window time.Duration) *correlator {
	return &correlator{window: window}
}

// correlationResult carries the averaged coefficient, its classification and
// the venue with the largest share of activity in the window.
type correlationResult struct {
	Coefficient float64
	Level       models.CorrelationLevel
	Leading     models.Exchange
	LiveVenues  int
}

// Compute builds per-exchange 1s series over the window and averages pairwise
// Pearson coefficients. Venues listed stale are excluded: a silent feed would
// read as a flat zero series and drag correlations down artificially. Series
// with fewer than two points or zero variance contribute zero.
func (c *correlator) Compute(now time.Time, events []models.LiquidationEvent, stale map[models.Exchange]bool) correlationResult {
	buckets := int(c.window / time.Second)
	if buckets < 2 {
		buckets = 2
	}
	startSec := now.Add(-c.window).Unix()

	series := make(map[models.Exchange][]float64)
	totals := make(map[models.Exchange]float64)
	for _, ex := range models.Exchanges {
		if stale[ex] {
			continue
		}
		series[ex] = make([]float64, buckets)
	}

	for _, ev := range events {
		s, ok := series[ev.Exchange]
		if !ok {
			continue
		}
		idx := ev.Time().Unix() - startSec
		if idx < 0 || idx >= int64(buckets) {
			continue
		}
		s[idx]++
		totals[ev.Exchange] += ev.ValueUSD
	}

	var leading models.Exchange
	var leadingValue float64
	for ex, v := range totals {
		if v > leadingValue {
			leadingValue = v
			leading = ex
		}
	}

	live := make([]models.Exchange, 0, len(series))
	for ex := range series {
		live = append(live, ex)
	}

	var sum float64
	var pairs int
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			sum += pearson(series[live[i]], series[live[j]])
			pairs++
		}
	}

	res := correlationResult{Leading: leading, LiveVenues: len(live)}
	if pairs > 0 {
		res.Coefficient = sum / float64(pairs)
	}
	res.Level = models.ClassifyCorrelation(res.Coefficient)
	return res
}

// pearson returns the correlation coefficient of two equal-length series, or
// zero when either has fewer than two points or no variance.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n < 2 || len(b) != n {
		return 0
	}

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
