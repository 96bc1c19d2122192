package analytics

import (
	"sort"
	"sync"
	"time"

	"cascadeflow/internal/models"
)

// Store mirrors the latest evaluation outputs for concurrent readers.
// Workers write their own symbols only; the HTTP API reads everything.
type Store struct {
	mu          sync.RWMutex
	historySize int

	signals     map[string]models.CascadeSignal
	history     map[string][]models.CascadeSignal
	assessments map[string]models.CascadeRiskAssessment
	velocities  map[string]map[models.Exchange]*models.VelocityMetrics
	correlation map[string]correlationResult
}

// NewStore builds an empty result store with a bounded per-symbol history.
func NewStore(historySize int) *Store {
	if historySize <= 0 {
		historySize = 100
	}
	return &Store{
		historySize: historySize,
		signals:     map[string]models.CascadeSignal{},
		history:     map[string][]models.CascadeSignal{},
		assessments: map[string]models.CascadeRiskAssessment{},
		velocities:  map[string]map[models.Exchange]*models.VelocityMetrics{},
		correlation: map[string]correlationResult{},
	}
}

func (s *Store) record(symbol string, velocities map[models.Exchange]*models.VelocityMetrics, assessment models.CascadeRiskAssessment, sig models.CascadeSignal, corr correlationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals[symbol] = sig
	s.assessments[symbol] = assessment
	s.velocities[symbol] = velocities
	s.correlation[symbol] = corr

	h := append(s.history[symbol], sig)
	if len(h) > s.historySize {
		h = h[len(h)-s.historySize:]
	}
	s.history[symbol] = h
}

// LatestSignal returns the most recent signal for a symbol.
func (s *Store) LatestSignal(symbol string) (models.CascadeSignal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[symbol]
	return sig, ok
}

// SignalHistory returns up to limit recent signals, newest last.
func (s *Store) SignalHistory(symbol string, limit int) []models.CascadeSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.history[symbol]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]models.CascadeSignal, len(h))
	copy(out, h)
	return out
}

// LatestAssessment returns the most recent window assessment for a symbol.
func (s *Store) LatestAssessment(symbol string) (models.CascadeRiskAssessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[symbol]
	return a, ok
}

// Velocity returns the latest per-venue velocity snapshots for a symbol.
func (s *Store) Velocity(symbol string) (map[models.Exchange]*models.VelocityMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.velocities[symbol]
	if !ok {
		return nil, false
	}
	out := make(map[models.Exchange]*models.VelocityMetrics, len(v))
	for ex, m := range v {
		out[ex] = m
	}
	return out, true
}

// Correlation returns the latest cross-exchange correlation for a symbol.
func (s *Store) Correlation(symbol string) (float64, models.CorrelationLevel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.correlation[symbol]
	return c.Coefficient, c.Level, ok
}

// Symbols lists every symbol with at least one evaluation, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.signals))
	for sym := range s.signals {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ActiveSignals returns the latest signal per symbol at or above the minimum
// level, evaluated within maxAge.
func (s *Store) ActiveSignals(min models.SignalLevel, maxAge time.Duration) []models.CascadeSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	var out []models.CascadeSignal
	for _, sig := range s.signals {
		if sig.Signal >= min && sig.Timestamp.After(cutoff) {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}
