package analytics

import (
	"testing"
	"time"

	"cascadeflow/internal/models"
)

func TestStoreHistoryBounded(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 10; i++ {
		sig := models.CascadeSignal{
			Symbol:      "BTCUSDT",
			Timestamp:   time.Unix(int64(1_700_000_000+i), 0),
			Probability: float64(i) / 10,
		}
		s.record("BTCUSDT", nil, models.CascadeRiskAssessment{Symbol: "BTCUSDT"}, sig, correlationResult{})
	}

	h := s.SignalHistory("BTCUSDT", 0)
	if len(h) != 3 {
		t.Fatalf("history must stay bounded at 3, got %d", len(h))
	}
	if h[len(h)-1].Probability != 0.9 {
		t.Fatalf("newest signal must be last, got %f", h[len(h)-1].Probability)
	}

	latest, ok := s.LatestSignal("BTCUSDT")
	if !ok || latest.Probability != 0.9 {
		t.Fatalf("latest signal mismatch: %v %f", ok, latest.Probability)
	}
}

func TestStoreActiveSignalsFiltersLevelAndAge(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.record("BTCUSDT", nil, models.CascadeRiskAssessment{}, models.CascadeSignal{
		Symbol: "BTCUSDT", Timestamp: now, Signal: models.LevelCritical, Probability: 0.8,
	}, correlationResult{})
	s.record("ETHUSDT", nil, models.CascadeRiskAssessment{}, models.CascadeSignal{
		Symbol: "ETHUSDT", Timestamp: now, Signal: models.LevelWatch, Probability: 0.35,
	}, correlationResult{})
	s.record("SOLUSDT", nil, models.CascadeRiskAssessment{}, models.CascadeSignal{
		Symbol: "SOLUSDT", Timestamp: now.Add(-time.Hour), Signal: models.LevelExtreme, Probability: 0.95,
	}, correlationResult{})

	active := s.ActiveSignals(models.LevelAlert, 5*time.Minute)
	if len(active) != 1 {
		t.Fatalf("expected only the fresh critical signal, got %d", len(active))
	}
	if active[0].Symbol != "BTCUSDT" {
		t.Fatalf("expected BTCUSDT, got %s", active[0].Symbol)
	}

	if got := s.Symbols(); len(got) != 3 || got[0] != "BTCUSDT" {
		t.Fatalf("symbol listing wrong: %v", got)
	}
}
