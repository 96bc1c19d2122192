package feed

import (
	"context"
	"testing"
	"time"

	appconfig "cascadeflow/config"
	liq "cascadeflow/internal/channel/liq"
	"cascadeflow/internal/models"
)

func testNormalizer(t *testing.T) (*Normalizer, *liq.Channels) {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Source.MaxClockSkew = 5 * time.Minute
	cfg.Source.NormalizerWorkers = 1

	ch := liq.NewChannels(8, 8)
	n := NewNormalizer(cfg, ch, NewHealth(30*time.Second))
	n.ctx = context.Background()
	return n, ch
}

func TestValidateAcceptsConsistentEvent(t *testing.T) {
	n, ch := testNormalizer(t)
	defer ch.Close()

	now := time.Now().UTC()
	ev := models.LiquidationEvent{
		TimestampMs: now.UnixMilli(),
		Exchange:    models.ExchangeBinance,
		Symbol:      "BTCUSDT",
		Side:        models.SideLong,
		Price:       60000,
		Quantity:    0.5,
		ValueUSD:    30000,
	}
	if reason := n.validate(&ev, now); reason != "" {
		t.Fatalf("expected event to validate, got %q", reason)
	}
}

func TestValidateRejectsAnomalies(t *testing.T) {
	n, ch := testNormalizer(t)
	defer ch.Close()

	now := time.Now().UTC()
	base := models.LiquidationEvent{
		TimestampMs: now.UnixMilli(),
		Exchange:    models.ExchangeBinance,
		Symbol:      "BTCUSDT",
		Side:        models.SideLong,
		Price:       60000,
		Quantity:    0.5,
		ValueUSD:    30000,
	}

	cases := []struct {
		name   string
		mutate func(*models.LiquidationEvent)
		want   string
	}{
		{"negative price", func(e *models.LiquidationEvent) { e.Price = -1 }, "bad_price"},
		{"zero quantity", func(e *models.LiquidationEvent) { e.Quantity = 0 }, "bad_quantity"},
		{"value mismatch", func(e *models.LiquidationEvent) { e.ValueUSD = 99999 }, "value_mismatch"},
		{"far future", func(e *models.LiquidationEvent) {
			e.TimestampMs = now.Add(time.Hour).UnixMilli()
		}, "timestamp_skew"},
		{"far past", func(e *models.LiquidationEvent) {
			e.TimestampMs = now.Add(-time.Hour).UnixMilli()
		}, "timestamp_skew"},
	}

	for _, tc := range cases {
		ev := base
		tc.mutate(&ev)
		if reason := n.validate(&ev, now); reason != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, reason)
		}
	}
}

func TestValidateRepairsMissingTimestamp(t *testing.T) {
	n, ch := testNormalizer(t)
	defer ch.Close()

	now := time.Now().UTC()
	ev := models.LiquidationEvent{
		Exchange: models.ExchangeOKX,
		Symbol:   "ETHUSDT",
		Side:     models.SideShort,
		Price:    3000,
		Quantity: 2,
		ValueUSD: 6000,
	}
	if reason := n.validate(&ev, now); reason != "" {
		t.Fatalf("expected event to validate, got %q", reason)
	}
	if ev.TimestampMs != now.UnixMilli() {
		t.Fatalf("expected ingest time backfill, got %d", ev.TimestampMs)
	}
}
