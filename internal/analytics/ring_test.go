package analytics

import (
	"testing"
	"time"

	"cascadeflow/internal/models"
)

func ringEvent(tsMs int64) models.LiquidationEvent {
	return models.LiquidationEvent{
		TimestampMs: tsMs,
		Exchange:    models.ExchangeBinance,
		Symbol:      "BTCUSDT",
		Side:        models.SideLong,
		Price:       60000,
		Quantity:    1,
		ValueUSD:    60000,
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := newEventRing(3)
	for i := int64(1); i <= 5; i++ {
		r.Append(ringEvent(i))
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 stored events, got %d", r.Len())
	}

	var got []int64
	r.Scan(func(ev models.LiquidationEvent) bool {
		got = append(got, ev.TimestampMs)
		return true
	})
	want := []int64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scan order %v, want %v", got, want)
		}
	}
}

func TestRingSinceFiltersByCutoff(t *testing.T) {
	r := newEventRing(10)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 6; i++ {
		r.Append(ringEvent(base.Add(time.Duration(i) * time.Second).UnixMilli()))
	}

	out := r.Since(base.Add(3*time.Second), nil)
	if len(out) != 3 {
		t.Fatalf("expected 3 events after cutoff, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].TimestampMs < out[i-1].TimestampMs {
			t.Fatal("Since must return events oldest first")
		}
	}
}

func TestRingSinceKeepsWindowAfterLateArrival(t *testing.T) {
	r := newEventRing(100)
	base := time.Unix(1_700_000_000, 0)
	now := base.Add(10 * time.Second)

	for i := 0; i < 10; i++ {
		r.Append(ringEvent(base.Add(time.Duration(i) * time.Second).UnixMilli()))
	}
	// A venue redelivers an old fill: newest slot, two-minute-old timestamp.
	r.Append(ringEvent(base.Add(-2 * time.Minute).UnixMilli()))

	out := r.Since(now.Add(-50*time.Second), nil)
	if len(out) != 10 {
		t.Fatalf("late arrival must not hide in-window events, got %d of 10", len(out))
	}
	for _, ev := range out {
		if ev.TimestampMs < now.Add(-50*time.Second).UnixMilli() {
			t.Fatalf("stale event leaked into window: ts %d", ev.TimestampMs)
		}
	}
}

func TestRingSinceEmptyWindow(t *testing.T) {
	r := newEventRing(4)
	r.Append(ringEvent(1000))
	if out := r.Since(time.UnixMilli(5000), nil); len(out) != 0 {
		t.Fatalf("expected empty result, got %d events", len(out))
	}
}
