package analytics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	appconfig "cascadeflow/config"
	liq "cascadeflow/internal/channel/liq"
	market "cascadeflow/internal/channel/market"
	signalch "cascadeflow/internal/channel/signal"
	"cascadeflow/internal/feed"
	"cascadeflow/internal/models"
)

func testEngineConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Analytics.Workers = 1
	cfg.Analytics.RingCapacity = 100
	cfg.Analytics.Timeframes = []time.Duration{time.Second, 10 * time.Second}
	cfg.Analytics.CorrelationWindow = 10 * time.Second
	cfg.Analytics.PublishCycle = time.Hour
	cfg.Analytics.SignalHistorySize = 10
	cfg.Cascade.Window = 10 * time.Second
	cfg.Cascade.MinCount = 5
	cfg.Cascade.MinValue = 100_000
	return cfg
}

func TestDispatchFansOutEachEventOnce(t *testing.T) {
	cfg := testEngineConfig()
	liqCh := liq.NewChannels(16, 16)
	marketCh := market.NewChannels(4)
	signalCh := signalch.NewChannels(16)

	e := NewEngine(cfg, liqCh, marketCh, signalCh, feed.NewHealth(time.Minute), NewRegimeDetector(cfg, marketCh))
	var calls int64
	e.AddEventSink(func(models.LiquidationEvent) { atomic.AddInt64(&calls, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		liqCh.Events <- models.LiquidationEvent{
			TimestampMs: time.Now().UnixMilli(),
			Exchange:    models.ExchangeBinance,
			Symbol:      "BTCUSDT",
			Side:        models.SideLong,
			Price:       60000,
			Quantity:    1,
			ValueUSD:    60000,
		}
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt64(&calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sinks saw %d of 3 events", atomic.LoadInt64(&calls))
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Settle briefly to catch any duplicate fan-out of the same events.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("each event must reach the sink exactly once, got %d", got)
	}

	cancel()
	e.Stop()
}
