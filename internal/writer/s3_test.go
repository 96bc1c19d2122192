package writer

import (
	"strings"
	"testing"
	"time"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
)

func TestNormalizeBucketName(t *testing.T) {
	if _, err := normalizeBucketName("   "); err == nil {
		t.Fatal("blank bucket must be rejected")
	}
	got, err := normalizeBucketName(" cascade-archive ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cascade-archive" {
		t.Fatalf("expected trimmed name, got %q", got)
	}
}

func TestBufferKeyNormalizesParts(t *testing.T) {
	if got := bufferKey("Binance", "btcusdt"); got != "binance|BTCUSDT" {
		t.Fatalf("unexpected buffer key %q", got)
	}
	if got := bufferKey("", "ETHUSDT"); got != "unknown|ETHUSDT" {
		t.Fatalf("unexpected buffer key %q", got)
	}
}

func TestObjectKeyPartitioning(t *testing.T) {
	w := &ArchiveWriter{cfg: &appconfig.Config{}}
	ts := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

	key := w.objectKey("binance", "BTCUSDT", ts)
	for _, part := range []string{"exchange=binance/", "symbol=BTCUSDT/", "date=2026-08-30/", "binance_liq_BTCUSDT_20260830140500_"} {
		if !strings.Contains(key, part) {
			t.Fatalf("object key %q missing %q", key, part)
		}
	}
	if !strings.HasSuffix(key, ".parquet") {
		t.Fatalf("object key must end in .parquet: %q", key)
	}
}

func TestCreateParquetRoundTripsRecords(t *testing.T) {
	events := []models.LiquidationEvent{
		{TimestampMs: 1700000000000, Exchange: models.ExchangeBinance, Symbol: "BTCUSDT", Side: models.SideLong, Price: 60000, Quantity: 2, ValueUSD: 120000},
		{TimestampMs: 1700000001000, Exchange: models.ExchangeOKX, Symbol: "BTCUSDT", Side: models.SideShort, Price: 60010, Quantity: 3, ValueUSD: 180030},
	}

	data, err := createParquet(events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("parquet output is empty")
	}
	// Parquet files start and end with the PAR1 magic.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatal("output is not a parquet file")
	}
}

func TestCreateCascadeParquet(t *testing.T) {
	data, err := createCascadeParquet([]models.CascadeRiskAssessment{
		{
			Symbol:      "btcusdt",
			WindowEnd:   time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC),
			CascadeType: models.CascadeCrossExchange,
			Composite:   1.2,
			EventCount:  21,
			TotalValue:  2_500_000,
			LongCount:   19,
			ShortCount:  2,
			Exchanges:   []models.Exchange{models.ExchangeBinance, models.ExchangeBybit},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatal("output is not a parquet file")
	}
}

func TestRequeueStaysBounded(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.MaxBufferSize = 2
	w := &ArchiveWriter{
		cfg:       cfg,
		buffer:    map[string][]models.LiquidationEvent{},
		lastFlush: map[string]time.Time{},
	}

	key := bufferKey("binance", "BTCUSDT")
	var batch []models.LiquidationEvent
	for i := 0; i < 10; i++ {
		batch = append(batch, models.LiquidationEvent{TimestampMs: int64(i), Symbol: "BTCUSDT"})
	}
	w.requeue(key, batch)

	kept := w.buffer[key]
	if len(kept) != 4 {
		t.Fatalf("buffer must stay at twice max size, got %d", len(kept))
	}
	if kept[0].TimestampMs != 6 {
		t.Fatalf("oldest entries must drop first, got leading ts %d", kept[0].TimestampMs)
	}
}
