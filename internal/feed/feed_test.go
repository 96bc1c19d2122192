package feed

import (
	"math"
	"testing"
	"time"

	"cascadeflow/internal/models"
)

func TestCanonicalSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		"BTC-USDT-SWAP": "BTCUSDT",
		"XBTUSDTM":      "BTCUSDT",
		"eth-usdt":      "ETHUSDT",
		"SOL_USDT":      "SOLUSDT",
	}
	for in, want := range cases {
		if got := CanonicalSymbol(in); got != want {
			t.Fatalf("CanonicalSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBinanceParserTranslatesSide(t *testing.T) {
	payload := []byte(`{"e":"forceOrder","E":1700000000123,"o":{"s":"BTCUSDT","S":"SELL","q":"0.014","p":"60100.50","ap":"60099.10","T":1700000000120}}`)

	events, err := (binanceParser{}).Parse(models.RawLiquidationMessage{
		Exchange: models.ExchangeBinance,
		Data:     payload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.Side != models.SideLong {
		t.Fatalf("forced SELL must close a LONG, got %s", ev.Side)
	}
	if ev.Price != 60099.10 {
		t.Fatalf("expected avg fill price, got %f", ev.Price)
	}
	if ev.TimestampMs != 1700000000120 {
		t.Fatalf("expected trade time, got %d", ev.TimestampMs)
	}
	if rel := math.Abs(ev.ValueUSD-ev.Price*ev.Quantity) / (ev.Price * ev.Quantity); rel > 1e-9 {
		t.Fatalf("value_usd must equal price*quantity, rel diff %g", rel)
	}
}

func TestBybitParserBatchesFills(t *testing.T) {
	payload := []byte(`{"topic":"allLiquidation.ETHUSDT","ts":1700000001000,"data":[
		{"T":1700000000900,"s":"ETHUSDT","S":"Buy","v":"2.5","p":"3000.25"},
		{"T":1700000000950,"s":"ETHUSDT","S":"Sell","v":"1.0","p":"2999.75"}
	]}`)

	events, err := (bybitParser{}).Parse(models.RawLiquidationMessage{
		Exchange: models.ExchangeBybit,
		Data:     payload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Side != models.SideShort {
		t.Fatalf("forced Buy must close a SHORT, got %s", events[0].Side)
	}
	if events[1].Side != models.SideLong {
		t.Fatalf("forced Sell must close a LONG, got %s", events[1].Side)
	}
}

func TestOKXParserUsesPosSide(t *testing.T) {
	payload := []byte(`{"arg":{"channel":"liquidation-orders","instType":"SWAP"},"data":[
		{"instId":"BTC-USDT-SWAP","details":[{"side":"buy","posSide":"short","bkPx":"59800.1","sz":"3","ts":"1700000002000"}]}
	]}`)

	events, err := (okxParser{}).Parse(models.RawLiquidationMessage{
		Exchange: models.ExchangeOKX,
		Data:     payload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Symbol != "BTCUSDT" {
		t.Fatalf("expected canonical BTCUSDT, got %s", events[0].Symbol)
	}
	if events[0].Side != models.SideShort {
		t.Fatalf("posSide short must map to SHORT, got %s", events[0].Side)
	}
}

func TestKucoinParserNormalizesSymbol(t *testing.T) {
	payload := []byte(`{"topic":"/contractMarket/execution:XBTUSDTM","subject":"match.liquidation","data":{"symbol":"XBTUSDTM","side":"sell","size":10,"price":"60000","ts":1700000003000}}`)

	events, err := (kucoinParser{}).Parse(models.RawLiquidationMessage{
		Exchange: models.ExchangeKucoin,
		Data:     payload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events[0].Symbol != "BTCUSDT" {
		t.Fatalf("expected canonical BTCUSDT, got %s", events[0].Symbol)
	}
	if events[0].Side != models.SideLong {
		t.Fatalf("forced sell must close a LONG, got %s", events[0].Side)
	}
}

func TestParserRejectsGarbage(t *testing.T) {
	for ex, p := range Parsers() {
		if _, err := p.Parse(models.RawLiquidationMessage{Exchange: ex, Data: []byte("{")}); err == nil {
			t.Fatalf("%s parser accepted malformed JSON", ex)
		}
	}
}

func TestHealthStaleness(t *testing.T) {
	h := NewHealth(30 * time.Second)

	base := time.Unix(1_700_000_000, 0)
	h.now = func() time.Time { return base }

	if !h.Stale(models.ExchangeBinance) {
		t.Fatal("never-seen venue must be stale")
	}

	h.MarkSeen(models.ExchangeBinance)
	if h.Stale(models.ExchangeBinance) {
		t.Fatal("freshly seen venue must be live")
	}

	h.now = func() time.Time { return base.Add(31 * time.Second) }
	if !h.Stale(models.ExchangeBinance) {
		t.Fatal("venue must be stale after the timeout")
	}

	stale := h.StaleExchanges()
	if len(stale) != len(models.Exchanges) {
		t.Fatalf("expected all venues stale, got %v", stale)
	}
}
