package models

import "time"

// Exchange identifies a connected derivatives venue.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBybit   Exchange = "bybit"
	ExchangeOKX     Exchange = "okx"
	ExchangeKucoin  Exchange = "kucoin"

	// ExchangeAll keys aggregates computed across every live venue.
	ExchangeAll Exchange = "all"
)

// Exchanges lists every real venue (excludes the "all" aggregate key).
var Exchanges = []Exchange{ExchangeBinance, ExchangeBybit, ExchangeOKX, ExchangeKucoin}

// Side is the side of the position that was forcibly closed, fully normalized
// at the feed boundary. Venues encode this differently (usually as the taker
// order direction); the per-venue parsers own the translation.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// RawLiquidationMessage is a venue payload captured from an exchange stream
// before normalization. The raw JSON is kept together with routing metadata.
type RawLiquidationMessage struct {
	Exchange  Exchange
	Symbol    string
	Data      []byte
	Timestamp time.Time
}

// LiquidationEvent is the canonical, immutable liquidation fact every
// analytics stage consumes. Created once at the normalizer boundary and
// fanned out by value; never mutated afterwards.
type LiquidationEvent struct {
	TimestampMs int64    `json:"timestamp_ms"`
	Exchange    Exchange `json:"exchange"`
	Symbol      string   `json:"symbol"`
	Side        Side     `json:"side"`
	Price       float64  `json:"price"`
	Quantity    float64  `json:"quantity"`
	ValueUSD    float64  `json:"value_usd"`
}

// Time returns the event time.
func (e LiquidationEvent) Time() time.Time {
	return time.UnixMilli(e.TimestampMs).UTC()
}
