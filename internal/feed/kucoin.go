package feed

import (
	"encoding/json"
	"fmt"

	"cascadeflow/internal/models"
)

// kucoinParser handles the wrapper the kucoin reader builds around execution
// events whose subject marks a liquidation. KuCoin futures sizes are contract
// lots; value follows price*size as elsewhere.
type kucoinParser struct{}

func (kucoinParser) Exchange() models.Exchange { return models.ExchangeKucoin }

type kucoinExecutionWrapper struct {
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
	Data    struct {
		Symbol string      `json:"symbol"`
		Side   string      `json:"side"`
		Size   json.Number `json:"size"`
		Price  json.Number `json:"price"`
		Ts     int64       `json:"ts"`
	} `json:"data"`
}

func (kucoinParser) Parse(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, error) {
	var msg kucoinExecutionWrapper
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return nil, fmt.Errorf("kucoin execution payload: %w", err)
	}

	side, err := takerSide(msg.Data.Side)
	if err != nil {
		return nil, err
	}
	price, err := msg.Data.Price.Float64()
	if err != nil {
		return nil, fmt.Errorf("kucoin execution price: %w", err)
	}
	qty, err := msg.Data.Size.Float64()
	if err != nil {
		return nil, fmt.Errorf("kucoin execution size: %w", err)
	}

	ts := msg.Data.Ts
	if ts > 1_000_000_000_000_000 {
		// nanosecond timestamps appear on some kucoin topics
		ts /= 1_000_000
	}

	return []models.LiquidationEvent{{
		TimestampMs: ts,
		Exchange:    models.ExchangeKucoin,
		Symbol:      CanonicalSymbol(msg.Data.Symbol),
		Side:        side,
		Price:       price,
		Quantity:    qty,
		ValueUSD:    price * qty,
	}}, nil
}
