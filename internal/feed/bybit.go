package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cascadeflow/internal/models"
)

// bybitParser handles v5 allLiquidation frames. One frame can batch several
// fills under data.
type bybitParser struct{}

func (bybitParser) Exchange() models.Exchange { return models.ExchangeBybit }

type bybitLiquidationFrame struct {
	Topic string `json:"topic"`
	Ts    int64  `json:"ts"`
	Data  []struct {
		Time   int64  `json:"T"`
		Symbol string `json:"s"`
		Side   string `json:"S"`
		Volume string `json:"v"`
		Price  string `json:"p"`
	} `json:"data"`
}

func (bybitParser) Parse(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, error) {
	var frame bybitLiquidationFrame
	if err := json.Unmarshal(raw.Data, &frame); err != nil {
		return nil, fmt.Errorf("bybit liquidation payload: %w", err)
	}
	if !strings.HasPrefix(frame.Topic, "allLiquidation.") {
		return nil, fmt.Errorf("unexpected bybit topic %q", frame.Topic)
	}

	events := make([]models.LiquidationEvent, 0, len(frame.Data))
	for _, d := range frame.Data {
		side, err := takerSide(d.Side)
		if err != nil {
			return nil, err
		}
		price, err := strconv.ParseFloat(d.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit liquidation price: %w", err)
		}
		qty, err := strconv.ParseFloat(d.Volume, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit liquidation volume: %w", err)
		}

		ts := d.Time
		if ts == 0 {
			ts = frame.Ts
		}

		events = append(events, models.LiquidationEvent{
			TimestampMs: ts,
			Exchange:    models.ExchangeBybit,
			Symbol:      CanonicalSymbol(d.Symbol),
			Side:        side,
			Price:       price,
			Quantity:    qty,
			ValueUSD:    price * qty,
		})
	}
	return events, nil
}
