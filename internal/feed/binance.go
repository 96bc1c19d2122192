package feed

import (
	"encoding/json"
	"fmt"
	"strconv"

	"cascadeflow/internal/models"
)

// binanceParser handles forceOrder events as re-marshalled by the reader from
// the futures websocket SDK.
type binanceParser struct{}

func (binanceParser) Exchange() models.Exchange { return models.ExchangeBinance }

type binanceForceOrder struct {
	Event string `json:"e"`
	Time  int64  `json:"E"`
	Order struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		OrigQuantity string `json:"q"`
		Price        string `json:"p"`
		AvgPrice     string `json:"ap"`
		TradeTime    int64  `json:"T"`
	} `json:"o"`
}

func (binanceParser) Parse(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, error) {
	var msg binanceForceOrder
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return nil, fmt.Errorf("binance force order payload: %w", err)
	}

	side, err := takerSide(msg.Order.Side)
	if err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(msg.Order.AvgPrice, 64)
	if err != nil || price <= 0 {
		// The order price is the trigger price; the average fill price is
		// preferred when present.
		price, err = strconv.ParseFloat(msg.Order.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("binance force order price: %w", err)
		}
	}
	qty, err := strconv.ParseFloat(msg.Order.OrigQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("binance force order quantity: %w", err)
	}

	ts := msg.Order.TradeTime
	if ts == 0 {
		ts = msg.Time
	}

	return []models.LiquidationEvent{{
		TimestampMs: ts,
		Exchange:    models.ExchangeBinance,
		Symbol:      CanonicalSymbol(msg.Order.Symbol),
		Side:        side,
		Price:       price,
		Quantity:    qty,
		ValueUSD:    price * qty,
	}}, nil
}
