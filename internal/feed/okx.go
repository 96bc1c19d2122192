package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cascadeflow/internal/models"
)

// okxParser handles liquidation-orders SWAP frames. OKX reports the closed
// position side directly via posSide; the taker direction is the fallback.
type okxParser struct{}

func (okxParser) Exchange() models.Exchange { return models.ExchangeOKX }

type okxLiquidationFrame struct {
	Arg struct {
		Channel  string `json:"channel"`
		InstType string `json:"instType"`
	} `json:"arg"`
	Data []struct {
		InstID  string `json:"instId"`
		Details []struct {
			Side    string `json:"side"`
			PosSide string `json:"posSide"`
			BkPx    string `json:"bkPx"`
			Sz      string `json:"sz"`
			Ts      string `json:"ts"`
		} `json:"details"`
	} `json:"data"`
}

func (okxParser) Parse(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, error) {
	var frame okxLiquidationFrame
	if err := json.Unmarshal(raw.Data, &frame); err != nil {
		return nil, fmt.Errorf("okx liquidation payload: %w", err)
	}
	if frame.Arg.Channel != "liquidation-orders" {
		return nil, fmt.Errorf("unexpected okx channel %q", frame.Arg.Channel)
	}

	var events []models.LiquidationEvent
	for _, d := range frame.Data {
		symbol := CanonicalSymbol(d.InstID)
		for _, detail := range d.Details {
			var side models.Side
			switch strings.ToLower(detail.PosSide) {
			case "long":
				side = models.SideLong
			case "short":
				side = models.SideShort
			default:
				var err error
				side, err = takerSide(detail.Side)
				if err != nil {
					return nil, err
				}
			}

			price, err := strconv.ParseFloat(detail.BkPx, 64)
			if err != nil {
				return nil, fmt.Errorf("okx bankruptcy price: %w", err)
			}
			qty, err := strconv.ParseFloat(detail.Sz, 64)
			if err != nil {
				return nil, fmt.Errorf("okx size: %w", err)
			}
			ts, err := strconv.ParseInt(detail.Ts, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("okx timestamp: %w", err)
			}

			events = append(events, models.LiquidationEvent{
				TimestampMs: ts,
				Exchange:    models.ExchangeOKX,
				Symbol:      symbol,
				Side:        side,
				Price:       price,
				Quantity:    qty,
				ValueUSD:    price * qty,
			})
		}
	}
	return events, nil
}
