// Package feed owns the normalization boundary: venue payloads come in,
// canonical LiquidationEvents come out. Each venue has exactly one parser
// holding that venue's side-convention and symbol-format mapping; analytics
// code never branches on the venue.
package feed

import (
	"fmt"
	"strings"

	"cascadeflow/internal/models"
)

// Parser converts one raw venue payload into zero or more canonical events.
// A single websocket frame may batch several fills (bybit, okx).
type Parser interface {
	Exchange() models.Exchange
	Parse(raw models.RawLiquidationMessage) ([]models.LiquidationEvent, error)
}

// Parsers returns the full venue registry.
func Parsers() map[models.Exchange]Parser {
	return map[models.Exchange]Parser{
		models.ExchangeBinance: binanceParser{},
		models.ExchangeBybit:   bybitParser{},
		models.ExchangeOKX:     okxParser{},
		models.ExchangeKucoin:  kucoinParser{},
	}
}

// CanonicalSymbol rewrites a venue symbol to the canonical base+quote form
// with no separators: BTC-USDT-SWAP -> BTCUSDT, XBTUSDTM -> BTCUSDT.
func CanonicalSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "-SWAP")
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	if strings.HasSuffix(s, "USDTM") || strings.HasSuffix(s, "USDM") {
		s = strings.TrimSuffix(s, "M")
	}
	if strings.HasPrefix(s, "XBT") {
		s = "BTC" + s[3:]
	}
	return s
}

// takerSide translates a forced order's taker direction into the side of the
// position that was closed: a forced SELL closes a long, a forced BUY closes
// a short. Every connected venue reports the taker direction.
func takerSide(direction string) (models.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "SELL":
		return models.SideLong, nil
	case "BUY":
		return models.SideShort, nil
	default:
		return "", fmt.Errorf("unknown taker direction %q", direction)
	}
}
