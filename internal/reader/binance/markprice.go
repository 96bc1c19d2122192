package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "cascadeflow/config"
	market "cascadeflow/internal/channel/market"
	metrics "cascadeflow/internal/metrics"
	"cascadeflow/internal/models"
	"cascadeflow/logger"

	"github.com/gorilla/websocket"
)

// MarkPriceReader streams mark-price updates from Binance futures websockets.
// Each frame carries the reference price consumed by the regime detector and
// the current funding rate consumed by the signal generator.
type MarkPriceReader struct {
	config   *appconfig.Config
	channels *market.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// NewMarkPriceReader constructs a mark-price reader instance.
func NewMarkPriceReader(cfg *appconfig.Config, ch *market.Channels) *MarkPriceReader {
	return &MarkPriceReader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  cfg.Source.Binance.MarkPrice.Symbols,
	}
}

// Start launches websocket workers per symbol.
func (r *MarkPriceReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance mark-price reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.MarkPrice
	if !cfg.Enabled {
		return fmt.Errorf("binance mark-price stream disabled via configuration")
	}
	if len(r.symbols) == 0 {
		return fmt.Errorf("no symbols configured for binance mark-price reader")
	}

	for _, sym := range r.symbols {
		symbol := strings.ToUpper(sym)
		r.wg.Add(1)
		go r.streamSymbol(symbol, cfg)
	}

	r.log.WithComponent("binance_markprice_reader").WithFields(logger.Fields{
		"symbols": r.symbols,
	}).Info("binance mark-price reader started")
	return nil
}

// Stop waits for all websocket workers to exit.
func (r *MarkPriceReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_markprice_reader").Info("stopping binance mark-price reader")
	r.wg.Wait()
	r.log.WithComponent("binance_markprice_reader").Info("binance mark-price reader stopped")
}

type markPriceFrame struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	MarkPrice   string `json:"p"`
	FundingRate string `json:"r"`
}

func (r *MarkPriceReader) streamSymbol(symbol string, cfg appconfig.FeedConfig) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_markprice_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "mark_price_stream",
	})

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		baseURL = "wss://fstream.binance.com/ws"
	}
	streamURL := fmt.Sprintf("%s/%s@markPrice@1s", baseURL, strings.ToLower(symbol))

	for {
		if r.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, streamURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect to binance mark-price websocket, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		conn.SetReadDeadline(time.Now().Add(35 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(35 * time.Second))
			return nil
		})

	loop:
		for {
			if r.ctx.Err() != nil {
				_ = conn.Close()
				return
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				log.WithError(err).Warn("binance mark-price stream error, reconnecting")
				break loop
			}

			var frame markPriceFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				log.WithError(err).Debug("failed to unmarshal mark-price frame, skipping")
				continue
			}
			if frame.Event != "markPriceUpdate" {
				continue
			}

			r.forward(frame, log)
		}

		select {
		case <-time.After(2 * time.Second):
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *MarkPriceReader) forward(frame markPriceFrame, log *logger.Entry) {
	price, err := strconv.ParseFloat(frame.MarkPrice, 64)
	if err != nil || price <= 0 {
		log.Debug("skipping mark-price frame with unusable price")
		return
	}

	symbol := strings.ToUpper(frame.Symbol)
	tick := models.PriceTick{
		Exchange:    models.ExchangeBinance,
		Symbol:      symbol,
		Price:       price,
		TimestampMs: frame.EventTime,
	}
	if !r.channels.SendTick(r.ctx, tick) && r.ctx.Err() == nil {
		metrics.EmitDropMetric(r.log, metrics.DropMetricTick, "binance", symbol, "raw")
	}

	if rate, err := strconv.ParseFloat(frame.FundingRate, 64); err == nil {
		r.channels.SendFunding(r.ctx, models.FundingRateUpdate{
			Exchange:    models.ExchangeBinance,
			Symbol:      symbol,
			FundingRate: rate,
			TimestampMs: frame.EventTime,
		})
	}
}
