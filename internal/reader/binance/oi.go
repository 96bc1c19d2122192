package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "cascadeflow/config"
	market "cascadeflow/internal/channel/market"
	"cascadeflow/internal/models"
	"cascadeflow/logger"

	"golang.org/x/time/rate"
)

// OpenInterestReader polls the Binance futures REST API for per-symbol open
// interest. Polling is rate limited so a long symbol list cannot exhaust the
// venue's request weight budget.
type OpenInterestReader struct {
	config   *appconfig.Config
	channels *market.Channels
	client   *http.Client
	limiter  *rate.Limiter
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// NewOpenInterestReader constructs a reader for the configured symbols.
func NewOpenInterestReader(cfg *appconfig.Config, ch *market.Channels) *OpenInterestReader {
	oiCfg := cfg.Source.Binance.OpenInterest
	return &OpenInterestReader{
		config:   cfg,
		channels: ch,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(oiCfg.RequestsPerSecond), 1),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  oiCfg.Symbols,
	}
}

// Start launches the polling loop.
func (r *OpenInterestReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance open-interest reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Binance.OpenInterest
	if !cfg.Enabled {
		return fmt.Errorf("binance open-interest polling disabled via configuration")
	}
	if len(r.symbols) == 0 {
		return fmt.Errorf("no symbols configured for binance open-interest reader")
	}

	r.wg.Add(1)
	go r.poll(cfg)

	r.log.WithComponent("binance_oi_reader").WithFields(logger.Fields{
		"symbols":       r.symbols,
		"poll_interval": cfg.PollInterval.String(),
	}).Info("binance open-interest reader started")
	return nil
}

// Stop waits for the polling loop to exit.
func (r *OpenInterestReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("binance_oi_reader").Info("binance open-interest reader stopped")
}

func (r *OpenInterestReader) poll(cfg appconfig.OpenInterestConfig) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_oi_reader")
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range r.symbols {
				if err := r.limiter.Wait(r.ctx); err != nil {
					return
				}
				if err := r.fetchSymbol(baseURL, strings.ToUpper(symbol)); err != nil {
					log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("open-interest fetch failed")
				}
			}
		}
	}
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

func (r *OpenInterestReader) fetchSymbol(baseURL, symbol string) error {
	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", baseURL, symbol)
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build open-interest request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("open-interest request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("open-interest request returned status %d", resp.StatusCode)
	}

	var body openInterestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode open-interest response: %w", err)
	}

	oi, err := strconv.ParseFloat(body.OpenInterest, 64)
	if err != nil {
		return fmt.Errorf("parse open-interest value: %w", err)
	}

	r.channels.SendOI(r.ctx, models.OpenInterestUpdate{
		Exchange:     models.ExchangeBinance,
		Symbol:       symbol,
		OpenInterest: oi,
		TimestampMs:  body.Time,
	})
	return nil
}
