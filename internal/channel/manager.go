package channel

import (
	"context"
	"time"

	"cascadeflow/config"
	"cascadeflow/internal/channel/liq"
	"cascadeflow/internal/channel/market"
	"cascadeflow/internal/channel/signal"
	"cascadeflow/logger"
)

// Channels groups the pipeline's buffered channels by stream family.
type Channels struct {
	Liq    *liq.Channels
	Market *market.Channels
	Signal *signal.Channels

	log *logger.Log
}

func NewChannels(cfg config.ChannelsConfig) *Channels {
	return &Channels{
		Liq:    liq.NewChannels(cfg.RawBuffer, cfg.EventBuffer),
		Market: market.NewChannels(cfg.TickBuffer),
		Signal: signal.NewChannels(cfg.SignalBuffer),
		log:    logger.GetLogger(),
	}
}

func (c *Channels) Close() {
	c.Liq.Close()
	c.Market.Close()
	c.Signal.Close()
}

// StartMetricsReporting logs buffer occupancy and send/drop counters on a
// fixed cadence until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			liqStats := c.Liq.GetStats()
			sigStats := c.Signal.GetStats()
			c.log.WithComponent("channel_buffers").WithFields(logger.Fields{
				"liq_raw_len":      len(c.Liq.Raw),
				"liq_raw_cap":      cap(c.Liq.Raw),
				"liq_event_len":    len(c.Liq.Events),
				"raw_dropped":      liqStats.RawDropped,
				"event_dropped":    liqStats.EventDropped,
				"signal_len":       len(c.Signal.Signals),
				"signal_dropped":   sigStats.SignalDropped,
				"tick_len":         len(c.Market.Ticks),
			}).Info("channel occupancy")
		}
	}
}
