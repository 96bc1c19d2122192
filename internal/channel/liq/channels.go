package liq

import (
	"context"
	"sync"

	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

type ChannelStats struct {
	RawSent      int64
	RawDropped   int64
	EventSent    int64
	EventDropped int64
}

// Channels carries liquidation data through the pipeline: Raw holds venue
// payloads before normalization, Events holds canonical LiquidationEvents
// fanned out to the analytics engine.
type Channels struct {
	Raw    chan models.RawLiquidationMessage
	Events chan models.LiquidationEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, eventBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawLiquidationMessage, rawBufferSize),
		Events: make(chan models.LiquidationEvent, eventBufferSize),
		log:    log,
	}

	log.WithComponent("liq_channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"event_buffer_size": eventBufferSize,
	}).Info("liquidation channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Events)
	c.log.WithComponent("liq_channels").Info("liquidation channels closed")
}

// SendRaw forwards a venue payload without blocking; a full buffer drops the
// message and bumps the drop counter.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawLiquidationMessage) bool {
	select {
	case c.Raw <- msg:
		c.increment(func(s *ChannelStats) { s.RawSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.RawDropped++ })
		return false
	}
}

// SendEvent forwards a normalized event without blocking.
func (c *Channels) SendEvent(ctx context.Context, ev models.LiquidationEvent) bool {
	select {
	case c.Events <- ev:
		c.increment(func(s *ChannelStats) { s.EventSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.EventDropped++ })
		return false
	}
}

func (c *Channels) increment(fn func(*ChannelStats)) {
	c.statsMutex.Lock()
	fn(&c.stats)
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
