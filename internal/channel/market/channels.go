package market

import (
	"context"
	"sync"

	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

type ChannelStats struct {
	TickSent       int64
	TickDropped    int64
	OISent         int64
	OIDropped      int64
	FundingSent    int64
	FundingDropped int64
}

// Channels carries the auxiliary market context streams: reference price
// ticks for the regime detector, open-interest levels and funding rates for
// the signal generator.
type Channels struct {
	Ticks   chan models.PriceTick
	OI      chan models.OpenInterestUpdate
	Funding chan models.FundingRateUpdate

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(tickBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Ticks:   make(chan models.PriceTick, tickBufferSize),
		OI:      make(chan models.OpenInterestUpdate, tickBufferSize),
		Funding: make(chan models.FundingRateUpdate, tickBufferSize),
		log:     log,
	}

	log.WithComponent("market_channels").WithFields(logger.Fields{
		"tick_buffer_size": tickBufferSize,
	}).Info("market context channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Ticks)
	close(c.OI)
	close(c.Funding)
	c.log.WithComponent("market_channels").Info("market context channels closed")
}

func (c *Channels) SendTick(ctx context.Context, tick models.PriceTick) bool {
	select {
	case c.Ticks <- tick:
		c.increment(func(s *ChannelStats) { s.TickSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.TickDropped++ })
		return false
	}
}

func (c *Channels) SendOI(ctx context.Context, oi models.OpenInterestUpdate) bool {
	select {
	case c.OI <- oi:
		c.increment(func(s *ChannelStats) { s.OISent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.OIDropped++ })
		return false
	}
}

func (c *Channels) SendFunding(ctx context.Context, fr models.FundingRateUpdate) bool {
	select {
	case c.Funding <- fr:
		c.increment(func(s *ChannelStats) { s.FundingSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.FundingDropped++ })
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
