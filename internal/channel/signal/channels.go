package signal

import (
	"context"
	"sync"

	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

type ChannelStats struct {
	SignalSent        int64
	SignalDropped     int64
	AssessmentSent    int64
	AssessmentDropped int64
}

// Channels carries analytics outputs to the publishers. Sends never block:
// publication sinks are off-path for signal generation, so a slow sink drops
// rather than stalling newer evaluations.
type Channels struct {
	Signals     chan models.CascadeSignal
	Assessments chan models.CascadeRiskAssessment

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Signals:     make(chan models.CascadeSignal, bufferSize),
		Assessments: make(chan models.CascadeRiskAssessment, bufferSize),
		log:         log,
	}

	log.WithComponent("signal_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("signal channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Signals)
	close(c.Assessments)
	c.log.WithComponent("signal_channels").Info("signal channels closed")
}

func (c *Channels) SendSignal(ctx context.Context, sig models.CascadeSignal) bool {
	select {
	case c.Signals <- sig:
		c.increment(func(s *ChannelStats) { s.SignalSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.SignalDropped++ })
		return false
	}
}

func (c *Channels) SendAssessment(ctx context.Context, a models.CascadeRiskAssessment) bool {
	select {
	case c.Assessments <- a:
		c.increment(func(s *ChannelStats) { s.AssessmentSent++ })
		return true
	case <-ctx.Done():
		return false
	default:
		c.increment(func(s *ChannelStats) { s.AssessmentDropped++ })
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
