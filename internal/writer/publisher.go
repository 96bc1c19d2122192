package writer

import (
	"context"
	"sync"

	appconfig "cascadeflow/config"
	signalch "cascadeflow/internal/channel/signal"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// SignalSink publishes one signal. Errors are the sink's to report; the
// publisher logs and moves on.
type SignalSink interface {
	PublishSignal(ctx context.Context, sig models.CascadeSignal) error
}

// AssessmentSink publishes one confirmatory assessment.
type AssessmentSink interface {
	PublishAssessment(ctx context.Context, a models.CascadeRiskAssessment) error
}

// Publisher is the single consumer of the signal channels, fanning results
// out to every configured sink. Sinks are best-effort: a failing broker never
// blocks the analytics loop, it only loses that sink's copy.
type Publisher struct {
	config      *appconfig.Config
	channels    *signalch.Channels
	signals     []SignalSink
	assessments []AssessmentSink
	log         *logger.Log

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewPublisher wires the publisher to the signal channels.
func NewPublisher(cfg *appconfig.Config, ch *signalch.Channels) *Publisher {
	return &Publisher{
		config:   cfg,
		channels: ch,
		log:      logger.GetLogger(),
	}
}

// AddSignalSink registers a signal consumer. Must be called before Start.
func (p *Publisher) AddSignalSink(s SignalSink) {
	p.signals = append(p.signals, s)
}

// AddAssessmentSink registers an assessment consumer. Must be called before
// Start.
func (p *Publisher) AddAssessmentSink(s AssessmentSink) {
	p.assessments = append(p.assessments, s)
}

// Start launches the fan-out loop.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.log.WithComponent("publisher").WithFields(logger.Fields{
		"signal_sinks":     len(p.signals),
		"assessment_sinks": len(p.assessments),
	}).Info("publisher started")
	return nil
}

// Stop waits for the loop to drain.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.WithComponent("publisher").Info("publisher stopped")
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	log := p.log.WithComponent("publisher")
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-p.channels.Signals:
			if !ok {
				return
			}
			for _, sink := range p.signals {
				if err := sink.PublishSignal(ctx, sig); err != nil {
					log.WithError(err).WithFields(logger.Fields{
						"symbol": sig.Symbol,
						"level":  sig.Signal.String(),
					}).Warn("signal sink publish failed")
				}
			}
		case a, ok := <-p.channels.Assessments:
			if !ok {
				return
			}
			for _, sink := range p.assessments {
				if err := sink.PublishAssessment(ctx, a); err != nil {
					log.WithError(err).WithFields(logger.Fields{
						"symbol": a.Symbol,
						"type":   string(a.CascadeType),
					}).Warn("assessment sink publish failed")
				}
			}
		}
	}
}
