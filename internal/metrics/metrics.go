// Registers the pipeline counters and exposes them together with go_* and
// process_* system metrics on a Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cascadeflow/logger"
)

var (
	once sync.Once

	eventsIngested *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
	signalsGenerated *prometheus.CounterVec
	cascadesDetected *prometheus.CounterVec
	evalDuration   prometheus.Histogram
)

// Init registers collectors and serves /metrics on the given address.
func Init(addr string) {
	once.Do(func() {
		eventsIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeflow_events_ingested_total",
				Help: "Normalized liquidation events accepted at the feed boundary",
			},
			[]string{"exchange", "symbol"},
		)

		eventsRejected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeflow_events_rejected_total",
				Help: "Events rejected at the normalizer boundary",
			},
			[]string{"exchange", "reason"},
		)

		messagesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeflow_messages_dropped_total",
				Help: "Messages dropped on full channel buffers",
			},
			[]string{"metric", "exchange", "stage"},
		)

		signalsGenerated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeflow_signals_generated_total",
				Help: "Cascade signals produced per level",
			},
			[]string{"symbol", "level"},
		)

		cascadesDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascadeflow_cascades_detected_total",
				Help: "Confirmatory cascade assessments that triggered",
			},
			[]string{"symbol", "type"},
		)

		evalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascadeflow_evaluation_duration_seconds",
			Help:    "Wall time of one symbol evaluation cycle",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		})

		_ = prometheus.Register(eventsIngested)
		_ = prometheus.Register(eventsRejected)
		_ = prometheus.Register(messagesDropped)
		_ = prometheus.Register(signalsGenerated)
		_ = prometheus.Register(cascadesDetected)
		_ = prometheus.Register(evalDuration)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
			}
		}()
	})
}

// IncrementIngested counts one accepted event.
func IncrementIngested(exchange, symbol string) {
	if eventsIngested != nil {
		eventsIngested.WithLabelValues(exchange, symbol).Inc()
	}
}

// IncrementRejected counts one event rejected at the boundary.
func IncrementRejected(exchange, reason string) {
	if eventsRejected != nil {
		eventsRejected.WithLabelValues(exchange, reason).Inc()
	}
}

// IncrementSignal counts one generated signal per level.
func IncrementSignal(symbol, level string) {
	if signalsGenerated != nil {
		signalsGenerated.WithLabelValues(symbol, level).Inc()
	}
}

// IncrementCascade counts one triggered cascade assessment.
func IncrementCascade(symbol, cascadeType string) {
	if cascadesDetected != nil {
		cascadesDetected.WithLabelValues(symbol, cascadeType).Inc()
	}
}

// ObserveEvaluation records the duration of one evaluation cycle.
func ObserveEvaluation(seconds float64) {
	if evalDuration != nil {
		evalDuration.Observe(seconds)
	}
}
