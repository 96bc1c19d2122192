package metrics

import "cascadeflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricLiquidationRaw records dropped liquidation stream messages.
	DropMetricLiquidationRaw DropMetric = "liquidation_messages_dropped"
	// DropMetricEvent records normalized events dropped before analytics.
	DropMetricEvent DropMetric = "event_messages_dropped"
	// DropMetricTick records dropped reference-price ticks.
	DropMetricTick DropMetric = "tick_messages_dropped"
	// DropMetricSignal records signals dropped on the publish queue.
	DropMetricSignal DropMetric = "signal_messages_dropped"
	// DropMetricSink records records dropped by a sink under backpressure.
	DropMetricSink DropMetric = "sink_records_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel
// message. The metric value is always incremented by one so callers should
// invoke this helper for each dropped message. Optional metadata (exchange,
// symbol, stage) is added to the metric fields when provided which enables
// downstream aggregation per exchange and stream type.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, symbol, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	if messagesDropped != nil {
		messagesDropped.WithLabelValues(string(metric), exchange, stage).Inc()
	}

	log.LogMetric("channel_drops", string(metric), 1, "counter", fields)
}
