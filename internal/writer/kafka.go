package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// KafkaWriter publishes signals to kafka. Every signal lands on the firehose
// topic; elevated levels are duplicated onto dedicated topics so alerting
// consumers do not have to filter the firehose. Delivery is at-most-once: a
// failed produce is logged and skipped, never retried against newer signals.
type KafkaWriter struct {
	cfg    *appconfig.Config
	writer *kafka.Writer
	log    *logger.Log
}

// NewKafkaWriter builds a producer for the configured brokers.
func NewKafkaWriter(cfg *appconfig.Config) (*KafkaWriter, error) {
	if !cfg.Storage.Kafka.Enabled {
		return nil, fmt.Errorf("kafka storage is disabled")
	}
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	kw := &KafkaWriter{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}

	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers":        cfg.Storage.Kafka.Brokers,
		"topic_all":      cfg.Storage.Kafka.TopicAll,
		"topic_alert":    cfg.Storage.Kafka.TopicAlert,
		"topic_critical": cfg.Storage.Kafka.TopicCritical,
	}).Debug("kafka writer initialized")
	return kw, nil
}

// Close flushes and closes the producer.
func (kw *KafkaWriter) Close() error {
	return kw.writer.Close()
}

// PublishSignal produces the signal to its topics, keyed by symbol so one
// symbol's signals stay ordered within a partition.
func (kw *KafkaWriter) PublishSignal(ctx context.Context, sig models.CascadeSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	topics := []string{kw.cfg.Storage.Kafka.TopicAll}
	if sig.Signal >= models.LevelAlert {
		topics = append(topics, kw.cfg.Storage.Kafka.TopicAlert)
	}
	if sig.Signal >= models.LevelCritical {
		topics = append(topics, kw.cfg.Storage.Kafka.TopicCritical)
	}

	msgs := make([]kafka.Message, 0, len(topics))
	for _, topic := range topics {
		msgs = append(msgs, kafka.Message{
			Topic: topic,
			Key:   []byte(sig.Symbol),
			Value: data,
		})
	}

	if err := kw.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write signal: %w", err)
	}
	return nil
}
