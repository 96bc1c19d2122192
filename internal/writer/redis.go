package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// RedisWriter mirrors signals, assessments and aggregate buckets into redis
// for dashboard consumers: a last-value key per symbol, a capped history list
// and TTL'd bucket records.
type RedisWriter struct {
	cfg    *appconfig.Config
	client *redis.Client
	log    *logger.Log
	prefix string
}

// NewRedisWriter connects the redis client. The connection itself is lazy;
// the first write surfaces an unreachable server.
func NewRedisWriter(cfg *appconfig.Config) (*RedisWriter, error) {
	if !cfg.Storage.Redis.Enabled {
		return nil, fmt.Errorf("redis storage is disabled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	w := &RedisWriter{
		cfg:    cfg,
		client: client,
		log:    logger.GetLogger(),
		prefix: strings.TrimSuffix(cfg.Storage.Redis.KeyPrefix, ":"),
	}

	w.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"addr":       cfg.Storage.Redis.Addr,
		"db":         cfg.Storage.Redis.DB,
		"key_prefix": w.prefix,
	}).Info("redis writer initialized")
	return w, nil
}

// Close releases the client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}

func (w *RedisWriter) key(parts ...string) string {
	return w.prefix + ":" + strings.Join(parts, ":")
}

// PublishSignal stores the latest signal per symbol and appends it to the
// capped history list.
func (w *RedisWriter) PublishSignal(ctx context.Context, sig models.CascadeSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	pipe := w.client.Pipeline()
	pipe.Set(ctx, w.key("signal", "latest", sig.Symbol), data, 0)
	histKey := w.key("signal", "history", sig.Symbol)
	pipe.LPush(ctx, histKey, data)
	pipe.LTrim(ctx, histKey, 0, int64(w.cfg.Storage.Redis.HistoryLimit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// PublishAssessment stores the latest confirmatory assessment per symbol.
func (w *RedisWriter) PublishAssessment(ctx context.Context, a models.CascadeRiskAssessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	if err := w.client.Set(ctx, w.key("risk", "latest", a.Symbol), data, 0).Err(); err != nil {
		return fmt.Errorf("publish assessment: %w", err)
	}
	return nil
}

// WriteBuckets stores closed aggregate buckets with a TTL so the cache stays
// bounded without an external janitor.
func (w *RedisWriter) WriteBuckets(ctx context.Context, buckets []models.AggregateBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for _, b := range buckets {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal bucket: %w", err)
		}
		key := w.key("bucket", b.Symbol, string(b.Exchange), string(b.Side),
			b.BucketStart.UTC().Format(time.RFC3339))
		pipe.Set(ctx, key, data, w.cfg.Storage.Redis.BucketTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write buckets: %w", err)
	}

	w.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"buckets": len(buckets),
	}).Debug("aggregate buckets written")
	return nil
}
