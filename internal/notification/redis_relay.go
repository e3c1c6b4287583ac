package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-session-service/internal/metrics"
)

var relayPatterns = []string{"designer:*", "customer:*", "presence:*"}

// RedisRelay publishes envelopes on Redis channels and feeds received ones
// into the Bus. Redis pub/sub keeps nothing, so a subscriber that is down
// misses messages; the change feed covers that gap.
type RedisRelay struct {
	client  *redis.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRedisRelay(client *redis.Client, logger *zap.Logger, m *metrics.Metrics) *RedisRelay {
	return &RedisRelay{client: client, logger: logger, metrics: m}
}

func (r *RedisRelay) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		data, err := json.Marshal(NewEnvelope(e))
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}

		start := time.Now()
		err = r.client.Publish(ctx, e.Channel, data).Err()
		if r.metrics != nil {
			r.metrics.RecordExternalCall("redis", "publish", time.Since(start), err)
		}
		if err != nil {
			return fmt.Errorf("publish %s: %w", e.Channel, err)
		}
	}
	return nil
}

// Run subscribes to every recipient channel and ingests into bus until ctx
// is cancelled.
func (r *RedisRelay) Run(ctx context.Context, bus *Bus) error {
	pubsub := r.client.PSubscribe(ctx, relayPatterns...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.logger.Info("Relay subscriber started", zap.Strings("patterns", relayPatterns))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("Dropping malformed relay message",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if env.Type != envelopeType {
				continue
			}
			env.Payload.Channel = msg.Channel
			bus.Ingest(env.Payload, PathBroadcast)
		}
	}
}
