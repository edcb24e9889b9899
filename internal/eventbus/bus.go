// Package eventbus fans lifecycle events out to webhooks and SSE clients.
// A local in-process broadcast is always present; a Redis
// transport is layered in behind the same interface when enabled, using
// the connect-with-fallback pattern a node also uses for its other optional
// backends.
package eventbus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
	"live777go/internal/forward"
	"live777go/pkg/config"
)

const redisChannel = "live777go:events"

// Bus is the process-wide lifecycle event broadcast. It satisfies
// forward.EventSink, so a Forwarder can hold it directly as its sink.
type Bus struct {
	local      *forward.Broadcast[domain.Event]
	redis      *redis.Client
	instanceID string
	logger     *zap.Logger
}

// New builds a Bus. If cfg.Redis.Enabled, it attempts a Redis connection
// and falls back to local-only broadcast on failure, logging a warning —
// it never fails construction outright.
func New(cfg *config.Config, instanceID string, logger *zap.Logger) *Bus {
	b := &Bus{
		local:      forward.NewBroadcast[domain.Event](256),
		instanceID: instanceID,
		logger:     logger,
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn("failed to connect to redis, falling back to local event bus", zap.Error(err))
		} else {
			b.redis = client
			go b.relayFromRedis()
			logger.Info("event bus using redis transport", zap.String("address", cfg.Redis.Address))
		}
	}
	return b
}

// Emit satisfies forward.EventSink: publishes locally, and to Redis (if
// configured) for other nodes' webhook/SSE fan-out.
func (b *Bus) Emit(event domain.Event) {
	b.local.Send(event)
	if b.redis == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}
	if err := b.redis.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		b.logger.Warn("failed to publish event to redis", zap.Error(err))
	}
}

// relayFromRedis re-emits events received from other nodes into the local
// broadcast, so a single SSE/webhook consumer loop serves both sources.
func (b *Bus) relayFromRedis() {
	pubsub := b.redis.Subscribe(context.Background(), redisChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for msg := range ch {
		var event domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Warn("failed to unmarshal redis event", zap.Error(err))
			continue
		}
		b.local.Send(event)
	}
}

// Subscribe returns a receiver over every emitted event, local or relayed.
func (b *Bus) Subscribe() *forward.Receiver[domain.Event] {
	return b.local.Subscribe()
}

// Run drains events and invokes handler for each, until ctx is cancelled.
// Used by the webhook sink; the SSE handler reads from Subscribe directly.
func (b *Bus) Run(ctx context.Context, handler func(domain.Event)) {
	recv := b.Subscribe()
	for {
		event, _, err := recv.Recv(ctx)
		if err != nil {
			return
		}
		handler(event)
	}
}

// Close releases the Redis connection, if any.
func (b *Bus) Close() error {
	b.local.Close()
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}
