package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const relayChannel = "intentd:events"

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between instances over Redis pub/sub. Each
// instance ignores its own messages since the hub already delivered them.
type RedisRelay struct {
	rdb    *redis.Client
	origin string
	logger *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, origin string, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, origin: origin, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, relayChannel, b).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run forwards events from other instances into hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.rdb.Subscribe(ctx, relayChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", relayChannel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("invalid relayed event", "error", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			hub.Deliver(env.Event)
		}
	}
}
