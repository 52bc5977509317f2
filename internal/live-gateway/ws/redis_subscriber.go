package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub alimentado pelo pool-worker
// e repassa cada envelope ao Hub. Retorna quando ctx termina.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				hub.relay(msg.Payload)
			}
		}
	}()
}

func (h *Hub) relay(payload string) {
	var env events.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		h.log.Warn("pubsub unmarshal error", zap.Error(err))
		return
	}
	if env.Event == "" {
		h.log.Warn("pubsub envelope without event")
		return
	}
	h.Broadcast(env)
}
