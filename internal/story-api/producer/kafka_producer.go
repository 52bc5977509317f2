package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/story-bet-platform/internal/shared/kafka"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// KafkaPublisher publica bet_placed com o pool como chave, mantendo a ordem por pool
type KafkaPublisher struct {
	Writer *kafka.Writer
	Topic  string
	now    func() time.Time
}

func NewKafkaPublisher(w *kafka.Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic, now: time.Now}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = p.now().UnixMilli()
	}
	return kafka.WriteJSON(ctx, p.Writer, e.PoolID, mustJSON(e))
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
