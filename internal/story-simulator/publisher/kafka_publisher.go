package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// MessageWriter é o que o publisher usa do *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher escreve nos tópicos que seriam produzidos pelo gerador de
// capítulos (story_events) e pelo sistema de liquidação (pool_resolved).
type KafkaPublisher struct {
	StoryEvents  MessageWriter
	PoolResolved MessageWriter
	Log          *zap.Logger
}

func (p *KafkaPublisher) PublishStoryEvent(ctx context.Context, name, storyID, poolID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	se := events.StoryEvent{Event: name, StoryID: storyID, PoolID: poolID, Data: raw, Ts: time.Now().UTC()}
	key := storyID
	if key == "" {
		key = name
	}
	if err := write(ctx, p.StoryEvents, key, se); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	p.Log.Info("published story event", zap.String("event", name), zap.String("story_id", storyID), zap.String("pool_id", poolID))
	return nil
}

func (p *KafkaPublisher) PublishPoolResolved(ctx context.Context, ev events.PoolResolved) error {
	if err := write(ctx, p.PoolResolved, ev.PoolID, ev); err != nil {
		return fmt.Errorf("publish pool_resolved: %w", err)
	}
	p.Log.Info("published pool resolution",
		zap.String("pool_id", ev.PoolID),
		zap.String("winning_outcome_id", ev.WinningOutcomeID),
		zap.Int("winners", ev.Winners),
	)
	return nil
}

func write(ctx context.Context, w MessageWriter, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Time: time.Now()})
}

// EnsureTopics cria os tópicos num cluster de um broker só (ambientes local e dev)
func EnsureTopics(ctx context.Context, broker string, topics []string, log *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	cconn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cconn.Close()

	cfgs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		cfgs = append(cfgs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := cconn.CreateTopics(cfgs...); err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	log.Debug("kafka topics ensured", zap.Strings("topics", topics))
	return nil
}
