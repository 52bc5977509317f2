package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformed marca mensagens que nunca serão processáveis: sem retry e sem DLQ
var ErrMalformed = errors.New("malformed message")

// MessageReader é o que o Processor usa do *kafka.Reader
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// MessageWriter é o que o Processor usa do *kafka.Writer da DLQ
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type HandleFunc func(ctx context.Context, m kafka.Message) error

// Processor consome um tópico e entrega cada mensagem a Handle.
// Falhas transitórias têm retry simples; esgotado o retry a mensagem vai para a DLQ.
type Processor struct {
	Log    *zap.Logger
	Topic  string
	Reader MessageReader
	Handle HandleFunc

	DLQ       MessageWriter // opcional
	Retries   int
	RetryWait time.Duration

	OnConsumed func()       // métricas (counter++)
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop de consumo; só retorna quando ctx termina
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.String("topic", p.Topic), zap.Error(err))
			p.fail("read")
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		err = p.handleWithRetry(ctx, m)
		switch {
		case err == nil:
			if p.OnApplied != nil {
				p.OnApplied()
			}
		case errors.Is(err, ErrMalformed):
			p.Log.Warn("invalid message", zap.String("topic", p.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("decode")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.Log.Error("process message", zap.String("topic", p.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("handle")
			p.deadLetter(ctx, m, err)
		}
	}
}

func (p *Processor) handleWithRetry(ctx context.Context, m kafka.Message) error {
	wait := p.RetryWait
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}

	err := p.Handle(ctx, m)
	for i := 0; err != nil && i < p.Retries; i++ {
		if errors.Is(err, ErrMalformed) {
			return err
		}
		if !sleepCtx(ctx, wait*time.Duration(i+1)) {
			return ctx.Err()
		}
		err = p.Handle(ctx, m)
	}
	return err
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if p.DLQ == nil {
		return
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: []kafka.Header{
			{Key: "source-topic", Value: []byte(p.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
		Time: time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.Log.Error("dlq write failed", zap.String("topic", p.Topic), zap.Error(err))
		p.fail("dlq")
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
