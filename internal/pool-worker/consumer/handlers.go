package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

type Store interface {
	ApplyBetPlaced(ctx context.Context, ev events.BetPlaced) (events.BettingUpdatePayload, bool, error)
	ApplyPoolResolved(ctx context.Context, ev events.PoolResolved) error
	UpdateChapterStatus(ctx context.Context, p events.ChapterUpdatePayload) error
	InsertEntity(ctx context.Context, p events.EntityNewPayload) error
	InsertNFT(ctx context.Context, p events.NFTMintedPayload) error
}

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// AreaInvalidator apaga as leituras em cache do story-api de uma área
type AreaInvalidator interface {
	DeleteArea(ctx context.Context, area string) (int, error)
}

// Handlers aplica cada tipo de mensagem no banco e publica o envelope ao vivo correspondente.
// Falha ao publicar não desfaz a escrita: a entrega ao vivo é no máximo uma vez.
type Handlers struct {
	Log   *zap.Logger
	Repo  Store
	Pub   Publisher
	Cache AreaInvalidator // opcional

	OnPublished    func(event string)
	OnPublishError func()

	Now func() time.Time
}

func (h *Handlers) BetPlaced(ctx context.Context, m kafka.Message) error {
	var ev events.BetPlaced
	if err := decode(m.Value, &ev); err != nil {
		return err
	}
	if ev.BetID == "" || ev.PoolID == "" || ev.OutcomeID == "" {
		return fmt.Errorf("%w: bet_placed without bet, pool or outcome id", ErrMalformed)
	}

	totals, applied, err := h.Repo.ApplyBetPlaced(ctx, ev)
	if err != nil {
		return err
	}
	if !applied {
		h.Log.Debug("bet already counted", zap.String("bet_id", ev.BetID))
		return nil
	}
	h.publish(ctx, BettingUpdateEnvelope(ev.StoryID, totals, h.now()))
	return nil
}

func (h *Handlers) PoolResolved(ctx context.Context, m kafka.Message) error {
	var ev events.PoolResolved
	if err := decode(m.Value, &ev); err != nil {
		return err
	}
	if ev.PoolID == "" || ev.WinningOutcomeID == "" {
		return fmt.Errorf("%w: pool_resolved without pool or winning outcome", ErrMalformed)
	}
	if ev.ResolvedAt.IsZero() {
		ev.ResolvedAt = h.now()
	}

	if err := h.Repo.ApplyPoolResolved(ctx, ev); err != nil {
		return err
	}
	h.invalidate(ctx, cache.AreaChapters, cache.AreaStories, cache.AreaLeaderboard)
	h.publish(ctx, PoolResolvedEnvelope(ev))
	return nil
}

// StoryEvent espelha o evento do gerador no banco quando ele altera o modelo de leitura
// e o repassa como envelope ao vivo com o mesmo escopo.
func (h *Handlers) StoryEvent(ctx context.Context, m kafka.Message) error {
	var se events.StoryEvent
	if err := decode(m.Value, &se); err != nil {
		return err
	}

	switch se.Event {
	case events.ChapterUpdate, events.ChapterNew:
		var p events.ChapterUpdatePayload
		if err := decode(se.Data, &p); err != nil {
			return err
		}
		if p.ChapterID == "" || p.Status == "" {
			return fmt.Errorf("%w: %s without chapter or status", ErrMalformed, se.Event)
		}
		if err := h.Repo.UpdateChapterStatus(ctx, p); err != nil {
			return err
		}
		h.invalidate(ctx, cache.AreaChapters, cache.AreaStories)

	case events.EntityNew:
		var p events.EntityNewPayload
		if err := decode(se.Data, &p); err != nil {
			return err
		}
		if err := h.Repo.InsertEntity(ctx, p); err != nil {
			return err
		}
		h.invalidate(ctx, cache.AreaCompendium)

	case events.NFTMinted:
		var p events.NFTMintedPayload
		if err := decode(se.Data, &p); err != nil {
			return err
		}
		if err := h.Repo.InsertNFT(ctx, p); err != nil {
			return err
		}
		h.invalidate(ctx, cache.AreaNFTs, cache.AreaCompendium)

	case events.BettingClosingSoon, events.Announcement:
		// só repasse

	default:
		return fmt.Errorf("%w: unknown story event %q", ErrMalformed, se.Event)
	}

	h.publish(ctx, ForwardEnvelope(se, h.now()))
	return nil
}

func (h *Handlers) publish(ctx context.Context, env events.Envelope) {
	if err := h.Pub.Publish(ctx, env); err != nil {
		h.Log.Warn("live publish failed", zap.String("event", env.Event), zap.Error(err))
		if h.OnPublishError != nil {
			h.OnPublishError()
		}
		return
	}
	if h.OnPublished != nil {
		h.OnPublished(env.Event)
	}
}

func (h *Handlers) invalidate(ctx context.Context, areas ...string) {
	if h.Cache == nil {
		return
	}
	for _, a := range areas {
		if _, err := h.Cache.DeleteArea(ctx, a); err != nil {
			h.Log.Warn("read cache invalidation failed", zap.String("area", a), zap.Error(err))
		}
	}
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// BettingUpdateEnvelope vai para quem acompanha o pool ou a história
func BettingUpdateEnvelope(storyID string, p events.BettingUpdatePayload, ts time.Time) events.Envelope {
	return events.Envelope{
		Event:   events.BettingUpdate,
		StoryID: storyID,
		PoolID:  p.PoolID,
		Data:    mustJSON(p),
		Ts:      ts,
	}
}

func PoolResolvedEnvelope(ev events.PoolResolved) events.Envelope {
	return events.Envelope{
		Event:   events.PoolResolvedEvent,
		StoryID: ev.StoryID,
		PoolID:  ev.PoolID,
		Data: mustJSON(events.PoolResolvedPayload{
			PoolID:           ev.PoolID,
			ChapterID:        ev.ChapterID,
			WinningOutcomeID: ev.WinningOutcomeID,
			TotalPool:        ev.TotalPool,
			TotalPayout:      ev.TotalPayout,
			Winners:          ev.Winners,
		}),
		Ts: ev.ResolvedAt,
	}
}

// ForwardEnvelope mantém o escopo do evento do gerador; sem história nem pool vira global
func ForwardEnvelope(se events.StoryEvent, now time.Time) events.Envelope {
	ts := se.Ts
	if ts.IsZero() {
		ts = now
	}
	return events.Envelope{
		Event:   se.Event,
		StoryID: se.StoryID,
		PoolID:  se.PoolID,
		Data:    se.Data,
		Ts:      ts,
	}
}

func decode(b []byte, v any) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
