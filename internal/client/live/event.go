package live

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// Event é um evento recebido do servidor, já roteado.
type Event struct {
	Name    string
	StoryID string
	PoolID  string
	Data    json.RawMessage
	Ts      time.Time
}

// Decode desserializa o payload do evento
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("live: event %s has no payload", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

func fromEnvelope(env events.Envelope) Event {
	return Event{Name: env.Event, StoryID: env.StoryID, PoolID: env.PoolID, Data: env.Data, Ts: env.Ts}
}

// OnTyped registra um handler que recebe o payload já decodificado.
// Payloads inválidos são registrados no log e descartados.
func OnTyped[T any](c *Conn, name string, fn func(Event, T)) Subscription {
	return c.On(name, func(ev Event) {
		var v T
		if err := ev.Decode(&v); err != nil {
			c.log.Warn("invalid live payload", zap.String("event", name), zap.Error(err))
			return
		}
		fn(ev, v)
	})
}

func OnBettingUpdate(c *Conn, fn func(Event, events.BettingUpdatePayload)) Subscription {
	return OnTyped(c, events.BettingUpdate, fn)
}

func OnPoolResolved(c *Conn, fn func(Event, events.PoolResolvedPayload)) Subscription {
	return OnTyped(c, events.PoolResolvedEvent, fn)
}

func OnClosingSoon(c *Conn, fn func(Event, events.ClosingSoonPayload)) Subscription {
	return OnTyped(c, events.BettingClosingSoon, fn)
}

// OnChapter recebe chapter:update e chapter:new
func OnChapter(c *Conn, fn func(Event, events.ChapterUpdatePayload)) Subscription {
	return joinSubs(
		OnTyped(c, events.ChapterUpdate, fn),
		OnTyped(c, events.ChapterNew, fn),
	)
}

func OnEntityNew(c *Conn, fn func(Event, events.EntityNewPayload)) Subscription {
	return OnTyped(c, events.EntityNew, fn)
}

func OnNFTMinted(c *Conn, fn func(Event, events.NFTMintedPayload)) Subscription {
	return OnTyped(c, events.NFTMinted, fn)
}

func OnAnnouncement(c *Conn, fn func(Event, events.AnnouncementPayload)) Subscription {
	return OnTyped(c, events.Announcement, fn)
}
