package events

import (
	"encoding/json"
	"time"
)

// Nomes de eventos enviados do servidor para o cliente no canal ao vivo
const (
	BettingUpdate      = "betting:update"
	ChapterUpdate      = "chapter:update"
	ChapterNew         = "chapter:new"
	PoolResolvedEvent  = "pool:resolved"
	BettingClosingSoon = "betting:closing_soon"
	EntityNew          = "entity:new"
	NFTMinted          = "nft:minted"
	Announcement       = "announcement"
)

// Mensagens do cliente para o servidor
const (
	MsgSubscribeStory   = "subscribe:story"
	MsgUnsubscribeStory = "unsubscribe:story"
	MsgSubscribePool    = "subscribe:pool"
	MsgUnsubscribePool  = "unsubscribe:pool"
	MsgPing             = "ping"
)

// Status do capítulo, na ordem do ciclo de vida
const (
	ChapterGenerating    = "GENERATING"
	ChapterBettingOpen   = "BETTING_OPEN"
	ChapterBettingClosed = "BETTING_CLOSED"
	ChapterResolved      = "RESOLVED"
)

// Envelope é a unidade trafegada no canal ao vivo (websocket ou polling)
// e no Redis Pub/Sub entre pool-worker e live-gateway.
// StoryID/PoolID vazios significam evento global.
type Envelope struct {
	Event   string          `json:"event"`
	StoryID string          `json:"storyId,omitempty"`
	PoolID  string          `json:"poolId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Ts      time.Time       `json:"ts"`
}

// Scoped indica se o envelope é direcionado a um tópico de história ou pool
func (e Envelope) Scoped() bool { return e.StoryID != "" || e.PoolID != "" }

// ClientMsg representa uma mensagem do cliente para o servidor
// Type: subscribe:story | unsubscribe:story | subscribe:pool | unsubscribe:pool | ping
type ClientMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// StoryEvent é o formato do tópico "story_events", produzido pelo gerador de capítulos
type StoryEvent struct {
	Event   string          `json:"event"`
	StoryID string          `json:"story_id,omitempty"`
	PoolID  string          `json:"pool_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Ts      time.Time       `json:"ts"`
}
