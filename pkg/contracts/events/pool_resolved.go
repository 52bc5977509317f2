package events

import "time"

// BetSettlement é o resultado autoritativo de uma aposta, gravado pelo sistema de liquidação.
type BetSettlement struct {
	BetID  string `json:"bet_id"`
	Status string `json:"status"` // WON | LOST | REFUNDED
	Payout string `json:"payout,omitempty"`
}

// PoolResolved é publicado no tópico "pool_resolved" quando um pool é liquidado on-chain.
type PoolResolved struct {
	PoolID           string          `json:"pool_id"`
	StoryID          string          `json:"story_id"`
	ChapterID        string          `json:"chapter_id"`
	WinningOutcomeID string          `json:"winning_outcome_id"`
	TotalPool        string          `json:"total_pool"`
	TotalPayout      string          `json:"total_payout"`
	Winners          int             `json:"winners"`
	Settlements      []BetSettlement `json:"settlements"`
	ResolvedAt       time.Time       `json:"resolved_at"`
}
