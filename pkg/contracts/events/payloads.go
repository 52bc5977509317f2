package events

import "time"

// Payloads dos eventos ao vivo (campo Data do Envelope)

type OutcomeTotal struct {
	OutcomeID     string `json:"outcomeId"`
	TotalDeposits string `json:"totalDeposits"`
}

type BettingUpdatePayload struct {
	PoolID        string         `json:"poolId"`
	ChapterID     string         `json:"chapterId"`
	TotalDeposits string         `json:"totalDeposits"`
	Outcomes      []OutcomeTotal `json:"outcomes"`
}

type ChapterUpdatePayload struct {
	ChapterID string `json:"chapterId"`
	StoryID   string `json:"storyId"`
	Number    int    `json:"number"`
	Status    string `json:"status"`
}

type PoolResolvedPayload struct {
	PoolID           string `json:"poolId"`
	ChapterID        string `json:"chapterId"`
	WinningOutcomeID string `json:"winningOutcomeId"`
	TotalPool        string `json:"totalPool"`
	TotalPayout      string `json:"totalPayout"`
	Winners          int    `json:"winners"`
}

type ClosingSoonPayload struct {
	PoolID           string `json:"poolId"`
	ChapterID        string `json:"chapterId"`
	MinutesRemaining int    `json:"minutesRemaining"`
}

type EntityNewPayload struct {
	EntityID string `json:"entityId"`
	Kind     string `json:"kind"` // CHARACTER | ITEM | LOCATION | MONSTER
	Name     string `json:"name"`
	StoryID  string `json:"storyId,omitempty"`
}

type NFTMintedPayload struct {
	TokenID  string `json:"tokenId"`
	EntityID string `json:"entityId"`
	Owner    string `json:"owner"`
	TxHash   string `json:"txHash,omitempty"`
}

type AnnouncementPayload struct {
	Message string    `json:"message"`
	Level   string    `json:"level,omitempty"`
	Until   time.Time `json:"until,omitempty"`
}
