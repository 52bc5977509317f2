package events

// BetPlaced é emitido pelo story-api após gravar uma aposta PENDING.
// Amount é uma string decimal (ex: "0.25"), nunca float.
type BetPlaced struct {
	BetID       string `json:"bet_id"`
	UserAddress string `json:"user_address"`
	StoryID     string `json:"story_id"`
	ChapterID   string `json:"chapter_id"`
	PoolID      string `json:"pool_id"`
	OutcomeID   string `json:"outcome_id"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
