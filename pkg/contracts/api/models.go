// Package api contém os modelos JSON trocados entre o story-api e seus clientes.
// Valores monetários são strings decimais.
package api

import "time"

// Status de aposta
const (
	BetPending  = "PENDING"
	BetWon      = "WON"
	BetLost     = "LOST"
	BetRefunded = "REFUNDED"
)

// Status de pool
const (
	PoolOpen     = "OPEN"
	PoolClosed   = "CLOSED"
	PoolResolved = "RESOLVED"
)

// Categorias do compêndio
const (
	EntityCharacter = "CHARACTER"
	EntityItem      = "ITEM"
	EntityLocation  = "LOCATION"
	EntityMonster   = "MONSTER"
)

type Story struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Genre        string    `json:"genre"`
	Status       string    `json:"status"`
	Summary      string    `json:"summary,omitempty"`
	CoverURL     string    `json:"coverUrl,omitempty"`
	ChapterCount int       `json:"chapterCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Chapter struct {
	ID            string     `json:"id"`
	StoryID       string     `json:"storyId"`
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	Content       string     `json:"content,omitempty"`
	Status        string     `json:"status"` // GENERATING | BETTING_OPEN | BETTING_CLOSED | RESOLVED
	PoolID        string     `json:"poolId,omitempty"`
	BettingEndsAt *time.Time `json:"bettingEndsAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type Outcome struct {
	ID            string `json:"id"`
	ChapterID     string `json:"chapterId"`
	PoolID        string `json:"poolId,omitempty"`
	Description   string `json:"description"`
	TotalDeposits string `json:"totalDeposits"`
	IsSelected    bool   `json:"isSelected"`
}

type Pool struct {
	ID               string     `json:"id"`
	ChapterID        string     `json:"chapterId"`
	StoryID          string     `json:"storyId"`
	TotalDeposits    string     `json:"totalDeposits"`
	Status           string     `json:"status"`
	WinningOutcomeID *string    `json:"winningOutcomeId,omitempty"`
	ClosesAt         *time.Time `json:"closesAt,omitempty"`
	Outcomes         []Outcome  `json:"outcomes,omitempty"`
}

type Bet struct {
	ID          string    `json:"id"`
	UserAddress string    `json:"userAddress"`
	OutcomeID   string    `json:"outcomeId"`
	PoolID      string    `json:"poolId"`
	Amount      string    `json:"amount"`
	Token       string    `json:"token"`
	Status      string    `json:"status"`
	Payout      *string   `json:"payout,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Entity struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StoryID     string `json:"storyId,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Minted      bool   `json:"minted"`
}

type NFT struct {
	TokenID  string    `json:"tokenId"`
	EntityID string    `json:"entityId"`
	Owner    string    `json:"owner"`
	Kind     string    `json:"kind"`
	Name     string    `json:"name"`
	TxHash   string    `json:"txHash,omitempty"`
	MintedAt time.Time `json:"mintedAt"`
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	TotalWinnings string `json:"totalWinnings"`
	BetsPlaced    int    `json:"betsPlaced"`
	BetsWon       int    `json:"betsWon"`
}

type UserStats struct {
	Address       string  `json:"address"`
	TotalBets     int     `json:"totalBets"`
	BetsWon       int     `json:"betsWon"`
	BetsLost      int     `json:"betsLost"`
	TotalWagered  string  `json:"totalWagered"`
	TotalWinnings string  `json:"totalWinnings"`
	WinRate       float64 `json:"winRate"`
}

type User struct {
	Address   string    `json:"address"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoryFilter são os filtros opcionais de listagem de histórias
type StoryFilter struct {
	Status string
	Genre  string
	Limit  int
	Offset int
}

type PlaceBetRequest struct {
	OutcomeID string `json:"outcomeId"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
}

type NonceResponse struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"` // texto exato a ser assinado
}

type VerifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"` // hex 0x..., 65 bytes
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
