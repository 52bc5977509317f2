package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

// BetTarget é o contexto de um outcome necessário para aceitar uma aposta
type BetTarget struct {
	OutcomeID     string
	PoolID        string
	ChapterID     string
	StoryID       string
	ChapterStatus string
	PoolStatus    string
	ClosesAt      *time.Time
}

// NewBet é a aposta validada pronta para ser gravada
type NewBet struct {
	UserAddress string
	Target      BetTarget
	Amount      decimal.Decimal
	Token       string
}

func (p *Postgres) BetTarget(ctx context.Context, outcomeID string) (BetTarget, error) {
	const q = `
		SELECT o.id, p.id, c.id, c.story_id, c.status, p.status, p.closes_at
		FROM outcomes o
		JOIN pools p    ON p.id = o.pool_id
		JOIN chapters c ON c.id = o.chapter_id
		WHERE o.id = $1;
	`
	var (
		t      BetTarget
		closes sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, q, outcomeID).Scan(&t.OutcomeID, &t.PoolID, &t.ChapterID, &t.StoryID, &t.ChapterStatus, &t.PoolStatus, &closes)
	if err != nil {
		return BetTarget{}, notFound(err)
	}
	if closes.Valid {
		c := closes.Time
		t.ClosesAt = &c
	}
	return t, nil
}

// CreatePendingBet insere a aposta com status PENDING. Os totais do pool são
// somados depois pelo pool-worker ao consumir bet_placed.
func (p *Postgres) CreatePendingBet(ctx context.Context, b NewBet) (api.Bet, error) {
	bet := api.Bet{
		ID:          uuid.NewString(),
		UserAddress: b.UserAddress,
		OutcomeID:   b.Target.OutcomeID,
		PoolID:      b.Target.PoolID,
		Amount:      b.Amount.String(),
		Token:       b.Token,
		Status:      api.BetPending,
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO bets (id, user_address, outcome_id, pool_id, amount, token, status)
		VALUES ($1,$2,$3,$4,$5,$6,'PENDING')
		RETURNING created_at`,
		bet.ID, bet.UserAddress, bet.OutcomeID, bet.PoolID, b.Amount, bet.Token,
	).Scan(&bet.CreatedAt)
	if err != nil {
		return api.Bet{}, err
	}
	return bet, nil
}

func (p *Postgres) ListUserBets(ctx context.Context, address string) ([]api.Bet, error) {
	const q = `
		SELECT id, user_address, outcome_id, pool_id, amount, token, status, payout, created_at
		FROM bets WHERE user_address = $1
		ORDER BY created_at DESC
		LIMIT 200;
	`
	rows, err := p.db.QueryContext(ctx, q, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.Bet{}
	for rows.Next() {
		var (
			b      api.Bet
			amount decimal.Decimal
			payout decimal.NullDecimal
		)
		if err := rows.Scan(&b.ID, &b.UserAddress, &b.OutcomeID, &b.PoolID, &amount, &b.Token, &b.Status, &payout, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Amount = amount.String()
		if payout.Valid {
			s := payout.Decimal.String()
			b.Payout = &s
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) UserStats(ctx context.Context, address string) (api.UserStats, error) {
	const q = `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'WON'),
		       count(*) FILTER (WHERE status = 'LOST'),
		       COALESCE(SUM(amount), 0),
		       COALESCE(SUM(payout) FILTER (WHERE status = 'WON'), 0)
		FROM bets WHERE user_address = $1;
	`
	st := api.UserStats{Address: address}
	var wagered, winnings decimal.Decimal
	err := p.db.QueryRowContext(ctx, q, address).Scan(&st.TotalBets, &st.BetsWon, &st.BetsLost, &wagered, &winnings)
	if err != nil {
		return api.UserStats{}, err
	}
	st.TotalWagered, st.TotalWinnings = wagered.String(), winnings.String()
	if settled := st.BetsWon + st.BetsLost; settled > 0 {
		st.WinRate = float64(st.BetsWon) / float64(settled)
	}
	return st, nil
}
