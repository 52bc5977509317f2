package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/story-bet-platform/internal/story-simulator/settle"
)

var ErrNotFound = errors.New("not found")

// PoolInfo é o contexto do pool usado para montar os eventos
type PoolInfo struct {
	ID            string
	ChapterID     string
	StoryID       string
	ChapterNumber int
	Status        string
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Pool(ctx context.Context, poolID string) (PoolInfo, error) {
	const q = `
		SELECT p.id, p.chapter_id, p.story_id, c.number, p.status
		FROM pools p
		JOIN chapters c ON c.id = p.chapter_id
		WHERE p.id = $1;
	`
	var info PoolInfo
	err := p.db.QueryRowContext(ctx, q, poolID).Scan(&info.ID, &info.ChapterID, &info.StoryID, &info.ChapterNumber, &info.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}
	return info, err
}

// Bets devolve as apostas já contabilizadas nos totais do pool
func (p *Postgres) Bets(ctx context.Context, poolID string) ([]settle.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, outcome_id, amount
		FROM bets
		WHERE pool_id = $1 AND counted = TRUE
		ORDER BY created_at;`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settle.Bet
	for rows.Next() {
		var (
			b      settle.Bet
			amount decimal.Decimal
		)
		if err := rows.Scan(&b.ID, &b.OutcomeID, &amount); err != nil {
			return nil, err
		}
		b.Amount = amount
		out = append(out, b)
	}
	return out, rows.Err()
}
