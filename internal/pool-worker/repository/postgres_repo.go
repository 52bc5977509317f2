package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// PostgresRepo mantém os totais espelhados dos pools e o estado de liquidação
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// ApplyBetPlaced soma o valor da aposta ao outcome e ao pool, uma única vez por aposta.
// applied=false indica reentrega de uma aposta já contabilizada.
func (r *PostgresRepo) ApplyBetPlaced(ctx context.Context, ev events.BetPlaced) (totals events.BettingUpdatePayload, applied bool, err error) {
	amount, err := decimal.NewFromString(ev.Amount)
	if err != nil {
		return totals, false, fmt.Errorf("bet %s amount: %w", ev.BetID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return totals, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE bets SET counted = TRUE WHERE id = $1 AND counted = FALSE;`, ev.BetID)
	if err != nil {
		return totals, false, fmt.Errorf("mark bet counted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return totals, false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outcomes SET total_deposits = total_deposits + $1 WHERE id = $2;`, amount, ev.OutcomeID); err != nil {
		return totals, false, fmt.Errorf("outcome totals: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pools SET total_deposits = total_deposits + $1 WHERE id = $2;`, amount, ev.PoolID); err != nil {
		return totals, false, fmt.Errorf("pool totals: %w", err)
	}

	totals, err = poolTotals(ctx, tx, ev.PoolID)
	if err != nil {
		return totals, false, err
	}
	if err := tx.Commit(); err != nil {
		return totals, false, err
	}
	return totals, true, nil
}

func poolTotals(ctx context.Context, tx *sql.Tx, poolID string) (events.BettingUpdatePayload, error) {
	out := events.BettingUpdatePayload{PoolID: poolID}

	var total decimal.Decimal
	if err := tx.QueryRowContext(ctx,
		`SELECT chapter_id, total_deposits FROM pools WHERE id = $1;`, poolID).Scan(&out.ChapterID, &total); err != nil {
		return out, fmt.Errorf("read pool %s: %w", poolID, err)
	}
	out.TotalDeposits = total.String()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, total_deposits FROM outcomes WHERE pool_id = $1 ORDER BY id;`, poolID)
	if err != nil {
		return out, fmt.Errorf("read outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			dep decimal.Decimal
		)
		if err := rows.Scan(&id, &dep); err != nil {
			return out, err
		}
		out.Outcomes = append(out.Outcomes, events.OutcomeTotal{OutcomeID: id, TotalDeposits: dep.String()})
	}
	return out, rows.Err()
}

// ApplyPoolResolved grava a liquidação recebida do sistema externo: pool e capítulo
// resolvidos, outcome vencedor marcado e status/payout de cada aposta.
func (r *PostgresRepo) ApplyPoolResolved(ctx context.Context, ev events.PoolResolved) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE pools
		SET status = $2, winning_outcome_id = $3, resolved_at = $4
		WHERE id = $1;`,
		ev.PoolID, api.PoolResolved, ev.WinningOutcomeID, ev.ResolvedAt); err != nil {
		return fmt.Errorf("resolve pool: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE outcomes SET is_selected = (id = $2) WHERE pool_id = $1;`,
		ev.PoolID, ev.WinningOutcomeID); err != nil {
		return fmt.Errorf("select outcome: %w", err)
	}
	if ev.ChapterID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chapters SET status = $2 WHERE id = $1;`, ev.ChapterID, events.ChapterResolved); err != nil {
			return fmt.Errorf("resolve chapter: %w", err)
		}
	}

	for _, s := range ev.Settlements {
		var payout decimal.NullDecimal
		if s.Payout != "" {
			d, err := decimal.NewFromString(s.Payout)
			if err != nil {
				return fmt.Errorf("bet %s payout: %w", s.BetID, err)
			}
			payout = decimal.NewNullDecimal(d)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE bets SET status = $2, payout = $3, settled_at = $4
			WHERE id = $1 AND pool_id = $5;`,
			s.BetID, s.Status, payout, ev.ResolvedAt, ev.PoolID); err != nil {
			return fmt.Errorf("settle bet %s: %w", s.BetID, err)
		}
	}
	return tx.Commit()
}

// UpdateChapterStatus espelha o ciclo de vida do capítulo; fechar apostas fecha o pool
func (r *PostgresRepo) UpdateChapterStatus(ctx context.Context, p events.ChapterUpdatePayload) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE chapters SET status = $2 WHERE id = $1;`, p.ChapterID, p.Status); err != nil {
		return fmt.Errorf("chapter status: %w", err)
	}
	if p.Status != events.ChapterBettingClosed {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE pools SET status = $2 WHERE chapter_id = $1 AND status = $3;`,
		p.ChapterID, api.PoolClosed, api.PoolOpen)
	return err
}

func (r *PostgresRepo) InsertEntity(ctx context.Context, p events.EntityNewPayload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (id, kind, name, story_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (id) DO NOTHING;`,
		p.EntityID, p.Kind, p.Name, p.StoryID)
	return err
}

func (r *PostgresRepo) InsertNFT(ctx context.Context, p events.NFTMintedPayload) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nfts (token_id, entity_id, owner, tx_hash)
		VALUES ($1, $2, lower($3), NULLIF($4, ''))
		ON CONFLICT (token_id) DO NOTHING;`,
		p.TokenID, p.EntityID, p.Owner, p.TxHash); err != nil {
		return fmt.Errorf("insert nft: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET minted = TRUE WHERE id = $1;`, p.EntityID); err != nil {
		return fmt.Errorf("mark entity minted: %w", err)
	}
	return tx.Commit()
}
