package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

var ErrNotFound = errors.New("repo: not found")

// Postgres é o repositório de leitura e escrita do story-api
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullStr(ns sql.NullString) string { return ns.String }

func nullStrPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func listLimit(limit, def, maxN int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxN {
		return maxN
	}
	return limit
}

func (p *Postgres) ListStories(ctx context.Context, f api.StoryFilter) ([]api.Story, error) {
	const q = `
		SELECT s.id, s.title, s.genre, s.status, s.summary, s.cover_url, s.created_at,
		       (SELECT count(*) FROM chapters c WHERE c.story_id = s.id)
		FROM stories s
		WHERE ($1 = '' OR s.status = $1) AND ($2 = '' OR s.genre = $2)
		ORDER BY s.created_at DESC
		LIMIT $3 OFFSET $4;
	`
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := p.db.QueryContext(ctx, q, strings.ToUpper(f.Status), strings.ToLower(f.Genre), listLimit(f.Limit, 20, 100), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.Story{}
	for rows.Next() {
		var (
			s              api.Story
			summary, cover sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Genre, &s.Status, &summary, &cover, &s.CreatedAt, &s.ChapterCount); err != nil {
			return nil, err
		}
		s.Summary, s.CoverURL = nullStr(summary), nullStr(cover)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) GetStory(ctx context.Context, id string) (api.Story, error) {
	const q = `
		SELECT s.id, s.title, s.genre, s.status, s.summary, s.cover_url, s.created_at,
		       (SELECT count(*) FROM chapters c WHERE c.story_id = s.id)
		FROM stories s WHERE s.id = $1;
	`
	var (
		s              api.Story
		summary, cover sql.NullString
	)
	err := p.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Title, &s.Genre, &s.Status, &summary, &cover, &s.CreatedAt, &s.ChapterCount)
	if err != nil {
		return api.Story{}, notFound(err)
	}
	s.Summary, s.CoverURL = nullStr(summary), nullStr(cover)
	return s, nil
}

const chapterCols = `
	c.id, c.story_id, c.number, c.title, c.content, c.status, p.id, c.betting_ends_at, c.created_at
	FROM chapters c LEFT JOIN pools p ON p.chapter_id = c.id`

type rowScanner interface{ Scan(dest ...any) error }

func scanChapter(row rowScanner) (api.Chapter, error) {
	var (
		c       api.Chapter
		content sql.NullString
		poolID  sql.NullString
		endsAt  sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.StoryID, &c.Number, &c.Title, &content, &c.Status, &poolID, &endsAt, &c.CreatedAt); err != nil {
		return api.Chapter{}, err
	}
	c.Content, c.PoolID = nullStr(content), nullStr(poolID)
	if endsAt.Valid {
		t := endsAt.Time
		c.BettingEndsAt = &t
	}
	return c, nil
}

func (p *Postgres) ListChapters(ctx context.Context, storyID string) ([]api.Chapter, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT`+chapterCols+` WHERE c.story_id = $1 ORDER BY c.number;`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) GetChapter(ctx context.Context, id string) (api.Chapter, error) {
	c, err := scanChapter(p.db.QueryRowContext(ctx, `SELECT`+chapterCols+` WHERE c.id = $1;`, id))
	return c, notFound(err)
}

func (p *Postgres) ListOutcomes(ctx context.Context, chapterID string) ([]api.Outcome, error) {
	const q = `
		SELECT id, chapter_id, pool_id, description, total_deposits, is_selected
		FROM outcomes WHERE chapter_id = $1 ORDER BY id;
	`
	return p.queryOutcomes(ctx, q, chapterID)
}

func (p *Postgres) queryOutcomes(ctx context.Context, q string, arg string) ([]api.Outcome, error) {
	rows, err := p.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.Outcome{}
	for rows.Next() {
		var (
			o      api.Outcome
			poolID sql.NullString
			total  decimal.Decimal
		)
		if err := rows.Scan(&o.ID, &o.ChapterID, &poolID, &o.Description, &total, &o.IsSelected); err != nil {
			return nil, err
		}
		o.PoolID, o.TotalDeposits = nullStr(poolID), total.String()
		out = append(out, o)
	}
	return out, rows.Err()
}

const poolCols = `id, chapter_id, story_id, total_deposits, status, winning_outcome_id, closes_at FROM pools`

func scanPool(row rowScanner) (api.Pool, error) {
	var (
		pl     api.Pool
		total  decimal.Decimal
		winner sql.NullString
		closes sql.NullTime
	)
	if err := row.Scan(&pl.ID, &pl.ChapterID, &pl.StoryID, &total, &pl.Status, &winner, &closes); err != nil {
		return api.Pool{}, err
	}
	pl.TotalDeposits, pl.WinningOutcomeID = total.String(), nullStrPtr(winner)
	if closes.Valid {
		t := closes.Time
		pl.ClosesAt = &t
	}
	return pl, nil
}

// ListActivePools devolve os pools abertos com seus outcomes
func (p *Postgres) ListActivePools(ctx context.Context) ([]api.Pool, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+poolCols+` WHERE status = 'OPEN' ORDER BY closes_at NULLS LAST;`)
	if err != nil {
		return nil, err
	}
	var out []api.Pool
	for rows.Next() {
		pl, err := scanPool(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		if out[i].Outcomes, err = p.poolOutcomes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []api.Pool{}
	}
	return out, nil
}

func (p *Postgres) GetPool(ctx context.Context, id string) (api.Pool, error) {
	pl, err := scanPool(p.db.QueryRowContext(ctx, `SELECT `+poolCols+` WHERE id = $1;`, id))
	if err != nil {
		return api.Pool{}, notFound(err)
	}
	pl.Outcomes, err = p.poolOutcomes(ctx, id)
	return pl, err
}

func (p *Postgres) poolOutcomes(ctx context.Context, poolID string) ([]api.Outcome, error) {
	const q = `
		SELECT id, chapter_id, pool_id, description, total_deposits, is_selected
		FROM outcomes WHERE pool_id = $1 ORDER BY id;
	`
	return p.queryOutcomes(ctx, q, poolID)
}

func (p *Postgres) ListEntities(ctx context.Context, category string) ([]api.Entity, error) {
	const q = `
		SELECT id, kind, name, description, story_id, image_url, minted
		FROM entities WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC;
	`
	rows, err := p.db.QueryContext(ctx, q, strings.ToUpper(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) GetEntity(ctx context.Context, id string) (api.Entity, error) {
	const q = `SELECT id, kind, name, description, story_id, image_url, minted FROM entities WHERE id = $1;`
	e, err := scanEntity(p.db.QueryRowContext(ctx, q, id))
	return e, notFound(err)
}

func scanEntity(row rowScanner) (api.Entity, error) {
	var (
		e                     api.Entity
		desc, storyID, imgURL sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Kind, &e.Name, &desc, &storyID, &imgURL, &e.Minted); err != nil {
		return api.Entity{}, err
	}
	e.Description, e.StoryID, e.ImageURL = nullStr(desc), nullStr(storyID), nullStr(imgURL)
	return e, nil
}

// Leaderboard ordena por ganhos liquidados
func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]api.LeaderboardEntry, error) {
	const q = `
		SELECT u.address, u.username,
		       COALESCE(SUM(b.payout) FILTER (WHERE b.status = 'WON'), 0) AS winnings,
		       count(b.id),
		       count(b.id) FILTER (WHERE b.status = 'WON')
		FROM users u JOIN bets b ON b.user_address = u.address
		GROUP BY u.address, u.username
		ORDER BY winnings DESC, u.address
		LIMIT $1;
	`
	rows, err := p.db.QueryContext(ctx, q, listLimit(limit, 10, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.LeaderboardEntry{}
	for rows.Next() {
		var (
			e        api.LeaderboardEntry
			username sql.NullString
			winnings decimal.Decimal
		)
		if err := rows.Scan(&e.Address, &username, &winnings, &e.BetsPlaced, &e.BetsWon); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		e.Username, e.TotalWinnings = nullStr(username), winnings.String()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListNFTs(ctx context.Context, owner string) ([]api.NFT, error) {
	const q = `
		SELECT n.token_id, n.entity_id, n.owner, e.kind, e.name, n.tx_hash, n.minted_at
		FROM nfts n JOIN entities e ON e.id = n.entity_id
		WHERE ($1 = '' OR n.owner = $1)
		ORDER BY n.minted_at DESC;
	`
	rows, err := p.db.QueryContext(ctx, q, strings.ToLower(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []api.NFT{}
	for rows.Next() {
		var (
			n  api.NFT
			tx sql.NullString
		)
		if err := rows.Scan(&n.TokenID, &n.EntityID, &n.Owner, &n.Kind, &n.Name, &tx, &n.MintedAt); err != nil {
			return nil, err
		}
		n.TxHash = nullStr(tx)
		out = append(out, n)
	}
	return out, rows.Err()
}
