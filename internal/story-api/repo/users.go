package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

// UpsertUser cria o usuário no primeiro login e atualiza last_login_at nos demais
func (p *Postgres) UpsertUser(ctx context.Context, address string) (api.User, error) {
	var (
		u        api.User
		username sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (address, last_login_at) VALUES ($1, now())
		ON CONFLICT (address) DO UPDATE SET last_login_at = now()
		RETURNING address, username, created_at`, address,
	).Scan(&u.Address, &username, &u.CreatedAt)
	if err != nil {
		return api.User{}, err
	}
	u.Username = username.String
	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, address string) (api.User, error) {
	var (
		u        api.User
		username sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `SELECT address, username, created_at FROM users WHERE address = $1`, address).
		Scan(&u.Address, &username, &u.CreatedAt)
	if err != nil {
		return api.User{}, notFound(err)
	}
	u.Username = username.String
	return u, nil
}
