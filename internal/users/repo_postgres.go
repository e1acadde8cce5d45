package users

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo assumes the following table exists:
//
//	users (id TEXT PRIMARY KEY, username TEXT UNIQUE NOT NULL, created_at TIMESTAMPTZ NOT NULL)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (id, username, created_at)
VALUES ($1, $2, $3)
`
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Username, u.CreatedAt)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, bool, error) {
	const q = `
SELECT id, username, created_at
FROM users
WHERE id = $1
`
	return r.scanOne(ctx, q, id)
}

func (r *PostgresRepo) GetByUsername(ctx context.Context, username string) (User, bool, error) {
	const q = `
SELECT id, username, created_at
FROM users
WHERE username = $1
`
	return r.scanOne(ctx, q, username)
}

func (r *PostgresRepo) scanOne(ctx context.Context, q string, arg any) (User, bool, error) {
	var u User
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}
