package bans

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo assumes the following table exists:
//
//	user_share_bans (
//	  id TEXT PRIMARY KEY,
//	  blocker_user_id TEXT NOT NULL,
//	  blocked_user_id TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  UNIQUE (blocker_user_id, blocked_user_id)
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListByBlocker(ctx context.Context, blockerUserID string) ([]ShareBan, error) {
	const q = `
SELECT id, blocker_user_id, blocked_user_id, created_at
FROM user_share_bans
WHERE blocker_user_id = $1
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, blockerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShareBan
	for rows.Next() {
		var b ShareBan
		if err := rows.Scan(&b.ID, &b.BlockerUserID, &b.BlockedUserID, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Upsert(ctx context.Context, ban ShareBan) (ShareBan, error) {
	// Re-banning keeps the original row; DO UPDATE is only there to get RETURNING.
	const q = `
INSERT INTO user_share_bans (id, blocker_user_id, blocked_user_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (blocker_user_id, blocked_user_id)
DO UPDATE SET blocker_user_id = EXCLUDED.blocker_user_id
RETURNING id, blocker_user_id, blocked_user_id, created_at
`
	var out ShareBan
	err := r.db.QueryRowContext(ctx, q, ban.ID, ban.BlockerUserID, ban.BlockedUserID, ban.CreatedAt).Scan(
		&out.ID,
		&out.BlockerUserID,
		&out.BlockedUserID,
		&out.CreatedAt,
	)
	if err != nil {
		return ShareBan{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, blockerUserID, blockedUserID string) error {
	const q = `
DELETE FROM user_share_bans
WHERE blocker_user_id = $1 AND blocked_user_id = $2
`
	_, err := r.db.ExecContext(ctx, q, blockerUserID, blockedUserID)
	return err
}

func (r *PostgresRepo) Exists(ctx context.Context, blockerUserID, blockedUserID string) (bool, error) {
	const q = `
SELECT id
FROM user_share_bans
WHERE blocker_user_id = $1 AND blocked_user_id = $2
LIMIT 1
`
	var id string
	err := r.db.QueryRowContext(ctx, q, blockerUserID, blockedUserID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
