package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to an audit_events table:
//
//	audit_events (
//	  id TEXT PRIMARY KEY,
//	  type TEXT NOT NULL,
//	  actor_user_id TEXT NOT NULL DEFAULT '',
//	  todo_id TEXT NOT NULL DEFAULT '',
//	  call_session_id TEXT NOT NULL DEFAULT '',
//	  subject_user_id TEXT NOT NULL DEFAULT '',
//	  message TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, todo_id, call_session_id, subject_user_id, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.ActorUserID,
		e.TodoID,
		e.CallSessionID,
		e.SubjectUserID,
		e.Message,
		e.CreatedAt,
	)
	return err
}
