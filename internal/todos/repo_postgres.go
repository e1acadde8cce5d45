package todos

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo assumes the following table exists:
//
//	todos (
//	  id TEXT PRIMARY KEY,
//	  owner_id TEXT NOT NULL,
//	  text TEXT NOT NULL,
//	  description TEXT NOT NULL DEFAULT '',
//	  completed BOOLEAN NOT NULL DEFAULT FALSE,
//	  due_at TIMESTAMPTZ,
//	  shared_with_user_id TEXT,
//	  start_meeting_before_min INT NOT NULL DEFAULT 0,
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const todoColumns = `id, owner_id, text, description, completed, due_at, shared_with_user_id, start_meeting_before_min, created_at`

func scanTodo(row interface{ Scan(...any) error }) (Todo, error) {
	var t Todo
	err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Text,
		&t.Description,
		&t.Completed,
		&t.DueAt,
		&t.SharedWithUserID,
		&t.StartMeetingBeforeMin,
		&t.CreatedAt,
	)
	return t, err
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Todo, bool, error) {
	const q = `
SELECT ` + todoColumns + `
FROM todos
WHERE id = $1
`
	t, err := scanTodo(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, false, nil
		}
		return Todo{}, false, err
	}
	return t, true, nil
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	const q = `
SELECT ` + todoColumns + `
FROM todos
WHERE owner_id = $1
ORDER BY created_at ASC
`
	return r.list(ctx, q, ownerID)
}

func (r *PostgresRepo) ListBySharedWith(ctx context.Context, userID string) ([]Todo, error) {
	const q = `
SELECT ` + todoColumns + `
FROM todos
WHERE shared_with_user_id = $1
ORDER BY created_at ASC
`
	return r.list(ctx, q, userID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, arg any) ([]Todo, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Insert(ctx context.Context, t Todo) error {
	const q = `
INSERT INTO todos (` + todoColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		t.ID,
		t.OwnerID,
		t.Text,
		t.Description,
		t.Completed,
		t.DueAt,
		t.SharedWithUserID,
		t.StartMeetingBeforeMin,
		t.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, t Todo) error {
	const q = `
UPDATE todos
SET text = $2,
    description = $3,
    completed = $4,
    due_at = $5,
    shared_with_user_id = $6,
    start_meeting_before_min = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		t.ID,
		t.Text,
		t.Description,
		t.Completed,
		t.DueAt,
		t.SharedWithUserID,
		t.StartMeetingBeforeMin,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM todos WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func (r *PostgresRepo) UnshareFromOwner(ctx context.Context, ownerID, sharedWithUserID string) error {
	const q = `
UPDATE todos
SET shared_with_user_id = NULL
WHERE owner_id = $1 AND shared_with_user_id = $2
`
	_, err := r.db.ExecContext(ctx, q, ownerID, sharedWithUserID)
	return err
}
