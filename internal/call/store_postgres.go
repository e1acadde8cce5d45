package call

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"todocall-platform/internal/todos"
	"todocall-platform/pkg/utils"
)

// PostgresStore assumes the following tables exist (alongside todos):
//
//	call_sessions (
//	  id TEXT PRIMARY KEY,
//	  todo_id TEXT NOT NULL UNIQUE,
//	  initiator_user_id TEXT NOT NULL,
//	  recipient_user_id TEXT NOT NULL,
//	  status TEXT NOT NULL,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  ended_at TIMESTAMPTZ
//	)
//
//	call_signals (
//	  id TEXT PRIMARY KEY,
//	  call_session_id TEXT NOT NULL REFERENCES call_sessions(id),
//	  from_user_id TEXT NOT NULL,
//	  to_user_id TEXT NOT NULL,
//	  payload JSONB NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  delivered_at TIMESTAMPTZ
//	)
//
// The UNIQUE constraint on todo_id is load-bearing: it is what turns racing
// Start calls into an upsert instead of duplicate sessions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const sessionColumns = `id, todo_id, initiator_user_id, recipient_user_id, status, started_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.TodoID,
		&s.InitiatorUserID,
		&s.RecipientUserID,
		&s.Status,
		&s.StartedAt,
		&s.EndedAt,
	)
	return s, err
}

func (s *PostgresStore) GetTodo(ctx context.Context, todoID string) (todos.Todo, bool, error) {
	const q = `
SELECT id, owner_id, text, description, completed, due_at, shared_with_user_id, start_meeting_before_min, created_at
FROM todos
WHERE id = $1
`
	t, err := scanTodoRow(s.db.QueryRowContext(ctx, q, todoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return todos.Todo{}, false, nil
		}
		return todos.Todo{}, false, err
	}
	return t, true, nil
}

func scanTodoRow(row interface{ Scan(...any) error }) (todos.Todo, error) {
	var t todos.Todo
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

func (s *PostgresStore) GetSessionByTodo(ctx context.Context, todoID string) (Session, bool, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE todo_id = $1
`
	sess, err := scanSession(s.db.QueryRowContext(ctx, q, todoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *PostgresStore) StartSession(ctx context.Context, sessionID string, todo todos.Todo, now time.Time) (Session, StartOutcome, error) {
	// Create, revive, or reuse in one statement. The CASE guards keep an
	// active session's identity fields and startedAt untouched (join
	// semantics); an ended one is revived with fresh participants and start
	// time. Conflict losers of a concurrent Start adopt the winner's row.
	//
	// xmax = 0 distinguishes a fresh insert from a conflict update; a
	// conflict that moved started_at to our timestamp was a revival, any
	// other conflict was a join of the active session.
	const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, 'active', $5, NULL)
ON CONFLICT (todo_id) DO UPDATE SET
  initiator_user_id = CASE WHEN call_sessions.status = 'ended' THEN EXCLUDED.initiator_user_id ELSE call_sessions.initiator_user_id END,
  recipient_user_id = CASE WHEN call_sessions.status = 'ended' THEN EXCLUDED.recipient_user_id ELSE call_sessions.recipient_user_id END,
  started_at        = CASE WHEN call_sessions.status = 'ended' THEN EXCLUDED.started_at ELSE call_sessions.started_at END,
  status   = 'active',
  ended_at = NULL
RETURNING ` + sessionColumns + `, (xmax = 0) AS inserted
`
	var (
		sess     Session
		inserted bool
	)
	err := s.db.QueryRowContext(ctx, q,
		sessionID,
		todo.ID,
		todo.OwnerID,
		*todo.SharedWithUserID,
		now,
	).Scan(
		&sess.ID,
		&sess.TodoID,
		&sess.InitiatorUserID,
		&sess.RecipientUserID,
		&sess.Status,
		&sess.StartedAt,
		&sess.EndedAt,
		&inserted,
	)
	if err != nil {
		return Session{}, "", err
	}

	switch {
	case inserted:
		return sess, OutcomeCreated, nil
	case sess.StartedAt.Equal(now):
		return sess, OutcomeRevived, nil
	default:
		return sess, OutcomeJoined, nil
	}
}

func (s *PostgresStore) AppendSignal(ctx context.Context, sig Signal) error {
	const q = `
INSERT INTO call_signals (id, call_session_id, from_user_id, to_user_id, payload, created_at, delivered_at)
VALUES ($1, $2, $3, $4, $5, $6, NULL)
`
	_, err := s.db.ExecContext(ctx, q,
		sig.ID,
		sig.CallSessionID,
		sig.FromUserID,
		sig.ToUserID,
		[]byte(sig.Payload),
		sig.CreatedAt,
	)
	return err
}

func (s *PostgresStore) TakeUndeliveredSignals(ctx context.Context, sessionID, toUserID string, now time.Time) ([]Signal, error) {
	// Single batched claim: concurrent polls by the same user race on the
	// row locks, and SKIP LOCKED means the loser simply sees nothing.
	const q = `
UPDATE call_signals
SET delivered_at = $3
WHERE id IN (
  SELECT id FROM call_signals
  WHERE call_session_id = $1 AND to_user_id = $2 AND delivered_at IS NULL
  FOR UPDATE SKIP LOCKED
)
RETURNING id, call_session_id, from_user_id, to_user_id, payload, created_at, delivered_at
`
	rows, err := s.db.QueryContext(ctx, q, sessionID, toUserID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var sig Signal
		if err := rows.Scan(
			&sig.ID,
			&sig.CallSessionID,
			&sig.FromUserID,
			&sig.ToUserID,
			&sig.Payload,
			&sig.CreatedAt,
			&sig.DeliveredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING order is unspecified; clients rely on creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) EndCall(ctx context.Context, todoID string, res EndResolution, now time.Time) (todos.Todo, error) {
	var out todos.Todo

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the todo row to serialize End against concurrent Start/End.
		const lockQ = `
SELECT id, owner_id, text, description, completed, due_at, shared_with_user_id, start_meeting_before_min, created_at
FROM todos
WHERE id = $1
FOR UPDATE
`
		t, err := scanTodoRow(tx.QueryRowContext(ctx, lockQ, todoID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTodoNotFound
			}
			return err
		}

		const endSessionQ = `
UPDATE call_sessions
SET status = 'ended', ended_at = $2
WHERE todo_id = $1
`
		if _, err := tx.ExecContext(ctx, endSessionQ, todoID, now); err != nil {
			return err
		}

		if res.MarkDone {
			const doneQ = `
UPDATE todos
SET completed = TRUE
WHERE id = $1
RETURNING id, owner_id, text, description, completed, due_at, shared_with_user_id, start_meeting_before_min, created_at
`
			out, err = scanTodoRow(tx.QueryRowContext(ctx, doneQ, todoID))
			return err
		}

		// A failed validation aborts the transaction, un-ending the session.
		if err := validateReschedule(now, t.DueAt, res.RescheduleDueAt); err != nil {
			return err
		}

		const rescheduleQ = `
UPDATE todos
SET completed = FALSE, due_at = $2
WHERE id = $1
RETURNING id, owner_id, text, description, completed, due_at, shared_with_user_id, start_meeting_before_min, created_at
`
		out, err = scanTodoRow(tx.QueryRowContext(ctx, rescheduleQ, todoID, res.RescheduleDueAt))
		return err
	})
	if err != nil {
		return todos.Todo{}, err
	}
	return out, nil
}

func (s *PostgresStore) ListActiveSessions(ctx context.Context) ([]Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE status = 'active'
ORDER BY started_at ASC
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkSessionEnded(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	const q = `
UPDATE call_sessions
SET status = 'ended', ended_at = $2
WHERE id = $1 AND status = 'active'
`
	res, err := s.db.ExecContext(ctx, q, sessionID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
