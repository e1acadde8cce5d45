package call

import (
	"context"
	"sort"
	"sync"
	"time"

	"todocall-platform/internal/todos"
)

// MemoryStore mirrors PostgresStore behavior for tests and local runs.
// The single mutex stands in for the transactional guarantees.
type MemoryStore struct {
	mu       sync.Mutex
	todos    map[string]todos.Todo
	sessions map[string]Session // keyed by todo ID
	signals  []Signal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		todos:    make(map[string]todos.Todo),
		sessions: make(map[string]Session),
	}
}

// PutTodo seeds or replaces a todo. Coordinator tests use it directly;
// the wired service goes through the todos repository instead.
func (m *MemoryStore) PutTodo(t todos.Todo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todos[t.ID] = t
}

func (m *MemoryStore) GetTodo(_ context.Context, todoID string) (todos.Todo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[todoID]
	return t, ok, nil
}

func (m *MemoryStore) GetSessionByTodo(_ context.Context, todoID string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[todoID]
	return s, ok, nil
}

func (m *MemoryStore) StartSession(_ context.Context, sessionID string, todo todos.Todo, now time.Time) (Session, StartOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[todo.ID]; ok {
		if existing.Status == StatusActive {
			return existing, OutcomeJoined, nil
		}
		// Revive under the original session ID so queued signals and
		// presence keys stay attached.
		existing.InitiatorUserID = todo.OwnerID
		existing.RecipientUserID = *todo.SharedWithUserID
		existing.Status = StatusActive
		existing.StartedAt = now
		existing.EndedAt = nil
		m.sessions[todo.ID] = existing
		return existing, OutcomeRevived, nil
	}

	s := Session{
		ID:              sessionID,
		TodoID:          todo.ID,
		InitiatorUserID: todo.OwnerID,
		RecipientUserID: *todo.SharedWithUserID,
		Status:          StatusActive,
		StartedAt:       now,
	}
	m.sessions[todo.ID] = s
	return s, OutcomeCreated, nil
}

func (m *MemoryStore) AppendSignal(_ context.Context, sig Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func (m *MemoryStore) TakeUndeliveredSignals(_ context.Context, sessionID, toUserID string, now time.Time) ([]Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Signal
	for i := range m.signals {
		sig := &m.signals[i]
		if sig.CallSessionID != sessionID || sig.ToUserID != toUserID || sig.DeliveredAt != nil {
			continue
		}
		ts := now
		sig.DeliveredAt = &ts
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) EndCall(_ context.Context, todoID string, res EndResolution, now time.Time) (todos.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.todos[todoID]
	if !ok {
		return todos.Todo{}, ErrTodoNotFound
	}

	// Validate before touching anything, matching the rollback the SQL
	// store gets from its transaction.
	if !res.MarkDone {
		if err := validateReschedule(now, t.DueAt, res.RescheduleDueAt); err != nil {
			return todos.Todo{}, err
		}
	}

	if s, ok := m.sessions[todoID]; ok {
		ts := now
		s.Status = StatusEnded
		s.EndedAt = &ts
		m.sessions[todoID] = s
	}

	if res.MarkDone {
		t.Completed = true
	} else {
		t.Completed = false
		due := res.RescheduleDueAt
		t.DueAt = &due
	}
	m.todos[todoID] = t
	return t, nil
}

func (m *MemoryStore) ListActiveSessions(_ context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) MarkSessionEnded(_ context.Context, sessionID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for todoID, s := range m.sessions {
		if s.ID != sessionID || s.Status != StatusActive {
			continue
		}
		ts := now
		s.Status = StatusEnded
		s.EndedAt = &ts
		m.sessions[todoID] = s
		return true, nil
	}
	return false, nil
}
