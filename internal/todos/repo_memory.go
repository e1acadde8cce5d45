package todos

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Todo
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Todo)}
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Todo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[id]
	return t, ok, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	return r.filter(func(t Todo) bool { return t.OwnerID == ownerID }), nil
}

func (r *MemoryRepo) ListBySharedWith(ctx context.Context, userID string) ([]Todo, error) {
	return r.filter(func(t Todo) bool {
		return t.SharedWithUserID != nil && *t.SharedWithUserID == userID
	}), nil
}

func (r *MemoryRepo) filter(keep func(Todo) bool) []Todo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Todo
	for _, t := range r.rows {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepo) Insert(ctx context.Context, t Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[t.ID] = t
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, t Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[t.ID]; !ok {
		return ErrNotFound
	}
	r.rows[t.ID] = t
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepo) UnshareFromOwner(ctx context.Context, ownerID, sharedWithUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.rows {
		if t.OwnerID == ownerID && t.SharedWithUserID != nil && *t.SharedWithUserID == sharedWithUserID {
			t.SharedWithUserID = nil
			r.rows[id] = t
		}
	}
	return nil
}
