package bans

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[[2]string]ShareBan
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[[2]string]ShareBan)}
}

func (r *MemoryRepo) ListByBlocker(ctx context.Context, blockerUserID string) ([]ShareBan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ShareBan
	for k, b := range r.rows {
		if k[0] == blockerUserID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, ban ShareBan) (ShareBan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{ban.BlockerUserID, ban.BlockedUserID}
	if existing, ok := r.rows[key]; ok {
		return existing, nil
	}
	r.rows[key] = ban
	return ban, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, blockerUserID, blockedUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, [2]string{blockerUserID, blockedUserID})
	return nil
}

func (r *MemoryRepo) Exists(ctx context.Context, blockerUserID, blockedUserID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[[2]string{blockerUserID, blockedUserID}]
	return ok, nil
}
