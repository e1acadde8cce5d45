package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"todocall-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which participants are actively polling a session. It is
// advisory: used to render "peer online" to clients and to let the reaper
// spot abandoned sessions. Losing it must never fail a call operation.
type Presence interface {
	// Heartbeat marks userID present on the session and reports whether
	// peerUserID currently is.
	Heartbeat(ctx context.Context, sessionID, userID, peerUserID string) (bool, error)

	// Online reports whether userID has a live presence marker.
	Online(ctx context.Context, sessionID, userID string) (bool, error)

	// Clear drops presence markers for the session participants.
	Clear(ctx context.Context, sessionID string, userIDs ...string) error
}

func presenceKey(sessionID, userID string) string {
	return fmt.Sprintf("call:presence:%s:%s", sessionID, userID)
}

// RedisPresence implements Presence on a shared Redis, so presence survives
// API process restarts and is visible across replicas.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func (p *RedisPresence) Heartbeat(ctx context.Context, sessionID, userID, peerUserID string) (bool, error) {
	return utils.PresenceHeartbeat(ctx, p.rdb, presenceKey(sessionID, userID), presenceKey(sessionID, peerUserID), p.ttl)
}

func (p *RedisPresence) Online(ctx context.Context, sessionID, userID string) (bool, error) {
	return utils.PresenceOnline(ctx, p.rdb, presenceKey(sessionID, userID))
}

func (p *RedisPresence) Clear(ctx context.Context, sessionID string, userIDs ...string) error {
	keys := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		keys = append(keys, presenceKey(sessionID, uid))
	}
	return utils.PresenceClear(ctx, p.rdb, keys...)
}

// MemoryPresence is an in-memory Presence useful for tests.
type MemoryPresence struct {
	mu       sync.Mutex
	deadline map[string]time.Time
	ttl      time.Duration
	clock    func() time.Time
}

func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	return &MemoryPresence{
		deadline: make(map[string]time.Time),
		ttl:      ttl,
		clock:    time.Now,
	}
}

// SetClock overrides the time source for deterministic expiry in tests.
func (p *MemoryPresence) SetClock(clock func() time.Time) { p.clock = clock }

func (p *MemoryPresence) Heartbeat(ctx context.Context, sessionID, userID, peerUserID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	p.deadline[presenceKey(sessionID, userID)] = now.Add(p.ttl)
	dl, ok := p.deadline[presenceKey(sessionID, peerUserID)]
	return ok && dl.After(now), nil
}

func (p *MemoryPresence) Online(ctx context.Context, sessionID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dl, ok := p.deadline[presenceKey(sessionID, userID)]
	return ok && dl.After(p.clock()), nil
}

func (p *MemoryPresence) Clear(ctx context.Context, sessionID string, userIDs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, uid := range userIDs {
		delete(p.deadline, presenceKey(sessionID, uid))
	}
	return nil
}
