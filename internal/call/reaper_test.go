package call

import (
	"context"
	"testing"
	"time"
)

func TestReapStaleSessionsEndsAbandonedCalls(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	store.PutTodo(callableTodo())

	presence := NewMemoryPresence(5 * time.Second)
	presence.SetClock(fixedClock(testNow))

	c := NewCoordinator(store, CoordinatorOptions{
		Presence:   presence,
		StaleAfter: 10 * time.Minute,
	})
	c.clock = fixedClock(testNow)

	started, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Too young to reap even with nobody present.
	n, err := c.ReapStaleSessions(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 0 {
		t.Fatalf("reaped %d young sessions", n)
	}

	// Past the staleness window but alice is still polling.
	later := testNow.Add(15 * time.Minute)
	c.clock = fixedClock(later)
	presence.SetClock(fixedClock(later))
	if _, err := c.Poll(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	n, err = c.ReapStaleSessions(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 0 {
		t.Fatalf("reaped %d sessions with a present participant", n)
	}

	// Presence expired on both sides: the session gets force-ended.
	expired := later.Add(time.Minute)
	c.clock = fixedClock(expired)
	presence.SetClock(fixedClock(expired))
	n, err = c.ReapStaleSessions(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d sessions, want 1", n)
	}

	sess, ok, _ := store.GetSessionByTodo(ctx, "todo-1")
	if !ok || sess.Status != StatusEnded {
		t.Fatalf("session after reap: ok=%v status=%q", ok, sess.Status)
	}
	if sess.ID != started.Session.ID {
		t.Fatalf("reap touched a different session: %s", sess.ID)
	}

	// The todo itself stays open for a later restart.
	td, _, _ := store.GetTodo(ctx, "todo-1")
	if td.Completed {
		t.Fatal("reaper must not complete the todo")
	}
}

func TestReapStaleSessionsDisabled(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	store.PutTodo(callableTodo())

	c := NewCoordinator(store, CoordinatorOptions{})
	c.clock = fixedClock(testNow)
	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.clock = fixedClock(testNow.Add(24 * time.Hour))
	n, err := c.ReapStaleSessions(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 0 {
		t.Fatalf("disabled reaper ended %d sessions", n)
	}
}
