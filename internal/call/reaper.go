package call

import (
	"context"
	"log/slog"
	"time"
)

// ReapStaleSessions force-ends active sessions that look abandoned: both
// participants have been absent (no presence markers) and the session has
// been running longer than the configured staleness window. The todo is left
// untouched; a later Start simply revives the session.
//
// This is a hardening measure for clients that crash or navigate away
// without calling End, which would otherwise leave the session active
// forever. Returns the number of sessions ended.
func (c *Coordinator) ReapStaleSessions(ctx context.Context) (int, error) {
	if c.staleAfter <= 0 || c.presence == nil {
		return 0, nil
	}

	sessions, err := c.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	now := c.clock().UTC()
	reaped := 0
	for _, sess := range sessions {
		if now.Sub(sess.StartedAt) < c.staleAfter {
			continue
		}

		// Either participant still polling keeps the session alive.
		// Presence errors count as "present" so a Redis outage cannot mass-end calls.
		initiatorOnline, err := c.presence.Online(ctx, sess.ID, sess.InitiatorUserID)
		if err != nil || initiatorOnline {
			continue
		}
		recipientOnline, err := c.presence.Online(ctx, sess.ID, sess.RecipientUserID)
		if err != nil || recipientOnline {
			continue
		}

		ended, err := c.store.MarkSessionEnded(ctx, sess.ID, now)
		if err != nil {
			return reaped, err
		}
		if !ended {
			continue
		}
		reaped++
		_ = c.presence.Clear(ctx, sess.ID, sess.InitiatorUserID, sess.RecipientUserID)
		if c.audit != nil {
			_ = c.audit.CallReaped(ctx, sess.TodoID, sess.ID)
		}
	}
	return reaped, nil
}

// RunReaper loops ReapStaleSessions until ctx is canceled. Intended to run
// in its own goroutine from main.
func (c *Coordinator) RunReaper(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if c.staleAfter <= 0 || c.presence == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ReapStaleSessions(ctx)
			if err != nil {
				log.Error("stale session reap failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("reaped stale call sessions", "count", n)
			}
		}
	}
}
