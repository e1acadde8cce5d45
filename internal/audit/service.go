package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to end users.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// CallStarted records a participant opening a brand new call session.
func (s *Service) CallStarted(ctx context.Context, todoID, sessionID, actorUserID string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeCallStarted,
		ActorUserID:   actorUserID,
		TodoID:        todoID,
		CallSessionID: sessionID,
		Message:       "call session started",
	})
}

// CallRevived records a participant reopening a previously ended session.
func (s *Service) CallRevived(ctx context.Context, todoID, sessionID, actorUserID string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeCallRevived,
		ActorUserID:   actorUserID,
		TodoID:        todoID,
		CallSessionID: sessionID,
		Message:       "ended call session revived",
	})
}

// CallResolved records the shared user ending a call.
func (s *Service) CallResolved(ctx context.Context, todoID, actorUserID string, markDone bool) error {
	msg := "call resolved: rescheduled"
	if markDone {
		msg = "call resolved: marked done"
	}
	return s.Append(ctx, Event{
		Type:        EventTypeCallResolved,
		ActorUserID: actorUserID,
		TodoID:      todoID,
		Message:     msg,
	})
}

// CallReaped records the background reaper force-ending an abandoned session.
func (s *Service) CallReaped(ctx context.Context, todoID, sessionID string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeCallReaped,
		TodoID:        todoID,
		CallSessionID: sessionID,
		Message:       "stale call session force-ended",
	})
}

// BanCreated records a user blocking shares from another.
func (s *Service) BanCreated(ctx context.Context, blockerUserID, blockedUserID string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeBanCreated,
		ActorUserID:   blockerUserID,
		SubjectUserID: blockedUserID,
		Message:       "share ban created",
	})
}

// BanRemoved records a block being lifted.
func (s *Service) BanRemoved(ctx context.Context, blockerUserID, blockedUserID string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeBanRemoved,
		ActorUserID:   blockerUserID,
		SubjectUserID: blockedUserID,
		Message:       "share ban removed",
	})
}
