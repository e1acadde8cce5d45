package todos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for todos.
type Repository interface {
	GetByID(ctx context.Context, id string) (Todo, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Todo, error)
	ListBySharedWith(ctx context.Context, userID string) ([]Todo, error)
	Insert(ctx context.Context, t Todo) error
	Update(ctx context.Context, t Todo) error
	Delete(ctx context.Context, id string) error
	UnshareFromOwner(ctx context.Context, ownerID, sharedWithUserID string) error
}

// UserDirectory validates share targets.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// BanChecker answers whether blocker has blocked blocked. Sharing with a
// user who banned the owner is rejected.
type BanChecker interface {
	IsBanned(ctx context.Context, blockerUserID, blockedUserID string) (bool, error)
}

var (
	ErrNotFound  = errors.New("todo not found")
	ErrForbidden = errors.New("forbidden")

	ErrTextRequired       = errors.New("text is required")
	ErrSelfShare          = errors.New("cannot share a todo with yourself")
	ErrSharedUserNotFound = errors.New("shared user not found")
	ErrShareBanned        = errors.New("this user blocked receiving shared todos from you")
	ErrCompletedLocked    = errors.New("shared completed todos cannot be marked as incomplete")
	ErrInvalidLeadTime    = errors.New("startMeetingBeforeMin must be between 0 and 1440")
)

type Service struct {
	repo  Repository
	users UserDirectory
	bans  BanChecker
	clock func() time.Time
}

func NewService(repo Repository, users UserDirectory, bans BanChecker) *Service {
	return &Service{repo: repo, users: users, bans: bans, clock: time.Now}
}

type CreateRequest struct {
	Text                  string
	Description           string
	DueAt                 *time.Time
	SharedWithUserID      *string
	StartMeetingBeforeMin int
}

// Patch carries partial updates. The Set flags distinguish "field absent"
// from "explicitly cleared" for the nullable fields.
type Patch struct {
	Text        *string
	Description *string
	Completed   *bool

	DueAt    *time.Time
	DueAtSet bool

	SharedWithUserID    *string
	SharedWithUserIDSet bool

	StartMeetingBeforeMin *int
}

type Listing struct {
	Owned        []Todo
	SharedWithMe []Todo
}

func (s *Service) List(ctx context.Context, userID string) (Listing, error) {
	owned, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return Listing{}, err
	}
	shared, err := s.repo.ListBySharedWith(ctx, userID)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Owned: owned, SharedWithMe: shared}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Todo, error) {
	t, ok, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	if !ok {
		return Todo{}, ErrNotFound
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (Todo, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Todo{}, ErrTextRequired
	}
	if req.StartMeetingBeforeMin < 0 || req.StartMeetingBeforeMin > 1440 {
		return Todo{}, ErrInvalidLeadTime
	}

	shared, err := s.resolveShareTarget(ctx, ownerID, req.SharedWithUserID)
	if err != nil {
		return Todo{}, err
	}

	t := Todo{
		ID:                    uuid.NewString(),
		OwnerID:               ownerID,
		Text:                  text,
		Description:           strings.TrimSpace(req.Description),
		Completed:             false,
		DueAt:                 req.DueAt,
		SharedWithUserID:      shared,
		StartMeetingBeforeMin: req.StartMeetingBeforeMin,
		CreatedAt:             s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, patch Patch) (Todo, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	if t.OwnerID != userID {
		return Todo{}, ErrForbidden
	}

	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return Todo{}, ErrTextRequired
		}
		t.Text = text
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Completed != nil {
		// A completed shared todo is locked: the shared party signed off on
		// it, the owner cannot silently reopen it.
		if t.SharedWithUserID != nil && t.Completed && !*patch.Completed {
			return Todo{}, ErrCompletedLocked
		}
		t.Completed = *patch.Completed
	}
	if patch.DueAtSet {
		t.DueAt = patch.DueAt
	}
	if patch.SharedWithUserIDSet {
		shared, err := s.resolveShareTarget(ctx, userID, patch.SharedWithUserID)
		if err != nil {
			return Todo{}, err
		}
		t.SharedWithUserID = shared
	}
	if patch.StartMeetingBeforeMin != nil {
		v := *patch.StartMeetingBeforeMin
		if v < 0 || v > 1440 {
			return Todo{}, ErrInvalidLeadTime
		}
		t.StartMeetingBeforeMin = v
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.OwnerID != userID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// RemoveShared lets the shared user leave a todo that was shared with them.
func (s *Service) RemoveShared(ctx context.Context, userID, id string) (Todo, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	if t.SharedWithUserID == nil || *t.SharedWithUserID != userID {
		return Todo{}, ErrForbidden
	}
	t.SharedWithUserID = nil
	if err := s.repo.Update(ctx, t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

// UnshareFromOwner severs all shares from ownerID to sharedWithUserID.
// Invoked by the ban service when a block is created.
func (s *Service) UnshareFromOwner(ctx context.Context, ownerID, sharedWithUserID string) error {
	return s.repo.UnshareFromOwner(ctx, ownerID, sharedWithUserID)
}

func (s *Service) resolveShareTarget(ctx context.Context, ownerID string, raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	target := strings.TrimSpace(*raw)
	if target == "" {
		return nil, nil
	}
	if target == ownerID {
		return nil, ErrSelfShare
	}

	ok, err := s.users.Exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("share target lookup: %w", err)
	}
	if !ok {
		return nil, ErrSharedUserNotFound
	}

	banned, err := s.bans.IsBanned(ctx, target, ownerID)
	if err != nil {
		return nil, fmt.Errorf("share ban lookup: %w", err)
	}
	if banned {
		return nil, ErrShareBanned
	}
	return &target, nil
}
