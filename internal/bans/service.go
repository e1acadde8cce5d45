package bans

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for share bans.
// Upsert must be idempotent on (blocker_user_id, blocked_user_id).
type Repository interface {
	ListByBlocker(ctx context.Context, blockerUserID string) ([]ShareBan, error)
	Upsert(ctx context.Context, ban ShareBan) (ShareBan, error)
	Delete(ctx context.Context, blockerUserID, blockedUserID string) error
	Exists(ctx context.Context, blockerUserID, blockedUserID string) (bool, error)
}

// UserDirectory is the minimal account lookup needed to validate ban targets.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// TodoUnsharer severs existing shares when a ban is created: any todo the
// blocked user had shared with the blocker stops being shared.
type TodoUnsharer interface {
	UnshareFromOwner(ctx context.Context, ownerID, sharedWithUserID string) error
}

var (
	ErrSelfBan      = errors.New("you cannot ban yourself")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("blockedUserId is required")
)

type Service struct {
	repo  Repository
	users UserDirectory
	todos TodoUnsharer
	clock func() time.Time
}

func NewService(repo Repository, users UserDirectory, todos TodoUnsharer) *Service {
	return &Service{repo: repo, users: users, todos: todos, clock: time.Now}
}

func (s *Service) List(ctx context.Context, blockerUserID string) ([]ShareBan, error) {
	return s.repo.ListByBlocker(ctx, blockerUserID)
}

// Ban creates (or re-affirms) a directed block and unshares any todos the
// blocked user had shared with the blocker.
func (s *Service) Ban(ctx context.Context, blockerUserID, blockedUserID string) (ShareBan, error) {
	blockedUserID = strings.TrimSpace(blockedUserID)
	if blockedUserID == "" {
		return ShareBan{}, ErrInvalidInput
	}
	if blockedUserID == blockerUserID {
		return ShareBan{}, ErrSelfBan
	}

	ok, err := s.users.Exists(ctx, blockedUserID)
	if err != nil {
		return ShareBan{}, err
	}
	if !ok {
		return ShareBan{}, ErrUserNotFound
	}

	ban, err := s.repo.Upsert(ctx, ShareBan{
		ID:            uuid.NewString(),
		BlockerUserID: blockerUserID,
		BlockedUserID: blockedUserID,
		CreatedAt:     s.clock().UTC(),
	})
	if err != nil {
		return ShareBan{}, err
	}

	if err := s.todos.UnshareFromOwner(ctx, blockedUserID, blockerUserID); err != nil {
		return ShareBan{}, err
	}
	return ban, nil
}

func (s *Service) Unban(ctx context.Context, blockerUserID, blockedUserID string) error {
	blockedUserID = strings.TrimSpace(blockedUserID)
	if blockedUserID == "" {
		return ErrInvalidInput
	}
	return s.repo.Delete(ctx, blockerUserID, blockedUserID)
}

// IsBanned reports whether blocker has blocked blocked. Satisfies the
// todos.BanChecker contract used in share validation.
func (s *Service) IsBanned(ctx context.Context, blockerUserID, blockedUserID string) (bool, error) {
	return s.repo.Exists(ctx, blockerUserID, blockedUserID)
}
