package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for user accounts.
type Repository interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, bool, error)
	GetByUsername(ctx context.Context, username string) (User, bool, error)
}

var (
	ErrNotFound        = errors.New("user not found")
	ErrInvalidUsername = errors.New("invalid username")
	ErrUsernameTaken   = errors.New("username already taken")
)

// Service manages accounts. Login here assumes the passkey ceremony has
// already been verified upstream; it resolves the account so the caller can
// issue tokens for it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Register(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 64 {
		return User{}, ErrInvalidUsername
	}

	if _, ok, err := s.repo.GetByUsername(ctx, username); err != nil {
		return User{}, err
	} else if ok {
		return User{}, ErrUsernameTaken
	}

	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Service) Lookup(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrInvalidUsername
	}
	u, ok, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// Exists reports whether a user id refers to an account. Used by the todo
// and ban services to validate share targets.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, ok, err := s.repo.GetByID(ctx, id)
	return ok, err
}
