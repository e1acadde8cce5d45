package todos

import (
	"context"
	"testing"
	"time"
)

type stubUsers struct{ known map[string]bool }

func (s stubUsers) Exists(ctx context.Context, id string) (bool, error) { return s.known[id], nil }

type stubBans struct{ banned map[[2]string]bool }

func (s stubBans) IsBanned(ctx context.Context, blocker, blocked string) (bool, error) {
	return s.banned[[2]string{blocker, blocked}], nil
}

func newTestService(known map[string]bool, banned map[[2]string]bool) *Service {
	svc := NewService(NewMemoryRepo(), stubUsers{known: known}, stubBans{banned: banned})
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return svc
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreate_RequiresText(t *testing.T) {
	svc := newTestService(nil, nil)
	if _, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "   "}); err != ErrTextRequired {
		t.Fatalf("expected ErrTextRequired, got %v", err)
	}
}

func TestCreate_RejectsSelfShare(t *testing.T) {
	svc := newTestService(map[string]bool{"owner": true}, nil)
	_, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("owner")})
	if err != ErrSelfShare {
		t.Fatalf("expected ErrSelfShare, got %v", err)
	}
}

func TestCreate_RejectsUnknownShareTarget(t *testing.T) {
	svc := newTestService(map[string]bool{}, nil)
	_, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("ghost")})
	if err != ErrSharedUserNotFound {
		t.Fatalf("expected ErrSharedUserNotFound, got %v", err)
	}
}

func TestCreate_RejectsBannedShare(t *testing.T) {
	svc := newTestService(
		map[string]bool{"bob": true},
		map[[2]string]bool{{"bob", "owner"}: true},
	)
	_, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("bob")})
	if err != ErrShareBanned {
		t.Fatalf("expected ErrShareBanned, got %v", err)
	}
}

func TestCreate_BlankShareTargetMeansUnshared(t *testing.T) {
	svc := newTestService(nil, nil)
	todo, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("  ")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if todo.SharedWithUserID != nil {
		t.Fatalf("expected unshared todo")
	}
}

func TestUpdate_OnlyOwner(t *testing.T) {
	svc := newTestService(nil, nil)
	todo, err := svc.Create(context.Background(), "owner", CreateRequest{Text: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(context.Background(), "intruder", todo.ID, Patch{Text: strPtr("y")}); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUpdate_SharedCompletedTodoIsLocked(t *testing.T) {
	svc := newTestService(map[string]bool{"bob": true}, nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("bob")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(ctx, "owner", todo.ID, Patch{Completed: boolPtr(true)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Update(ctx, "owner", todo.ID, Patch{Completed: boolPtr(false)}); err != ErrCompletedLocked {
		t.Fatalf("expected ErrCompletedLocked, got %v", err)
	}
}

func TestUpdate_LeadTimeBounds(t *testing.T) {
	svc := newTestService(nil, nil)
	todo, _ := svc.Create(context.Background(), "owner", CreateRequest{Text: "x"})

	tooBig := 1441
	if _, err := svc.Update(context.Background(), "owner", todo.ID, Patch{StartMeetingBeforeMin: &tooBig}); err != ErrInvalidLeadTime {
		t.Fatalf("expected ErrInvalidLeadTime, got %v", err)
	}
}

func TestRemoveShared_OnlyRecipient(t *testing.T) {
	svc := newTestService(map[string]bool{"bob": true}, nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("bob")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.RemoveShared(ctx, "owner", todo.ID); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for owner, got %v", err)
	}

	out, err := svc.RemoveShared(ctx, "bob", todo.ID)
	if err != nil {
		t.Fatalf("remove shared: %v", err)
	}
	if out.SharedWithUserID != nil {
		t.Fatalf("expected share removed")
	}
}

func TestUnshareFromOwner(t *testing.T) {
	svc := newTestService(map[string]bool{"bob": true}, nil)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "owner", CreateRequest{Text: "x", SharedWithUserID: strPtr("bob")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.UnshareFromOwner(ctx, "owner", "bob"); err != nil {
		t.Fatalf("unshare: %v", err)
	}
	got, err := svc.Get(ctx, todo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SharedWithUserID != nil {
		t.Fatalf("expected unshared todo")
	}
}

func TestCallStartAt(t *testing.T) {
	due := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	todo := Todo{DueAt: &due, StartMeetingBeforeMin: 30}

	at, ok := todo.CallStartAt()
	if !ok {
		t.Fatalf("expected call start time")
	}
	if want := due.Add(-30 * time.Minute); !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}

	if _, ok := (Todo{}).CallStartAt(); ok {
		t.Fatalf("expected no call start time without due date")
	}
}
