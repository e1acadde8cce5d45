package call

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"todocall-platform/internal/todos"
)

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// callableTodo is due now with a 10 minute lead, shared from alice to bob.
func callableTodo() todos.Todo {
	return todos.Todo{
		ID:                    "todo-1",
		OwnerID:               "alice",
		Text:                  "design review",
		DueAt:                 timePtr(testNow.Add(5 * time.Minute)),
		SharedWithUserID:      strPtr("bob"),
		StartMeetingBeforeMin: 10,
		CreatedAt:             testNow.Add(-time.Hour),
	}
}

func newTestCoordinator(t *testing.T, seed ...todos.Todo) (*Coordinator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for _, td := range seed {
		store.PutTodo(td)
	}
	c := NewCoordinator(store, CoordinatorOptions{})
	c.clock = fixedClock(testNow)
	return c, store
}

func TestStartRejectsIneligibleTodos(t *testing.T) {
	ctx := context.Background()

	private := callableTodo()
	private.ID = "todo-private"
	private.SharedWithUserID = nil

	noDue := callableTodo()
	noDue.ID = "todo-nodue"
	noDue.DueAt = nil

	done := callableTodo()
	done.ID = "todo-done"
	done.Completed = true

	c, _ := newTestCoordinator(t, callableTodo(), private, noDue, done)

	if _, err := c.Start(ctx, "missing", "alice"); !errors.Is(err, ErrTodoNotFound) {
		t.Fatalf("unknown todo: got %v, want ErrTodoNotFound", err)
	}
	if _, err := c.Start(ctx, "todo-1", "mallory"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: got %v, want ErrForbidden", err)
	}
	if _, err := c.Start(ctx, "todo-private", "alice"); !errors.Is(err, ErrNotShared) {
		t.Fatalf("private todo: got %v, want ErrNotShared", err)
	}
	if _, err := c.Start(ctx, "todo-nodue", "alice"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("no due time: got %v, want ErrNotEligible", err)
	}
	if _, err := c.Start(ctx, "todo-done", "alice"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("completed todo: got %v, want ErrNotEligible", err)
	}
}

func TestStartTooEarlyCreatesNothing(t *testing.T) {
	ctx := context.Background()

	early := callableTodo()
	early.DueAt = timePtr(testNow.Add(2 * time.Hour))

	c, store := newTestCoordinator(t, early)

	if _, err := c.Start(ctx, "todo-1", "alice"); !errors.Is(err, ErrTooEarly) {
		t.Fatalf("before window: got %v, want ErrTooEarly", err)
	}
	if _, ok, _ := store.GetSessionByTodo(ctx, "todo-1"); ok {
		t.Fatal("too-early start must not create a session")
	}
}

func TestStartWindowOpensBeforeDue(t *testing.T) {
	ctx := context.Background()

	// Due in 5 minutes, 10 minute lead: the window is already open.
	c, _ := newTestCoordinator(t, callableTodo())

	res, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("start inside lead window: %v", err)
	}
	if res.Role != RoleInitiator {
		t.Fatalf("owner role = %q, want %q", res.Role, RoleInitiator)
	}
	if res.Session.Status != StatusActive {
		t.Fatalf("status = %q, want active", res.Session.Status)
	}
	if res.Session.InitiatorUserID != "alice" || res.Session.RecipientUserID != "bob" {
		t.Fatalf("participants = %s/%s", res.Session.InitiatorUserID, res.Session.RecipientUserID)
	}
}

func TestStartIsIdempotentAcrossParticipants(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	first, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := c.Start(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("second start got session %s, want %s", second.Session.ID, first.Session.ID)
	}
	if second.Role != RoleRecipient {
		t.Fatalf("shared user role = %q, want %q", second.Role, RoleRecipient)
	}
	if !second.Session.StartedAt.Equal(first.Session.StartedAt) {
		t.Fatal("joining must not reset startedAt")
	}
}

func TestStartRevivesEndedSessionInPlace(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, callableTodo())

	first, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	reschedule := testNow.Add(3 * time.Hour)
	if _, err := c.End(ctx, "todo-1", "bob", EndRequest{RescheduleDueAt: &reschedule}); err != nil {
		t.Fatalf("end: %v", err)
	}

	// The rescheduled due time reopens the window later.
	later := reschedule.Add(-time.Minute)
	c.clock = fixedClock(later)

	revived, err := c.Start(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if revived.Session.ID != first.Session.ID {
		t.Fatalf("revival changed session id: %s -> %s", first.Session.ID, revived.Session.ID)
	}
	if !revived.Session.StartedAt.Equal(later) {
		t.Fatalf("revival startedAt = %v, want %v", revived.Session.StartedAt, later)
	}
	if revived.Session.EndedAt != nil {
		t.Fatal("revived session must clear endedAt")
	}

	sess, ok, _ := store.GetSessionByTodo(ctx, "todo-1")
	if !ok || sess.Status != StatusActive {
		t.Fatalf("stored session after revival: ok=%v status=%q", ok, sess.Status)
	}
}

func TestRelaySignalRequiresActiveSessionAndPayload(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	if err := c.RelaySignal(ctx, "todo-1", "alice", offer); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("relay before start: got %v, want ErrNoActiveSession", err)
	}

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.RelaySignal(ctx, "todo-1", "alice", nil); !errors.Is(err, ErrPayloadRequired) {
		t.Fatalf("empty payload: got %v, want ErrPayloadRequired", err)
	}
	if err := c.RelaySignal(ctx, "todo-1", "mallory", offer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider relay: got %v, want ErrForbidden", err)
	}
	if err := c.RelaySignal(ctx, "todo-1", "alice", offer); err != nil {
		t.Fatalf("relay: %v", err)
	}
}

func TestPollDeliversEachSignalAtMostOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	payloads := []string{
		`{"type":"offer","sdp":"v=0"}`,
		`{"type":"ice","candidate":"cand-1"}`,
		`{"type":"ice","candidate":"cand-2"}`,
	}
	for i, p := range payloads {
		c.clock = fixedClock(testNow.Add(time.Duration(i) * time.Second))
		if err := c.RelaySignal(ctx, "todo-1", "alice", json.RawMessage(p)); err != nil {
			t.Fatalf("relay %d: %v", i, err)
		}
	}

	// Sender polling must not drain the recipient's queue.
	fromAlice, err := c.Poll(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("alice poll: %v", err)
	}
	if len(fromAlice.Signals) != 0 {
		t.Fatalf("alice received %d of her own signals", len(fromAlice.Signals))
	}

	first, err := c.Poll(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("bob poll: %v", err)
	}
	if len(first.Signals) != len(payloads) {
		t.Fatalf("first poll delivered %d signals, want %d", len(first.Signals), len(payloads))
	}
	for i, sig := range first.Signals {
		if string(sig.Payload) != payloads[i] {
			t.Fatalf("signal %d payload = %s, want %s", i, sig.Payload, payloads[i])
		}
		if sig.FromUserID != "alice" || sig.ToUserID != "bob" {
			t.Fatalf("signal %d routed %s -> %s", i, sig.FromUserID, sig.ToUserID)
		}
	}

	second, err := c.Poll(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second.Signals) != 0 {
		t.Fatalf("second poll redelivered %d signals", len(second.Signals))
	}
}

func TestPollWithoutSessionReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	res, err := c.Poll(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Session != nil {
		t.Fatal("session should be nil before any start")
	}
	if res.Signals == nil || len(res.Signals) != 0 {
		t.Fatalf("signals = %v, want empty non-nil slice", res.Signals)
	}
}

func TestPollReportsPeerPresence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutTodo(callableTodo())

	presence := NewMemoryPresence(5 * time.Second)
	presence.SetClock(fixedClock(testNow))

	c := NewCoordinator(store, CoordinatorOptions{Presence: presence})
	c.clock = fixedClock(testNow)

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := c.Poll(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("alice poll: %v", err)
	}
	if res.PeerOnline {
		t.Fatal("bob has never polled, peerOnline should be false")
	}

	res, err = c.Poll(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("bob poll: %v", err)
	}
	if !res.PeerOnline {
		t.Fatal("alice just polled, peerOnline should be true")
	}
}

func TestEndOnlySharedUserMayResolve(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.End(ctx, "todo-1", "alice", EndRequest{MarkDone: true}); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("owner end: got %v, want ErrNotRecipient", err)
	}
	if _, err := c.End(ctx, "todo-1", "mallory", EndRequest{MarkDone: true}); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("outsider end: got %v, want ErrNotRecipient", err)
	}
}

func TestEndMarkDoneCompletesTodoAndEndsSession(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, callableTodo())

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	updated, err := c.End(ctx, "todo-1", "bob", EndRequest{MarkDone: true})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !updated.Completed {
		t.Fatal("markDone must complete the todo")
	}

	sess, ok, _ := store.GetSessionByTodo(ctx, "todo-1")
	if !ok || sess.Status != StatusEnded || sess.EndedAt == nil {
		t.Fatalf("session after end: ok=%v status=%q endedAt=%v", ok, sess.Status, sess.EndedAt)
	}
}

func TestEndRescheduleValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		due  *time.Time
		want error
	}{
		{"missing", nil, ErrRescheduleRequired},
		{"past", timePtr(testNow.Add(-time.Minute)), ErrRescheduleNotFuture},
		{"not later than current", timePtr(testNow.Add(2 * time.Minute)), ErrRescheduleNotLater},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, store := newTestCoordinator(t, callableTodo())
			if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
				t.Fatalf("start: %v", err)
			}

			_, err := c.End(ctx, "todo-1", "bob", EndRequest{RescheduleDueAt: tc.due})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}

			// Rejected reschedule rolls back: session stays active, todo untouched.
			sess, ok, _ := store.GetSessionByTodo(ctx, "todo-1")
			if !ok || sess.Status != StatusActive {
				t.Fatalf("session after failed end: ok=%v status=%q", ok, sess.Status)
			}
			td, _, _ := store.GetTodo(ctx, "todo-1")
			if td.Completed || !td.DueAt.Equal(testNow.Add(5*time.Minute)) {
				t.Fatalf("todo mutated by failed end: completed=%v dueAt=%v", td.Completed, td.DueAt)
			}
		})
	}
}

func TestEndRescheduleSetsNewDueTime(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, callableTodo())

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	next := testNow.Add(48 * time.Hour)
	updated, err := c.End(ctx, "todo-1", "bob", EndRequest{RescheduleDueAt: &next})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if updated.Completed {
		t.Fatal("reschedule must leave the todo open")
	}
	if updated.DueAt == nil || !updated.DueAt.Equal(next) {
		t.Fatalf("dueAt = %v, want %v", updated.DueAt, next)
	}

	sess, _, _ := store.GetSessionByTodo(ctx, "todo-1")
	if sess.Status != StatusEnded {
		t.Fatalf("session status = %q, want ended", sess.Status)
	}
}

// Full exchange: alice opens the call, both sides trade offer/answer/ICE,
// bob resolves with a reschedule, and a later start revives the same session.
func TestCallLifecycleOfferAnswerResolve(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, callableTodo())

	started, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := c.RelaySignal(ctx, "todo-1", "alice", json.RawMessage(`{"type":"offer","sdp":"o"}`)); err != nil {
		t.Fatalf("offer: %v", err)
	}

	bobPoll, err := c.Poll(ctx, "todo-1", "bob")
	if err != nil {
		t.Fatalf("bob poll: %v", err)
	}
	if len(bobPoll.Signals) != 1 || bobPoll.Session.ID != started.Session.ID {
		t.Fatalf("bob poll: %d signals, session %v", len(bobPoll.Signals), bobPoll.Session)
	}

	if err := c.RelaySignal(ctx, "todo-1", "bob", json.RawMessage(`{"type":"answer","sdp":"a"}`)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := c.RelaySignal(ctx, "todo-1", "bob", json.RawMessage(`{"type":"ice","candidate":"c1"}`)); err != nil {
		t.Fatalf("ice: %v", err)
	}

	alicePoll, err := c.Poll(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("alice poll: %v", err)
	}
	if len(alicePoll.Signals) != 2 {
		t.Fatalf("alice received %d signals, want 2", len(alicePoll.Signals))
	}

	next := testNow.Add(24 * time.Hour)
	if _, err := c.End(ctx, "todo-1", "bob", EndRequest{RescheduleDueAt: &next}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// After resolution relaying is refused until the call is reopened.
	err = c.RelaySignal(ctx, "todo-1", "alice", json.RawMessage(`{"type":"ice","candidate":"c2"}`))
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("relay after end: got %v, want ErrNoActiveSession", err)
	}
}

// recordingAuditor captures the sequence of audit calls the coordinator makes.
type recordingAuditor struct {
	events []string
}

func (a *recordingAuditor) CallStarted(_ context.Context, todoID, _, _ string) error {
	a.events = append(a.events, "started:"+todoID)
	return nil
}

func (a *recordingAuditor) CallRevived(_ context.Context, todoID, _, _ string) error {
	a.events = append(a.events, "revived:"+todoID)
	return nil
}

func (a *recordingAuditor) CallResolved(_ context.Context, todoID, _ string, _ bool) error {
	a.events = append(a.events, "resolved:"+todoID)
	return nil
}

func (a *recordingAuditor) CallReaped(_ context.Context, todoID, _ string) error {
	a.events = append(a.events, "reaped:"+todoID)
	return nil
}

func TestStartAuditsCreationAndRevivalDistinctly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutTodo(callableTodo())

	auditor := &recordingAuditor{}
	c := NewCoordinator(store, CoordinatorOptions{Audit: auditor})
	c.clock = fixedClock(testNow)

	if _, err := c.Start(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Joining an active session is not an auditable event.
	if _, err := c.Start(ctx, "todo-1", "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	reschedule := testNow.Add(3 * time.Hour)
	if _, err := c.End(ctx, "todo-1", "bob", EndRequest{RescheduleDueAt: &reschedule}); err != nil {
		t.Fatalf("end: %v", err)
	}

	c.clock = fixedClock(reschedule.Add(-time.Minute))
	if _, err := c.Start(ctx, "todo-1", "bob"); err != nil {
		t.Fatalf("revive: %v", err)
	}

	want := []string{"started:todo-1", "resolved:todo-1", "revived:todo-1"}
	if len(auditor.events) != len(want) {
		t.Fatalf("audit trail = %v, want %v", auditor.events, want)
	}
	for i := range want {
		if auditor.events[i] != want[i] {
			t.Fatalf("audit trail = %v, want %v", auditor.events, want)
		}
	}
}

func TestEndClearsPeerPresence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutTodo(callableTodo())

	presence := NewMemoryPresence(time.Hour)
	presence.SetClock(fixedClock(testNow))

	c := NewCoordinator(store, CoordinatorOptions{Presence: presence})
	c.clock = fixedClock(testNow)

	started, err := c.Start(ctx, "todo-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.Poll(ctx, "todo-1", "alice"); err != nil {
		t.Fatalf("alice poll: %v", err)
	}
	if _, err := c.Poll(ctx, "todo-1", "bob"); err != nil {
		t.Fatalf("bob poll: %v", err)
	}

	if _, err := c.End(ctx, "todo-1", "bob", EndRequest{MarkDone: true}); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Markers are dropped immediately even though the TTL is far from expiring.
	for _, user := range []string{"alice", "bob"} {
		online, err := presence.Online(ctx, started.Session.ID, user)
		if err != nil {
			t.Fatalf("online %s: %v", user, err)
		}
		if online {
			t.Fatalf("%s still marked present after end", user)
		}
	}
}
