package call

import (
	"context"
	"encoding/json"
	"time"

	"todocall-platform/internal/todos"

	"github.com/google/uuid"
)

// Auditor records call lifecycle events. Best-effort: the coordinator never
// fails an operation because auditing did.
type Auditor interface {
	CallStarted(ctx context.Context, todoID, sessionID, actorUserID string) error
	CallRevived(ctx context.Context, todoID, sessionID, actorUserID string) error
	CallResolved(ctx context.Context, todoID, actorUserID string, markDone bool) error
	CallReaped(ctx context.Context, todoID, sessionID string) error
}

// Coordinator is the call session state machine. It decides when a call may
// start or be rejoined, relays signaling messages between the two
// participants, and resolves a finished call back onto the todo.
//
// It holds no mutable state of its own; all coordination happens through the
// transactional Store, so any number of replicas can serve the same todo.
type Coordinator struct {
	store    Store
	presence Presence
	audit    Auditor

	// staleAfter > 0 enables the reaper: active sessions with no present
	// participant for this long are force-ended.
	staleAfter time.Duration

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// CoordinatorOptions carries the optional collaborators.
type CoordinatorOptions struct {
	Presence   Presence
	Audit      Auditor
	StaleAfter time.Duration
}

func NewCoordinator(store Store, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		store:      store,
		presence:   opts.Presence,
		audit:      opts.Audit,
		staleAfter: opts.StaleAfter,
		clock:      time.Now,
	}
}

type StartResult struct {
	Session Session `json:"session"`
	Role    Role    `json:"role"`
}

// Start opens or joins the call for a todo.
//
// The timing gate: the call window opens at dueAt minus the todo's meeting
// lead time. Before that instant Start fails with ErrTooEarly and no session
// row is created or touched.
//
// Both participants routinely race Start when their clients detect the due
// time; the store's create-or-reuse upsert makes the race converge on one
// session row, so Start is safe to call repeatedly from either side.
func (c *Coordinator) Start(ctx context.Context, todoID, userID string) (StartResult, error) {
	todo, ok, err := c.store.GetTodo(ctx, todoID)
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		return StartResult{}, ErrTodoNotFound
	}
	if !todo.IsParticipant(userID) {
		return StartResult{}, ErrForbidden
	}
	if todo.SharedWithUserID == nil {
		return StartResult{}, ErrNotShared
	}
	if todo.DueAt == nil || todo.Completed {
		return StartResult{}, ErrNotEligible
	}

	now := c.clock().UTC()
	callStartAt, _ := todo.CallStartAt()
	if now.Before(callStartAt) {
		return StartResult{}, ErrTooEarly
	}

	sess, outcome, err := c.store.StartSession(ctx, uuid.NewString(), todo, now)
	if err != nil {
		return StartResult{}, err
	}

	role := RoleRecipient
	if userID == todo.OwnerID {
		role = RoleInitiator
	}

	if c.audit != nil {
		switch outcome {
		case OutcomeCreated:
			_ = c.audit.CallStarted(ctx, todoID, sess.ID, userID)
		case OutcomeRevived:
			_ = c.audit.CallRevived(ctx, todoID, sess.ID, userID)
		}
	}
	return StartResult{Session: sess, Role: role}, nil
}

// RelaySignal appends one signaling message addressed to the other
// participant. The payload is opaque; the relay imposes no ordering (clients
// order offer/answer before ICE on their side).
func (c *Coordinator) RelaySignal(ctx context.Context, todoID, fromUserID string, payload json.RawMessage) error {
	todo, ok, err := c.store.GetTodo(ctx, todoID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTodoNotFound
	}
	if !todo.IsParticipant(fromUserID) {
		return ErrForbidden
	}
	if todo.SharedWithUserID == nil {
		return ErrNotShared
	}

	sess, ok, err := c.store.GetSessionByTodo(ctx, todoID)
	if err != nil {
		return err
	}
	if !ok || sess.Status != StatusActive {
		return ErrNoActiveSession
	}

	if len(payload) == 0 {
		return ErrPayloadRequired
	}

	toUserID := todo.OwnerID
	if fromUserID == todo.OwnerID {
		toUserID = *todo.SharedWithUserID
	}

	return c.store.AppendSignal(ctx, Signal{
		ID:            uuid.NewString(),
		CallSessionID: sess.ID,
		FromUserID:    fromUserID,
		ToUserID:      toUserID,
		Payload:       payload,
		CreatedAt:     c.clock().UTC(),
	})
}

type PollResult struct {
	Session *Session `json:"session"`
	Signals []Signal `json:"signals"`

	// PeerOnline is advisory presence derived from the peer's recent polls;
	// false when presence tracking is unavailable.
	PeerOnline bool `json:"peerOnline"`
}

// Poll atomically drains the caller's undelivered signals and returns them
// with the current session snapshot. Safe to call repeatedly and
// concurrently: a signal is delivered to its recipient at most once.
//
// A nil session means no call has ever been started for the todo.
func (c *Coordinator) Poll(ctx context.Context, todoID, userID string) (PollResult, error) {
	todo, ok, err := c.store.GetTodo(ctx, todoID)
	if err != nil {
		return PollResult{}, err
	}
	if !ok {
		return PollResult{}, ErrTodoNotFound
	}
	if !todo.IsParticipant(userID) {
		return PollResult{}, ErrForbidden
	}
	if todo.SharedWithUserID == nil {
		return PollResult{}, ErrNotShared
	}

	sess, ok, err := c.store.GetSessionByTodo(ctx, todoID)
	if err != nil {
		return PollResult{}, err
	}
	if !ok {
		return PollResult{Session: nil, Signals: []Signal{}}, nil
	}

	now := c.clock().UTC()
	signals, err := c.store.TakeUndeliveredSignals(ctx, sess.ID, userID, now)
	if err != nil {
		return PollResult{}, err
	}
	if signals == nil {
		signals = []Signal{}
	}

	peerOnline := false
	if c.presence != nil && sess.Status == StatusActive {
		peerID := sess.InitiatorUserID
		if userID == sess.InitiatorUserID {
			peerID = sess.RecipientUserID
		}
		// Best-effort: presence loss must not fail the poll.
		if online, err := c.presence.Heartbeat(ctx, sess.ID, userID, peerID); err == nil {
			peerOnline = online
		}
	}

	return PollResult{Session: &sess, Signals: signals, PeerOnline: peerOnline}, nil
}

type EndRequest struct {
	MarkDone        bool
	RescheduleDueAt *time.Time
}

// End resolves the call. Only the shared user (role B) may invoke it: the
// party the todo was shared with decides whether the work is done or gets a
// new due time.
//
// Session-end and todo mutation commit in one transaction. A reschedule that
// fails validation rolls everything back: the session stays active and the
// todo keeps its old due time.
func (c *Coordinator) End(ctx context.Context, todoID, userID string, req EndRequest) (todos.Todo, error) {
	todo, ok, err := c.store.GetTodo(ctx, todoID)
	if err != nil {
		return todos.Todo{}, err
	}
	if !ok {
		return todos.Todo{}, ErrTodoNotFound
	}
	if todo.SharedWithUserID == nil {
		return todos.Todo{}, ErrNotShared
	}
	if userID != *todo.SharedWithUserID {
		return todos.Todo{}, ErrNotRecipient
	}

	res := EndResolution{MarkDone: req.MarkDone}
	if !req.MarkDone {
		if req.RescheduleDueAt == nil {
			return todos.Todo{}, ErrRescheduleRequired
		}
		res.RescheduleDueAt = req.RescheduleDueAt.UTC()
	}

	// Fetch the session before ending so its presence keys can be dropped.
	sess, hadSession, err := c.store.GetSessionByTodo(ctx, todoID)
	if err != nil {
		return todos.Todo{}, err
	}

	now := c.clock().UTC()
	updated, err := c.store.EndCall(ctx, todoID, res, now)
	if err != nil {
		return todos.Todo{}, err
	}

	if c.presence != nil && hadSession {
		// Best-effort: without this a revival within the TTL would report a
		// stale peerOnline.
		_ = c.presence.Clear(ctx, sess.ID, sess.InitiatorUserID, sess.RecipientUserID)
	}
	if c.audit != nil {
		_ = c.audit.CallResolved(ctx, todoID, userID, req.MarkDone)
	}
	return updated, nil
}
