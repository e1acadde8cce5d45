// Package agent is the client-side call driver: it joins the call through
// the coordinator API, polls the signal relay, and walks the local
// negotiation state machine. The actual media/ICE stack is behind the
// PeerConnection interface; this package only sequences it.
package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"todocall-platform/internal/call"
)

// State is the local negotiation state, richer than the server's two-state
// session model because the client tracks media and connectivity progress.
type State string

const (
	StateIdle           State = "idle"
	StateAcquiringMedia State = "acquiring-media"
	StateNegotiating    State = "negotiating"
	StateConnected      State = "connected"
	StateEnded          State = "ended"
	StateFailed         State = "failed"
)

// CallAPI is the coordinator surface the agent drives. Implementations bind
// the authenticated user and transport (HTTP in production, the coordinator
// directly in tests).
type CallAPI interface {
	Start(ctx context.Context, todoID string) (call.StartResult, error)
	Poll(ctx context.Context, todoID string) (call.PollResult, error)
	Signal(ctx context.Context, todoID string, payload json.RawMessage) error
	End(ctx context.Context, todoID string, req call.EndRequest) error
}

// PeerConnection abstracts the real-time media stack. Payloads are the same
// opaque JSON the relay carries.
type PeerConnection interface {
	AcquireMedia(ctx context.Context) error
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(ctx context.Context, desc json.RawMessage) error
	AddICECandidate(ctx context.Context, candidate json.RawMessage) error
	Close() error
}

// signal type discriminator; the rest of the payload stays opaque.
type signalEnvelope struct {
	Type string `json:"type"`
}

const DefaultPollInterval = 1500 * time.Millisecond

// Agent drives one call for one todo from one participant's side.
// Join first, then Run (or PollOnce from your own loop).
type Agent struct {
	api    CallAPI
	pc     PeerConnection
	todoID string

	interval time.Duration

	mu         sync.Mutex
	state      State
	role       call.Role
	remoteSet  bool
	pendingICE []json.RawMessage
	peerOnline bool
}

type Options struct {
	// PollInterval defaults to DefaultPollInterval when zero.
	PollInterval time.Duration
}

func New(api CallAPI, pc PeerConnection, todoID string, opts Options) *Agent {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Agent{
		api:      api,
		pc:       pc,
		todoID:   todoID,
		interval: interval,
		state:    StateIdle,
	}
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Role() call.Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

// PeerOnline reports the advisory presence from the last poll.
func (a *Agent) PeerOnline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peerOnline
}

// Join starts (or rejoins) the call, acquires local media, and, when this
// side is the initiator, sends the offer. Leaves the agent negotiating.
func (a *Agent) Join(ctx context.Context) error {
	res, err := a.api.Start(ctx, a.todoID)
	if err != nil {
		return err
	}

	a.setState(StateAcquiringMedia)
	a.mu.Lock()
	a.role = res.Role
	a.mu.Unlock()

	if err := a.pc.AcquireMedia(ctx); err != nil {
		a.fail()
		return err
	}

	if res.Role == call.RoleInitiator {
		offer, err := a.pc.CreateOffer(ctx)
		if err != nil {
			a.fail()
			return err
		}
		if err := a.api.Signal(ctx, a.todoID, offer); err != nil {
			a.fail()
			return err
		}
	}

	a.setState(StateNegotiating)
	return nil
}

// PollOnce fetches one batch of signals and applies them. Descriptions
// (offer/answer) are applied before ICE candidates from the same batch, and
// candidates that arrive before any remote description are held back until
// one is set.
func (a *Agent) PollOnce(ctx context.Context) error {
	res, err := a.api.Poll(ctx, a.todoID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.peerOnline = res.PeerOnline
	a.mu.Unlock()

	if err := a.applySignals(ctx, res.Signals); err != nil {
		a.fail()
		return err
	}

	if res.Session != nil && res.Session.Status == call.StatusEnded {
		a.shutdown()
	}
	return nil
}

// Run polls until the context is canceled or the session ends. Poll errors
// are transient (the next tick retries), so they do not stop the loop.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.PollOnce(ctx)
			if s := a.State(); s == StateEnded || s == StateFailed {
				return
			}
		}
	}
}

// Resolve ends the call server-side. Only the shared user's agent can do
// this; the coordinator enforces it.
func (a *Agent) Resolve(ctx context.Context, req call.EndRequest) error {
	if err := a.api.End(ctx, a.todoID, req); err != nil {
		return err
	}
	a.shutdown()
	return nil
}

func (a *Agent) applySignals(ctx context.Context, signals []call.Signal) error {
	// Two passes: descriptions first, then candidates. A candidate is
	// meaningless until a remote description exists.
	for _, sig := range signals {
		var env signalEnvelope
		if err := json.Unmarshal(sig.Payload, &env); err != nil {
			continue // unparseable control traffic is dropped, not fatal
		}
		switch env.Type {
		case "offer":
			if err := a.applyRemoteDescription(ctx, sig.Payload); err != nil {
				return err
			}
			answer, err := a.pc.CreateAnswer(ctx)
			if err != nil {
				return err
			}
			if err := a.api.Signal(ctx, a.todoID, answer); err != nil {
				return err
			}
			a.setState(StateConnected)
		case "answer":
			if err := a.applyRemoteDescription(ctx, sig.Payload); err != nil {
				return err
			}
			a.setState(StateConnected)
		}
	}

	for _, sig := range signals {
		var env signalEnvelope
		if err := json.Unmarshal(sig.Payload, &env); err != nil {
			continue
		}
		if env.Type != "ice" {
			continue
		}
		if err := a.addICECandidate(ctx, sig.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) applyRemoteDescription(ctx context.Context, desc json.RawMessage) error {
	if err := a.pc.SetRemoteDescription(ctx, desc); err != nil {
		return err
	}

	a.mu.Lock()
	a.remoteSet = true
	queued := a.pendingICE
	a.pendingICE = nil
	a.mu.Unlock()

	for _, cand := range queued {
		if err := a.pc.AddICECandidate(ctx, cand); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) addICECandidate(ctx context.Context, candidate json.RawMessage) error {
	a.mu.Lock()
	if !a.remoteSet {
		// Out-of-order arrival: hold the candidate until the description lands.
		a.pendingICE = append(a.pendingICE, candidate)
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()
	return a.pc.AddICECandidate(ctx, candidate)
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) fail() {
	a.setState(StateFailed)
	_ = a.pc.Close()
}

func (a *Agent) shutdown() {
	a.mu.Lock()
	already := a.state == StateEnded
	a.state = StateEnded
	a.mu.Unlock()
	if !already {
		_ = a.pc.Close()
	}
}
