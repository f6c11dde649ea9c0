// Package auth tracks the authentication progression of the backend session.
//
// The session state is derived exclusively from backend pushes: submitting a
// phone number, code, or second factor never advances the local state on its
// own, it only forwards the credential and surfaces a rejection as an event.
// The backend confirms (or redirects) each step with an authStateChanged
// update, which the owner feeds in via [Session.Apply].
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/transport"
)

// State is the local view of the authentication progression.
type State string

const (
	// StateUninitialized is the state before the backend has reported
	// anything.
	StateUninitialized State = "uninitialized"

	// StateAwaitingPhoneNumber means the backend expects a phone number.
	StateAwaitingPhoneNumber State = "awaitingPhoneNumber"

	// StateAwaitingCode means the backend expects the confirmation code it
	// delivered out of band.
	StateAwaitingCode State = "awaitingCode"

	// StateAwaitingSecondFactor means the account has a cloud password and
	// the backend expects it.
	StateAwaitingSecondFactor State = "awaitingSecondFactor"

	// StateReady means the session is fully authenticated. All messaging
	// operations are gated on this state.
	StateReady State = "ready"

	// StateClosed means the backend tore the session down. It is terminal
	// until a new connection is established.
	StateClosed State = "closed"
)

// Event reports a session change to the UI layer. Err is set when a
// credential submission was rejected; in that case State is unchanged and the
// same step should be retried with a corrected value.
type Event struct {
	State State

	// Hint is the account's password hint, set while State is
	// [StateAwaitingSecondFactor].
	Hint string

	// Err is the submission rejection, if any.
	Err error
}

// Option configures a [Session].
type Option func(*Session)

// WithOnClosed registers a hook invoked once when the session transitions to
// [StateClosed]. Owners use it to drop credential-derived caches.
func WithOnClosed(fn func(reason string)) Option {
	return func(s *Session) { s.onClosed = fn }
}

// WithEventBuffer sets the capacity of the event channel. The default is 16.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.events = make(chan Event, n) }
}

// Session is the authentication state machine. It is safe for concurrent use.
type Session struct {
	client   transport.Client
	metrics  *observe.Metrics
	onClosed func(reason string)
	events   chan Event

	mu    sync.Mutex
	state State
	hint  string
}

// NewSession creates a session in [StateUninitialized] over client.
func NewSession(client transport.Client, opts ...Option) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("auth: client must not be nil")
	}
	s := &Session{
		client: client,
		state:  StateUninitialized,
		events: make(chan Event, 16),
	}
	for _, o := range opts {
		o(s)
	}
	s.metrics = observe.DefaultMetrics()
	return s, nil
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether messaging operations are permitted.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Hint returns the account's password hint, if the backend provided one.
func (s *Session) Hint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hint
}

// Events returns the stream of session changes. Events are dropped when the
// consumer falls behind the channel capacity; [Session.State] always reflects
// the latest state.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Apply ingests a backend authentication update and transitions the session.
func (s *Session) Apply(ctx context.Context, u transport.AuthStateChanged) {
	next, ok := fromTransport(u.State)
	if !ok {
		slog.Warn("auth: ignoring unknown backend state", "state", u.State)
		return
	}

	s.mu.Lock()
	prev := s.state
	s.state = next
	s.hint = u.Hint
	s.mu.Unlock()

	if prev != next {
		s.metrics.RecordAuthTransition(ctx, string(next))
		slog.Info("auth: state changed", "from", prev, "to", next)
	}
	if next == StateClosed && prev != StateClosed && s.onClosed != nil {
		s.onClosed("")
	}
	s.emit(Event{State: next, Hint: u.Hint})
}

// ApplyClosed ingests a backend session teardown.
func (s *Session) ApplyClosed(ctx context.Context, u transport.SessionClosed) {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	s.hint = ""
	s.mu.Unlock()

	if prev != StateClosed {
		s.metrics.RecordAuthTransition(ctx, string(StateClosed))
		slog.Warn("auth: session closed by backend", "reason", u.Reason)
		if s.onClosed != nil {
			s.onClosed(u.Reason)
		}
	}
	s.emit(Event{State: StateClosed})
}

// SubmitPhoneNumber forwards the phone number to the backend. A rejection is
// surfaced as an event; the state does not change either way until the
// backend pushes an update.
func (s *Session) SubmitPhoneNumber(ctx context.Context, number string) {
	s.submit(ctx, "phone number", func() error {
		return s.client.SubmitPhoneNumber(ctx, number)
	})
}

// SubmitCode forwards the confirmation code to the backend.
func (s *Session) SubmitCode(ctx context.Context, code string) {
	s.submit(ctx, "code", func() error {
		return s.client.SubmitCode(ctx, code)
	})
}

// SubmitSecondFactor forwards the cloud password to the backend.
func (s *Session) SubmitSecondFactor(ctx context.Context, password string) {
	s.submit(ctx, "second factor", func() error {
		return s.client.SubmitSecondFactor(ctx, password)
	})
}

// LogOut asks the backend to tear down the authenticated session. The state
// change arrives as a backend update.
func (s *Session) LogOut(ctx context.Context) error {
	return s.client.LogOut(ctx)
}

func (s *Session) submit(_ context.Context, step string, do func() error) {
	if err := do(); err != nil {
		slog.Warn("auth: submission rejected", "step", step, "err", err)
		s.mu.Lock()
		state, hint := s.state, s.hint
		s.mu.Unlock()
		s.emit(Event{State: state, Hint: hint, Err: fmt.Errorf("auth: submit %s: %w", step, err)})
	}
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("auth: dropping event, consumer too slow", "state", e.State)
	}
}

func fromTransport(st transport.AuthState) (State, bool) {
	switch st {
	case transport.AuthWaitPhoneNumber:
		return StateAwaitingPhoneNumber, true
	case transport.AuthWaitCode:
		return StateAwaitingCode, true
	case transport.AuthWaitPassword:
		return StateAwaitingSecondFactor, true
	case transport.AuthReady:
		return StateReady, true
	case transport.AuthClosed:
		return StateClosed, true
	default:
		return "", false
	}
}
