// Package circuit provides a failure-isolation breaker for calls to external
// dependencies.
//
// The breaker is advisory: it never invokes the guarded operation. Callers ask
// CanRequest before calling and report the outcome with RecordSuccess or
// RecordFailure exactly once per attempt.
//
//	if !b.CanRequest() {
//		return fallback, ErrOpen
//	}
//	url, err := fetch(ctx)
//	if err != nil {
//		b.RecordFailure()
//		return fallback, err
//	}
//	b.RecordSuccess()
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by callers that short-circuit on an open breaker.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChange describes a transition caused by a single call.
// From == To when the call did not change state.
type StateChange struct {
	From   State
	To     State
	Opened bool
	Closed bool
}

func (c StateChange) changed() bool {
	return c.From != c.To
}

// Observer is notified after every state transition, outside the breaker lock.
type Observer func(name string, change StateChange)

const (
	defaultFailureThreshold = 3
	defaultTimeout          = 30 * time.Second
)

// Breaker is a CLOSED / OPEN / HALF_OPEN state machine guarded by a mutex.
type Breaker struct {
	name      string
	threshold int
	timeout   time.Duration
	now       func() time.Time
	observer  Observer

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeSince  time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithTimeout sets how long the circuit stays open after the last failure.
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithStateObserver registers a transition callback (metrics, logs).
func WithStateObserver(o Observer) Option {
	return func(b *Breaker) {
		b.observer = o
	}
}

// New creates a closed breaker. One breaker per guarded dependency.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultFailureThreshold,
		timeout:   defaultTimeout,
		now:       time.Now,
		state:     StateClosed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the guarded dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// CanRequest reports whether the caller may attempt the guarded call.
//
// In OPEN, once the timeout has elapsed since the last failure the breaker moves
// to HALF_OPEN and grants exactly one probe in the same locked section. In
// HALF_OPEN further requests are refused while the probe is outstanding; a probe
// that is never reported is replaced after another timeout.
func (b *Breaker) CanRequest() bool {
	b.mu.Lock()
	now := b.now()
	var change StateChange
	allowed := false

	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if now.Sub(b.lastFailure) >= b.timeout {
			change = b.transition(StateHalfOpen)
			b.probeSince = now
			allowed = true
		}
	case StateHalfOpen:
		if now.Sub(b.probeSince) >= b.timeout {
			b.probeSince = now
			allowed = true
		}
	}
	b.mu.Unlock()

	b.notify(change)
	return allowed
}

// RecordSuccess resets the failure counter and closes a half-open circuit.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	change := StateChange{From: b.state, To: b.state}
	switch b.state {
	case StateHalfOpen:
		b.failures = 0
		b.lastFailure = time.Time{}
		change = b.transition(StateClosed)
	case StateClosed:
		b.failures = 0
	case StateOpen:
		// A late success from a call granted before the circuit opened
		// does not prove recovery.
	}
	b.mu.Unlock()

	b.notify(change)
	return change
}

// RecordFailure counts a failed attempt and opens the circuit when the threshold
// is reached. Failures while open or half-open (re)open it and refresh the
// failure timestamp.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	now := b.now()
	change := StateChange{From: b.state, To: b.state}
	b.failures++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			change = b.transition(StateOpen)
		}
	case StateHalfOpen:
		change = b.transition(StateOpen)
	case StateOpen:
	}
	b.mu.Unlock()

	b.notify(change)
	return change
}

// Reset manually closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.lastFailure = time.Time{}
	change := b.transition(StateClosed)
	b.mu.Unlock()

	b.notify(change)
}

// Failures returns the current failure counter.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) StateChange {
	from := b.state
	b.state = to
	return StateChange{
		From:   from,
		To:     to,
		Opened: from != StateOpen && to == StateOpen,
		Closed: from != StateClosed && to == StateClosed,
	}
}

func (b *Breaker) notify(change StateChange) {
	if b.observer == nil || !change.changed() {
		return
	}
	b.observer(b.name, change)
}
