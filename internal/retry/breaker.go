package retry

import (
	"fmt"
	"sync"
	"time"
)

// ── Breaker state ────────────────────────────────────────────────────

// State represents the breaker's operational state.
type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota
	// StateOpen rejects attempts until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets one trial attempt through after the cooldown.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned by [Breaker.Allow] while the breaker is open.
type OpenError struct {
	Failures int
	RetryIn  time.Duration
}

func (e *OpenError) Error() string {
	// Rounded up so the wait never reads as 0s.
	wait := e.RetryIn.Round(time.Second)
	if wait < e.RetryIn {
		wait += time.Second
	}
	return fmt.Sprintf("%d consecutive failures, retry in %v", e.Failures, wait)
}

// ── Breaker ──────────────────────────────────────────────────────────

// Breaker stops repeated attempts against something that keeps
// failing.  After MaxFailures consecutive failures it opens for
// Cooldown; the first attempt after that is a trial whose outcome
// closes or re-opens it.
type Breaker struct {
	MaxFailures int           // default 3
	Cooldown    time.Duration // default 10s

	// OnStateChange runs under the lock; keep it fast.
	OnStateChange func(from, to State)

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// Allow reports whether an attempt may proceed.  A nil *Breaker
// always allows.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	elapsed := b.clock().Sub(b.lastFailure)
	if elapsed >= b.cooldown() {
		b.transition(StateHalfOpen)
		return nil
	}
	return &OpenError{Failures: b.failures, RetryIn: b.cooldown() - elapsed}
}

// Record feeds the outcome of an allowed attempt back in.
func (b *Breaker) Record(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.transition(StateClosed)
		return
	}
	b.failures++
	b.lastFailure = b.clock()
	if b.state == StateHalfOpen || b.failures >= b.maxFailures() {
		b.transition(StateOpen)
	}
}

// Do runs fn if the breaker allows it and records the result.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (b *Breaker) maxFailures() int {
	if b.MaxFailures <= 0 {
		return 3
	}
	return b.MaxFailures
}

func (b *Breaker) cooldown() time.Duration {
	if b.Cooldown <= 0 {
		return 10 * time.Second
	}
	return b.Cooldown
}

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
