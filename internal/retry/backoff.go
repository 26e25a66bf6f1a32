// Package retry provides exponential backoff and a failure breaker
// for operations against flaky radios and peers.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retrying will not help.
// Return [Permanent](err) from the operation function to stop retrying
// immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.  Do returns the inner error
// at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff polls for a local state change, such as an adapter coming up
// after it was told to power on.  Delays grow geometrically from
// Initial to Max; the total time spent waiting is bounded by Budget.
// There is no jitter: the other side is one local daemon, not a fleet.
type Backoff struct {
	Initial    time.Duration // default 100ms
	Max        time.Duration // default 1s
	Multiplier float64       // default 2
	// Budget caps the summed waits.  Zero waits until ctx is done.
	Budget time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// PowerOnBackoff suits waiting for a radio to report itself powered.
// BlueZ usually flips Powered within a few hundred milliseconds; five
// seconds without it means something else holds the radio down.
func PowerOnBackoff() *Backoff {
	return &Backoff{
		Initial:    100 * time.Millisecond,
		Max:        800 * time.Millisecond,
		Multiplier: 2,
		Budget:     5 * time.Second,
	}
}

// ExhaustedError is returned when the budget ran out.  It unwraps to
// the last error fn returned.
type ExhaustedError struct {
	Attempts int
	Waited   time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s) over %v: %v", e.Attempts, e.Waited, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it returns nil or a [Permanent] error, the budget
// is spent, or ctx is done.  attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.initial()
	var waited time.Duration

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if b.Budget > 0 && waited+delay > b.Budget {
			return &ExhaustedError{Attempts: attempt, Waited: waited, Err: err}
		}
		if werr := b.wait(ctx, delay); werr != nil {
			return fmt.Errorf("stopped waiting after %d attempt(s): %w", attempt, werr)
		}
		waited += delay
		delay = b.next(delay)
	}
}

func (b *Backoff) initial() time.Duration {
	if b.Initial <= 0 {
		return 100 * time.Millisecond
	}
	return b.Initial
}

func (b *Backoff) next(d time.Duration) time.Duration {
	m := b.Multiplier
	if m <= 1 {
		m = 2
	}
	ceil := b.Max
	if ceil <= 0 {
		ceil = time.Second
	}
	d = time.Duration(float64(d) * m)
	if d > ceil {
		d = ceil
	}
	return d
}

func (b *Backoff) wait(ctx context.Context, d time.Duration) error {
	if b.sleep != nil {
		return b.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
