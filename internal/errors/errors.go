// Package errors provides domain-specific error types for btlink.
//
// The sentinels form the session taxonomy (adapter, connect, I/O,
// misuse).  Structured types carry the operation and device address so
// callers can both match with errors.Is and print useful diagnostics.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrAdapterUnavailable means there is no radio hardware or driver.
	// It is fatal to the whole session feature.
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	// ErrAdapterDisabled means the adapter exists but is powered off.
	// The user should be prompted to enable it, then retry.
	ErrAdapterDisabled = errors.New("bluetooth adapter disabled")
	// ErrConnectFailed wraps every failed connection attempt.
	ErrConnectFailed = errors.New("connect failed")
	// ErrIO wraps read and write failures on an open transport.
	ErrIO = errors.New("i/o error")
	// ErrNotConnected rejects a write when no session is connected.
	ErrNotConnected = errors.New("not connected")
	// ErrTransportClosed is returned by reads and writes after Close.
	ErrTransportClosed = errors.New("transport closed")
	// ErrShutdown is returned once the supervisor has shut down.
	ErrShutdown = errors.New("session supervisor shut down")
	// ErrNotSupported marks a backend unavailable on this platform.
	ErrNotSupported = errors.New("not supported on this platform")
)

// ── Structured error types ───────────────────────────────────────────

// TransportError represents a failure of a transport operation.
type TransportError struct {
	Op   string // "connect", "read", "write"
	Addr string // remote device address
	Err  error  // underlying error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is maps the operation onto the taxonomy so that a connect failure
// matches ErrConnectFailed and read/write failures match ErrIO.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrConnectFailed:
		return e.Op == "connect"
	case ErrIO:
		return e.Op == "read" || e.Op == "write"
	}
	return false
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a TransportError.  A nil err yields nil so call sites
// can wrap unconditionally.
func Wrap(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsAdapterError reports whether err concerns the local adapter rather
// than a particular remote device.
func IsAdapterError(err error) bool {
	return errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, ErrAdapterDisabled)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use btlink/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
