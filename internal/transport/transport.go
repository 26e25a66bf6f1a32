// Package transport provides the stream abstraction a session runs on.
// Transports handle the "how" of moving bytes (an RFCOMM socket, a
// BlueZ-managed profile connection, a TCP bridge) independent of how
// the remote device was discovered.
package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"btlink/internal/errors"
)

// Transport is one open, bidirectional byte stream to a remote device.
// It owns exactly one socket resource.  Read and Write may be called
// concurrently with each other; Close may be called concurrently with
// both and releases a blocked Read.
type Transport interface {
	// Read reads up to len(p) bytes.  It returns io.EOF when the peer
	// closes gracefully and an error matching errors.ErrIO otherwise.
	Read(p []byte) (int, error)

	// Write writes all of p or returns an error matching errors.ErrIO.
	Write(p []byte) error

	// Close releases the socket.  It is idempotent.
	Close() error

	// RemoteAddr returns the address of the remote device.
	RemoteAddr() string
}

// Request describes one outbound connection attempt.
type Request struct {
	Address string
	Service uuid.UUID
	Timeout TimeoutPolicy
}

// Dialer opens transports.  Implementations return either a live
// Transport or an error, never both: a socket opened during a failed
// attempt is closed before Dial returns.
type Dialer interface {
	Dial(ctx context.Context, req Request) (Transport, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context, req Request) (Transport, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context, req Request) (Transport, error) { return f(ctx, req) }

// TimeoutPolicy bounds a connection attempt.  The zero value leaves the
// platform default in place.
type TimeoutPolicy struct {
	Connect time.Duration
}

// apply derives the dial context for the policy.
func (p TimeoutPolicy) apply(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Connect > 0 {
		return context.WithTimeout(ctx, p.Connect)
	}
	return context.WithCancel(ctx)
}

// ScanStopper cancels an in-flight discovery.
type ScanStopper interface {
	StopScan()
}

// Connect opens a transport for req.  Discovery slows the radio down,
// so any running scan is stopped before dialing.  Every failure is
// reported as a TransportError matching errors.ErrConnectFailed.
func Connect(ctx context.Context, d Dialer, scan ScanStopper, req Request) (Transport, error) {
	if scan != nil {
		scan.StopScan()
	}

	ctx, cancel := req.Timeout.apply(ctx)
	defer cancel()

	t, err := d.Dial(ctx, req)
	if err != nil {
		if errors.Is(err, errors.ErrConnectFailed) {
			return nil, err
		}
		return nil, errors.Wrap("connect", req.Address, err)
	}
	return t, nil
}
