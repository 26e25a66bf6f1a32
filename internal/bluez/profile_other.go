//go:build !linux

package bluez

import (
	"context"

	"btlink/internal/errors"
	"btlink/internal/transport"
)

// ProfileDialer is only available on Linux.
type ProfileDialer struct{}

// NewProfileDialer returns a dialer that always fails.
func NewProfileDialer(*Client) *ProfileDialer { return &ProfileDialer{} }

// Dial returns ErrNotSupported.
func (d *ProfileDialer) Dial(_ context.Context, req transport.Request) (transport.Transport, error) {
	return nil, errors.Wrap("connect", req.Address, errors.ErrNotSupported)
}

// Close is a no-op.
func (d *ProfileDialer) Close() error { return nil }
