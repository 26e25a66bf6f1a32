//go:build !linux

package transport

import (
	"context"

	"btlink/internal/errors"
)

// DefaultRFCOMMChannel is used when RFCOMMDialer.Channel is zero.
const DefaultRFCOMMChannel = 1

// RFCOMMDialer is only implemented on Linux.
type RFCOMMDialer struct {
	Channel uint8
}

// Dial always fails with errors.ErrNotSupported.
func (d *RFCOMMDialer) Dial(context.Context, Request) (Transport, error) {
	return nil, errors.ErrNotSupported
}
