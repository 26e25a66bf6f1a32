package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer reaches a peer through a TCP bridge instead of the radio,
// for example an RFCOMM-to-TCP relay or an emulator.  The request
// address is used as host:port; the service identifier is not sent.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to req.Address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, req Request) (Transport, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", req.Address)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, req.Address), nil
}
