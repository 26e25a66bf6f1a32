//go:build linux

package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"btlink/internal/errors"
	"btlink/util"
)

// DefaultRFCOMMChannel is used when RFCOMMDialer.Channel is zero.
const DefaultRFCOMMChannel = 1

// RFCOMMDialer opens a raw RFCOMM socket to a fixed channel.  Unlike
// the BlueZ profile dialer it does no SDP lookup, so the peer must
// listen on a known channel.
type RFCOMMDialer struct {
	Channel uint8
}

// Dial connects to req.Address on the configured channel.  The socket
// is non-blocking and registered with the runtime poller, so both the
// connect wait and later reads are released by ctx or Close.
func (d *RFCOMMDialer) Dial(ctx context.Context, req Request) (Transport, error) {
	mac, err := util.ParseMAC(req.Address)
	if err != nil {
		return nil, err
	}
	channel := d.Channel
	if channel == 0 {
		channel = DefaultRFCOMMChannel
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, socketError("socket", err)
	}

	sa := &unix.SockaddrRFCOMM{Addr: bdaddr(mac), Channel: channel}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd) //nolint:errcheck
		return nil, socketError("connect", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("rfcomm:%s/%d", req.Address, channel))
	if err == unix.EINPROGRESS {
		if err := waitConnected(ctx, f); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
	}
	return NewStream(f, req.Address), nil
}

// bdaddr converts a MAC in written order to the kernel's little-endian
// bdaddr_t layout.
func bdaddr(mac [6]byte) [6]uint8 {
	var out [6]uint8
	for i := range mac {
		out[i] = mac[5-i]
	}
	return out
}

// waitConnected blocks until a non-blocking connect finishes, ctx is
// done, or its deadline passes.
func waitConnected(ctx context.Context, f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		f.SetWriteDeadline(dl) //nolint:errcheck
	}
	stop := context.AfterFunc(ctx, func() {
		f.SetWriteDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	var connErr error
	waited := false
	werr := rc.Write(func(fd uintptr) bool {
		if !waited {
			waited = true
			return false
		}
		v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			connErr = socketError("getsockopt", err)
			return true
		}
		switch e := unix.Errno(v); e {
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return false
		case 0:
			_, err := unix.Getpeername(int(fd))
			return err == nil
		default:
			connErr = socketError("connect", e)
			return true
		}
	})
	if werr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return werr
	}
	f.SetWriteDeadline(time.Time{}) //nolint:errcheck
	return connErr
}

// socketError maps adapter-level errnos onto the error taxonomy.
func socketError(op string, err error) error {
	switch err {
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.ENODEV:
		return fmt.Errorf("%s: %w: %v", op, errors.ErrAdapterUnavailable, err)
	case unix.ENETDOWN:
		return fmt.Errorf("%s: %w: %v", op, errors.ErrAdapterDisabled, err)
	}
	return os.NewSyscallError(op, err)
}
