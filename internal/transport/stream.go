package transport

import (
	"io"
	"sync"
	"sync/atomic"

	"btlink/internal/errors"
	"btlink/util"
)

// stream adapts an io.ReadWriteCloser (a socket file or net.Conn) to
// the Transport contract.  The underlying descriptor must be pollable
// so that Close releases a blocked Read.
type stream struct {
	rwc    io.ReadWriteCloser
	addr   string
	closed atomic.Bool
	once   sync.Once
}

// NewStream wraps rwc as a Transport connected to addr.
func NewStream(rwc io.ReadWriteCloser, addr string) Transport {
	return &stream{rwc: rwc, addr: addr}
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.rwc.Read(p)
	switch {
	case err == nil:
		return n, nil
	case s.closed.Load() || util.IsClosed(err):
		return n, errors.Wrap("read", s.addr, errors.ErrTransportClosed)
	case err == io.EOF:
		return n, io.EOF
	default:
		return n, errors.Wrap("read", s.addr, err)
	}
}

func (s *stream) Write(p []byte) error {
	if s.closed.Load() {
		return errors.Wrap("write", s.addr, errors.ErrTransportClosed)
	}
	if err := util.WriteFull(s.rwc, p); err != nil {
		if s.closed.Load() || util.IsClosed(err) {
			return errors.Wrap("write", s.addr, errors.ErrTransportClosed)
		}
		return errors.Wrap("write", s.addr, err)
	}
	return nil
}

// Close reports the error of the first call only; later calls are
// no-ops returning nil.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.rwc.Close()
	})
	return err
}

func (s *stream) RemoteAddr() string { return s.addr }
