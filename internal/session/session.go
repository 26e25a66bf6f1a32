// Package session implements the lifecycle of one connection to one
// remote device: Idle -> Connecting -> Connected -> Closed | Failed.
//
// A session never mutates its owner.  The connect task and the read
// task report through Event values on a channel; the owner applies
// the transitions.  Every session carries a generation number taken
// from an epoch counter shared with its owner, and the read and write
// paths refuse to touch the transport once the epoch has moved on.
package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/metrics"
	"btlink/internal/transport"
	"btlink/util"
)

// Config carries the collaborators shared by every session of one owner.
type Config struct {
	Dialer  transport.Dialer
	Scan    transport.ScanStopper // stopped before each dial; may be nil
	Service uuid.UUID
	Timeout transport.TimeoutPolicy

	// Epoch is the owner's generation counter.  New advances it; the
	// owner advances it again whenever no session should be current.
	Epoch *atomic.Uint64
	// Events receives the connect and read results.
	Events chan<- Event
	// Stop is closed when the owner no longer drains Events.
	Stop <-chan struct{}

	// OnData receives bytes read while the session is current.  p is
	// only valid during the call.
	OnData func(addr string, p []byte)

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Session owns at most one transport for one target device.
type Session struct {
	cfg    *Config
	target device.Record
	gen    uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	tr    transport.Transport

	connectDone chan struct{}
	readDone    chan struct{}
}

// New creates an Idle session for target and makes it the newest
// generation.
func New(cfg *Config, target device.Record) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		target: target,
		gen:    cfg.Epoch.Add(1),
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
	}
}

// ── Accessors ────────────────────────────────────────────────────────

// Target returns the device this session connects to.
func (s *Session) Target() device.Record { return s.target }

// Gen returns the session's generation number.
func (s *Session) Gen() uint64 { return s.gen }

// Current reports whether no newer generation has superseded s.
func (s *Session) Current() bool { return s.cfg.Epoch.Load() == s.gen }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ── Connect task ─────────────────────────────────────────────────────

// Start moves an Idle session to Connecting and launches the connect
// task.  It never blocks on the dial.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	s.connectDone = make(chan struct{})
	s.mu.Unlock()

	s.cfg.Metrics.SessionStarted()
	go s.connect()
}

func (s *Session) connect() {
	defer close(s.connectDone)

	req := transport.Request{
		Address: s.target.Address,
		Service: s.cfg.Service,
		Timeout: s.cfg.Timeout,
	}
	tr, err := transport.Connect(s.ctx, s.cfg.Dialer, s.cfg.Scan, req)
	if err == nil && !s.attach(tr) {
		s.cfg.Logger.Debug("discarding transport to %s: session cancelled", s.target.Address)
		if cerr := tr.Close(); cerr != nil {
			s.cfg.Logger.Debug("close %s: %v", s.target.Address, cerr)
		}
		return
	}
	s.post(Event{Session: s, Kind: ConnectResult, Err: err})
}

// attach installs tr if the session is still waiting for it.
func (s *Session) attach(tr transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return false
	}
	s.tr = tr
	s.cfg.Metrics.TransportOpened()
	return true
}

// post delivers ev unless the session was cancelled or the owner has
// stopped listening.
func (s *Session) post(ev Event) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.cfg.Events <- ev:
	case <-s.ctx.Done():
	case <-s.cfg.Stop:
	}
}

// ── Transitions applied by the owner ─────────────────────────────────

// Establish moves Connecting to Connected and starts the read task.
// It reports false when the session already left Connecting.
func (s *Session) Establish() bool {
	s.mu.Lock()
	if s.state != Connecting || s.tr == nil {
		s.mu.Unlock()
		return false
	}
	s.state = Connected
	tr := s.tr
	s.readDone = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop(tr)
	return true
}

// Fail moves a Connecting session to Failed and releases anything it
// holds.
func (s *Session) Fail() {
	s.mu.Lock()
	if s.state == Connecting {
		s.state = Failed
	}
	s.mu.Unlock()
	s.cancel()
	s.release()
}

// Finish applies the end of the read loop: Closed for a graceful end
// of stream (cause nil), Failed otherwise.  It returns the new state.
func (s *Session) Finish(cause error) State {
	s.mu.Lock()
	if s.state == Connected {
		if cause == nil {
			s.state = Closed
		} else {
			s.state = Failed
		}
	}
	st := s.state
	s.mu.Unlock()
	s.cancel()
	s.release()
	return st
}

// Cancel closes the session from any state.  It releases the
// transport, which unblocks a pending read, and waits for the connect
// task so that no transport can appear after Cancel returns.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state == Idle || s.state.Live() {
		s.state = Closed
	}
	connectDone := s.connectDone
	s.mu.Unlock()

	s.cancel()
	s.release()
	if connectDone != nil {
		<-connectDone
	}
}

// Wait blocks until the read task, if any, has exited.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.readDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// release closes the transport exactly once.  Close errors are logged
// and otherwise ignored.
func (s *Session) release() {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	s.mu.Unlock()

	if tr == nil {
		return
	}
	if err := tr.Close(); err != nil {
		s.cfg.Logger.Debug("close %s: %v", s.target.Address, err)
	}
	s.cfg.Metrics.TransportClosed()
	s.cfg.Logger.Verbose("released transport to %s", s.target.Address)
}

// ── Data path ────────────────────────────────────────────────────────

func (s *Session) readLoop(tr transport.Transport) {
	defer close(s.readDone)

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	for {
		n, err := tr.Read(buf)
		if n > 0 && s.Current() {
			s.cfg.Metrics.BytesReceived(int64(n))
			if s.cfg.OnData != nil {
				s.cfg.OnData(s.target.Address, buf[:n])
			}
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			s.post(Event{Session: s, Kind: ReadEnded, Err: err})
			return
		}
	}
}

// Write sends all of p on the transport.  It fails with
// ErrNotConnected, touching nothing, unless the session is Connected
// and still current.  A failed write releases the transport, which
// ends the read loop and with it the session.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	st, tr := s.state, s.tr
	s.mu.Unlock()

	if st != Connected || tr == nil || !s.Current() {
		s.cfg.Metrics.WriteRejected()
		return errors.ErrNotConnected
	}
	if err := tr.Write(p); err != nil {
		s.cfg.Metrics.RecordError(err.Error())
		s.release()
		return err
	}
	s.cfg.Metrics.BytesSent(int64(len(p)))
	return nil
}
