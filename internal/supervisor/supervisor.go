// Package supervisor enforces the single-session rule.  It owns the
// current session, switches targets, routes writes, and applies the
// results that session tasks post back to it.
package supervisor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/metrics"
	"btlink/internal/notify"
	"btlink/internal/session"
	"btlink/internal/transport"
	"btlink/util"
)

// Default payloads written after connecting and when the connected
// device is selected again.
const (
	DefaultGreeting = "Hello, world!"
	DefaultResend   = "Hello, world (subsequent)"
)

// State is the supervisor-level view of the current session.
type State int

const (
	NoSession State = iota
	Connecting
	Connected
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no session"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func fromSession(st session.State) State {
	switch st {
	case session.Connecting:
		return Connecting
	case session.Connected:
		return Connected
	case session.Failed:
		return Failed
	case session.Closed:
		return Closed
	default:
		return NoSession
	}
}

// Scanner is the discovery control the supervisor needs: stopping a
// scan before dialing and unregistering the listener on shutdown.
type Scanner interface {
	StopScan()
	Close() error
}

// Options configures a Supervisor.  Dialer is required; everything
// else has a usable zero value.
type Options struct {
	Dialer   transport.Dialer
	Scanner  Scanner
	Registry *device.Registry // consulted for names and bond state
	Notifier notify.Notifier
	Logger   *util.Logger
	Metrics  *metrics.Collector

	Service uuid.UUID
	Timeout transport.TimeoutPolicy

	Greeting []byte // written once connected; nil disables
	Resend   []byte // written when the connected device is selected again
}

// Supervisor owns at most one session at a time.
type Supervisor struct {
	opts     Options
	scfg     *session.Config
	epoch    atomic.Uint64
	events   chan session.Event
	stop     chan struct{}
	loopDone chan struct{}

	mu      sync.Mutex
	current *session.Session
	last    State // state of the most recent session once cleared
	closed  bool
}

// New starts a supervisor with no session.
func New(opts Options) *Supervisor {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}

	s := &Supervisor{
		opts:     opts,
		events:   make(chan session.Event, 4),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	var scan transport.ScanStopper
	if opts.Scanner != nil {
		scan = opts.Scanner
	}
	s.scfg = &session.Config{
		Dialer:  opts.Dialer,
		Scan:    scan,
		Service: opts.Service,
		Timeout: opts.Timeout,
		Epoch:   &s.epoch,
		Events:  s.events,
		Stop:    s.stop,
		OnData:  opts.Notifier.OnData,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	}

	go s.loop()
	return s
}

// ── Inbound events ───────────────────────────────────────────────────

// SelectTarget makes addr the target device.  Selecting the device that
// is already connected writes the resend payload instead of
// reconnecting.  Otherwise any previous session is closed, and its
// connect attempt finished, before the new attempt starts.
func (s *Supervisor) SelectTarget(addr string) error {
	addr = util.NormalizeAddress(addr)
	if addr == "" {
		return fmt.Errorf("select target: empty address")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrShutdown
	}

	cur := s.current
	if cur != nil && cur.Target().Address == addr && cur.State() == session.Connected {
		s.mu.Unlock()
		if len(s.opts.Resend) == 0 {
			return nil
		}
		s.opts.Logger.Verbose("%s already connected, sending", addr)
		return s.send(cur, s.opts.Resend)
	}

	if cur != nil {
		s.epoch.Add(1)
		if cur.State().Live() {
			s.opts.Logger.Info("leaving %s for %s", cur.Target().Address, addr)
		}
		cur.Cancel()
	}

	target := s.lookup(addr)
	sess := session.New(s.scfg, target)
	s.current = sess
	sess.Start()
	s.mu.Unlock()

	s.opts.Logger.Info("device %s bond state: %s", target.Label(), target.Bond)
	s.opts.Notifier.OnStatus("connecting to " + target.Label())
	return nil
}

// Write sends p on the current session.  It fails with ErrNotConnected
// unless that session is Connected.
func (s *Supervisor) Write(p []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrShutdown
	}
	cur := s.current
	s.mu.Unlock()

	if cur == nil {
		s.opts.Metrics.WriteRejected()
		return errors.ErrNotConnected
	}
	return s.send(cur, p)
}

// Shutdown stops scanning, closes the current session, stops the event
// loop, and unregisters the discovery listener.  It is idempotent.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.epoch.Add(1)
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if s.opts.Scanner != nil {
		s.opts.Scanner.StopScan()
	}
	if cur != nil {
		cur.Cancel()
		cur.Wait()
		s.setLast(fromSession(cur.State()))
	}

	close(s.stop)
	<-s.loopDone

	var err error
	if s.opts.Scanner != nil {
		err = s.opts.Scanner.Close()
	}
	s.opts.Logger.Verbose("session supervisor shut down")
	return err
}

// ── Accessors ────────────────────────────────────────────────────────

// State returns the state of the current session, or of the most
// recent one once it has ended.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return fromSession(s.current.State())
	}
	return s.last
}

// Current returns the current session's target.
func (s *Supervisor) Current() (device.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return device.Record{}, false
	}
	return s.current.Target(), true
}

// Target returns the current target address, or "".
func (s *Supervisor) Target() string {
	rec, _ := s.Current()
	return rec.Address
}

// ── Event loop ───────────────────────────────────────────────────────

func (s *Supervisor) loop() {
	defer close(s.loopDone)
	for {
		select {
		case ev := <-s.events:
			switch ev.Kind {
			case session.ConnectResult:
				s.onConnectResult(ev.Session, ev.Err)
			case session.ReadEnded:
				s.onReadLoopEnded(ev.Session, ev.Err)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Supervisor) onConnectResult(sess *session.Session, err error) {
	s.mu.Lock()
	if !s.isCurrent(sess) {
		s.mu.Unlock()
		s.opts.Logger.Debug("ignoring connect result of superseded session %d", sess.Gen())
		sess.Cancel()
		return
	}

	target := sess.Target()
	if err != nil {
		sess.Fail()
		s.clear(sess)
		s.mu.Unlock()

		s.opts.Metrics.ConnectFailed()
		s.opts.Metrics.RecordError(err.Error())
		s.opts.Logger.Warn("connect to %s failed: %v", target.Address, err)
		s.opts.Notifier.OnStatus(fmt.Sprintf("failed to connect to %s: %v", target.Label(), err))
		if errors.Is(err, errors.ErrAdapterDisabled) {
			s.opts.Notifier.OnAdapterStateRequired(true)
		}
		return
	}

	ok := sess.Establish()
	s.mu.Unlock()
	if !ok {
		return
	}

	s.opts.Logger.Info("connected to %s", target.Label())
	s.opts.Notifier.OnStatus("connected to " + target.Label())
	if len(s.opts.Greeting) > 0 {
		s.send(sess, s.opts.Greeting) //nolint:errcheck
	}
}

func (s *Supervisor) onReadLoopEnded(sess *session.Session, cause error) {
	s.mu.Lock()
	st := sess.Finish(cause)
	stale := !s.isCurrent(sess)
	if !stale {
		s.clear(sess)
	}
	s.mu.Unlock()

	if stale {
		s.opts.Logger.Debug("read loop of superseded session %d ended", sess.Gen())
		return
	}

	target := sess.Target()
	if st == session.Failed {
		s.opts.Metrics.RecordError(cause.Error())
		s.opts.Logger.Warn("connection to %s failed: %v", target.Address, cause)
		s.opts.Notifier.OnStatus(fmt.Sprintf("connection to %s failed: %v", target.Label(), cause))
		return
	}
	s.opts.Logger.Info("connection to %s closed by peer", target.Address)
	s.opts.Notifier.OnStatus("connection to " + target.Label() + " closed")
}

// ── Helpers ──────────────────────────────────────────────────────────

// isCurrent checks identity and generation.  Callers hold s.mu.
func (s *Supervisor) isCurrent(sess *session.Session) bool {
	return sess == s.current && sess.Current()
}

// clear drops sess as current and remembers its final state.  Callers
// hold s.mu.
func (s *Supervisor) clear(sess *session.Session) {
	s.current = nil
	s.last = fromSession(sess.State())
	s.epoch.Add(1)
}

func (s *Supervisor) setLast(st State) {
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
}

func (s *Supervisor) lookup(addr string) device.Record {
	if s.opts.Registry != nil {
		if rec, ok := s.opts.Registry.Lookup(addr); ok {
			return rec
		}
	}
	return device.NewRecord(addr, "", device.BondNone)
}

func (s *Supervisor) send(sess *session.Session, p []byte) error {
	if err := sess.Write(p); err != nil {
		if !errors.Is(err, errors.ErrNotConnected) {
			s.opts.Logger.Warn("write to %s failed: %v", sess.Target().Address, err)
			s.opts.Notifier.OnStatus(fmt.Sprintf("write to %s failed: %v", sess.Target().Label(), err))
		}
		return err
	}
	s.opts.Logger.Verbose("sent %d byte(s) to %s", len(p), sess.Target().Address)
	return nil
}
