// Package scanner drives device discovery on the local adapter and
// feeds the results into a device registry and the UI collaborator.
package scanner

import (
	"context"
	"sync"

	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/metrics"
	"btlink/internal/notify"
	"btlink/util"
)

// Discoverer is the platform discovery capability.  Each call to
// Discover starts a fresh scan session whose records arrive on the
// returned channel; the channel is closed once ctx ends.
type Discoverer interface {
	// CheckAdapter returns ErrAdapterUnavailable or ErrAdapterDisabled
	// when discovery cannot start.
	CheckAdapter(ctx context.Context) error
	Discover(ctx context.Context) (<-chan device.Record, error)
	// Close unregisters any discovery listener.
	Close() error
}

// Scanner runs at most one scan session at a time.
type Scanner struct {
	disc     Discoverer
	registry *device.Registry
	notifier notify.Notifier
	logger   *util.Logger
	metrics  *metrics.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds the collaborators of a Scanner.  Notifier, Logger and
// Metrics may be nil.
type Config struct {
	Discoverer Discoverer
	Registry   *device.Registry
	Notifier   notify.Notifier
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// New creates an idle Scanner.
func New(cfg Config) *Scanner {
	s := &Scanner{
		disc:     cfg.Discoverer,
		registry: cfg.Registry,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if s.registry == nil {
		s.registry = device.NewRegistry()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = util.NewLogger(0)
	}
	return s
}

// Registry returns the registry the scanner populates.
func (s *Scanner) Registry() *device.Registry { return s.registry }

// StartScan begins discovery.  It is a no-op while a scan is already
// running.  When the adapter is missing or powered off the error is
// returned and the scanner stays idle.
func (s *Scanner) StartScan(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Debug("scan already running")
		return nil
	}

	if err := s.CheckAdapter(ctx); err != nil {
		return err
	}

	s.registry.Clear()

	scanCtx, cancel := context.WithCancel(ctx)
	records, err := s.disc.Discover(scanCtx)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.pump(records, done)

	s.logger.Info("scanning for devices")
	s.notifier.OnStatus("scanning")
	return nil
}

// CheckAdapter returns ErrAdapterUnavailable or ErrAdapterDisabled
// when discovery cannot start.  A disabled adapter also raises the
// enable prompt.
func (s *Scanner) CheckAdapter(ctx context.Context) error {
	err := s.disc.CheckAdapter(ctx)
	if errors.Is(err, errors.ErrAdapterDisabled) {
		s.notifier.OnAdapterStateRequired(true)
	}
	return err
}

// pump forwards new records until the discovery channel closes.  A
// discoverer that runs out of devices ends the scan session, so the
// next StartScan starts over.
func (s *Scanner) pump(records <-chan device.Record, done chan struct{}) {
	defer close(done)
	for rec := range records {
		rec.Address = util.NormalizeAddress(rec.Address)
		if !s.registry.Add(rec) {
			continue
		}
		s.metrics.DeviceFound()
		s.logger.Verbose("discovered %s", rec.Label())
		s.notifier.OnDeviceDiscovered(rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// StopScan or a newer scan already owns the state.
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.logger.Verbose("discovery finished, %d device(s)", s.registry.Len())
}

// StopScan cancels discovery and waits for the pump to drain.  It is
// safe to call when no scan is running.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Verbose("scan stopped")
}

// Scanning reports whether a scan session is active.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close stops any scan and unregisters the discovery listener.
func (s *Scanner) Close() error {
	s.StopScan()
	return s.disc.Close()
}
