package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"btlink/config"
	"btlink/internal/bluez"
	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/metrics"
	"btlink/internal/notify"
	"btlink/internal/retry"
	"btlink/internal/scanner"
	"btlink/internal/supervisor"
	"btlink/internal/transport"
	"btlink/util"
)

// App is a fully wired btlink instance.
type App struct {
	Supervisor *supervisor.Supervisor
	Scanner    *scanner.Scanner
	Metrics    *metrics.Collector

	// EnableAdapter powers the radio on.  Nil when the backend has no
	// adapter to control.
	EnableAdapter func(ctx context.Context) error

	logger  *util.Logger
	closers []func() error
}

// backend is what a radio stack contributes to an App.
type backend struct {
	dialer  transport.Dialer
	disc    scanner.Discoverer
	enable  func(ctx context.Context) error
	closers []func() error
}

// Build constructs an App from a validated configuration.  Every
// notification goes to n, or to the logger when n is nil.
func Build(ctx context.Context, cfg *config.Config, logger *util.Logger, n notify.Notifier) (*App, error) {
	if n == nil {
		n = notify.Logging{Logger: logger}
	}

	service, err := cfg.Service()
	if err != nil {
		return nil, fmt.Errorf("service uuid: %w", err)
	}

	be, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := assemble(be, cfg, service, logger, n)
	logger.Verbose("backend %s ready (service %s)", cfg.Backend, service)
	return app, nil
}

// assemble wires scanner and supervisor around a backend.
func assemble(be *backend, cfg *config.Config, service uuid.UUID, logger *util.Logger, n notify.Notifier) *App {
	m := metrics.New()
	reg := device.NewRegistry()
	sc := scanner.New(scanner.Config{
		Discoverer: be.disc,
		Registry:   reg,
		Notifier:   n,
		Logger:     logger,
		Metrics:    m,
	})

	sup := supervisor.New(supervisor.Options{
		Dialer:   guard(be.dialer, cfg.Breaker, logger),
		Scanner:  sc,
		Registry: reg,
		Notifier: n,
		Logger:   logger,
		Metrics:  m,
		Service:  service,
		Timeout:  transport.TimeoutPolicy{Connect: cfg.ConnectTimeout},
		Greeting: payload(cfg.Greeting),
		Resend:   payload(cfg.Resend),
	})

	return &App{
		Supervisor:    sup,
		Scanner:       sc,
		Metrics:       m,
		EnableAdapter: be.enable,
		logger:        logger,
		closers:       be.closers,
	}
}

// CheckAdapter reports the adapter state at startup.  A powered-off
// adapter raises the enable prompt on the notifier; the error is
// returned either way so the caller can decide how loud to be.
func (a *App) CheckAdapter(ctx context.Context) error {
	return a.Scanner.CheckAdapter(ctx)
}

// Run hands control to fe and shuts the app down when it returns.
func (a *App) Run(ctx context.Context, fe Frontend) error {
	err := fe.Run(ctx)
	if cerr := a.Close(); cerr != nil {
		a.logger.Warn("shutdown: %v", cerr)
	}
	return err
}

// Close shuts the supervisor down, then releases backend resources in
// reverse order of acquisition.  It is idempotent.
func (a *App) Close() error {
	errs := []error{a.Supervisor.Shutdown()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	a.logger.Debug("%s", a.Metrics.JSON())
	return errors.Join(errs...)
}

// ── backend builders ─────────────────────────────────────────────────

func buildBackend(ctx context.Context, cfg *config.Config, logger *util.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendBlueZ:
		return buildBlueZ(ctx, cfg, logger)
	case config.BackendRFCOMM:
		return &backend{
			dialer: &transport.RFCOMMDialer{Channel: uint8(cfg.Channel)},
			disc:   &scanner.StaticDiscoverer{Peers: peerRecords(cfg.Peers)},
		}, nil
	case config.BackendTCP:
		return &backend{
			dialer: &transport.TCPDialer{Timeout: cfg.ConnectTimeout},
			disc:   &scanner.StaticDiscoverer{Peers: peerRecords(cfg.Peers)},
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func buildBlueZ(ctx context.Context, cfg *config.Config, logger *util.Logger) (*backend, error) {
	c, err := bluez.New(ctx, cfg.Adapter, logger)
	if err != nil {
		return nil, err
	}
	enable := func(ctx context.Context) error {
		return c.EnableAdapter(ctx, retry.PowerOnBackoff())
	}

	if cfg.EnableAdapter {
		if err := c.CheckAdapter(ctx); errors.Is(err, errors.ErrAdapterDisabled) {
			logger.Info("powering on %s", cfg.Adapter)
			if err := enable(ctx); err != nil {
				logger.Warn("could not power on %s: %v", cfg.Adapter, err)
			}
		}
	}

	pd := bluez.NewProfileDialer(c)
	return &backend{
		dialer:  pd,
		disc:    c.Discoverer(),
		enable:  enable,
		closers: []func() error{c.Close, pd.Close},
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func peerRecords(peers []config.Peer) []device.Record {
	recs := make([]device.Record, 0, len(peers))
	for _, p := range peers {
		recs = append(recs, device.NewRecord(p.Address, p.Name, device.BondNone))
	}
	return recs
}

// payload maps an empty string to nil, which disables the write.
func payload(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
