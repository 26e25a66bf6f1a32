package core

import (
	"context"
	"fmt"
	"sync"

	"btlink/config"
	"btlink/internal/errors"
	"btlink/internal/retry"
	"btlink/internal/transport"
	"btlink/util"
)

// guardedDialer keeps one breaker per device so that a peer which keeps
// refusing connections is not paged over and over.
type guardedDialer struct {
	next   transport.Dialer
	cfg    config.BreakerConfig
	logger *util.Logger

	mu       sync.Mutex
	breakers map[string]*retry.Breaker
}

// guard wraps d with per-device breakers.  MaxFailures 0 returns d
// unchanged.
func guard(d transport.Dialer, cfg config.BreakerConfig, logger *util.Logger) transport.Dialer {
	if cfg.MaxFailures <= 0 {
		return d
	}
	return &guardedDialer{
		next:     d,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*retry.Breaker),
	}
}

func (g *guardedDialer) Dial(ctx context.Context, req transport.Request) (transport.Transport, error) {
	b := g.breaker(req.Address)
	if err := b.Allow(); err != nil {
		return nil, fmt.Errorf("%s keeps failing: %w", req.Address, err)
	}

	t, err := g.next.Dial(ctx, req)
	// A cancelled attempt says nothing about the device.
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil, err
	}
	b.Record(err)
	return t, err
}

func (g *guardedDialer) breaker(addr string) *retry.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[addr]
	if !ok {
		b = &retry.Breaker{
			MaxFailures: g.cfg.MaxFailures,
			Cooldown:    g.cfg.Cooldown,
			OnStateChange: func(from, to retry.State) {
				g.logger.Verbose("breaker for %s: %s -> %s", addr, from, to)
			},
		}
		g.breakers[addr] = b
	}
	return b
}
