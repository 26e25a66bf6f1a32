package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"btlink/config"
	"btlink/internal/retry"
	"btlink/internal/transport"
	"btlink/util"
)

func countingDialer(calls *atomic.Int32, err error) transport.Dialer {
	return transport.DialFunc(func(ctx context.Context, req transport.Request) (transport.Transport, error) {
		calls.Add(1)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	})
}

func TestGuard_OpensPerDevice(t *testing.T) {
	var calls atomic.Int32
	refused := errors.New("connection refused")
	d := guard(countingDialer(&calls, refused),
		config.BreakerConfig{MaxFailures: 2, Cooldown: time.Hour}, util.NewLogger(0))

	a := transport.Request{Address: "AA"}
	for i := 0; i < 2; i++ {
		if _, err := d.Dial(context.Background(), a); !errors.Is(err, refused) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	_, err := d.Dial(context.Background(), a)
	var open *retry.OpenError
	if !errors.As(err, &open) {
		t.Fatalf("third attempt should be rejected by the breaker, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("dialer called %d times, want 2", calls.Load())
	}
	if msg := err.Error(); !strings.HasPrefix(msg, "AA keeps failing") || !strings.Contains(msg, "retry in") {
		t.Errorf("rejection should say when to retry, got %q", msg)
	}

	if _, err := d.Dial(context.Background(), transport.Request{Address: "BB"}); !errors.Is(err, refused) {
		t.Errorf("other device should still be dialed, got %v", err)
	}
}

func TestGuard_CancelNotCounted(t *testing.T) {
	var calls atomic.Int32
	d := guard(countingDialer(&calls, nil),
		config.BreakerConfig{MaxFailures: 1, Cooldown: time.Hour}, util.NewLogger(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dial(ctx, transport.Request{Address: "AA"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if _, err := d.Dial(ctx, transport.Request{Address: "AA"}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled attempt must not open the breaker, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGuard_Disabled(t *testing.T) {
	inner := &transport.TCPDialer{}
	if d := guard(inner, config.BreakerConfig{}, util.NewLogger(0)); d != transport.Dialer(inner) {
		t.Error("MaxFailures 0 should return the dialer unchanged")
	}
}
