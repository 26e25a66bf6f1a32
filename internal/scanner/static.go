package scanner

import (
	"context"

	"btlink/internal/device"
)

// StaticDiscoverer reports a fixed peer list.  It stands in for radio
// discovery on backends that have none (raw RFCOMM sockets, the TCP
// bridge).
type StaticDiscoverer struct {
	Peers []device.Record
}

// CheckAdapter always succeeds.
func (d *StaticDiscoverer) CheckAdapter(context.Context) error { return nil }

// Discover emits every peer in order, then closes the channel.
func (d *StaticDiscoverer) Discover(ctx context.Context) (<-chan device.Record, error) {
	ch := make(chan device.Record)
	peers := append([]device.Record(nil), d.Peers...)
	go func() {
		defer close(ch)
		for _, p := range peers {
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close is a no-op.
func (d *StaticDiscoverer) Close() error { return nil }
