package bluez

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"btlink/internal/device"
	"btlink/internal/errors"
)

// stopTimeout bounds the StopDiscovery call made after a scan session
// has already been cancelled.
const stopTimeout = 2 * time.Second

// Discoverer runs BlueZ discovery on the client's adapter.  A device is
// reported when BlueZ adds its object or refreshes its RSSI, which is
// how cached devices that are in range show up again.
type Discoverer struct {
	c  *Client
	wg sync.WaitGroup
}

// Discoverer returns a discovery source bound to the client.
func (c *Client) Discoverer() *Discoverer {
	return &Discoverer{c: c}
}

// CheckAdapter delegates to the client.
func (d *Discoverer) CheckAdapter(ctx context.Context) error {
	return d.c.CheckAdapter(ctx)
}

// Discover subscribes to device signals and starts discovery.  The
// returned channel is closed after ctx ends and the subscription has
// been removed.
func (d *Discoverer) Discover(ctx context.Context) (<-chan device.Record, error) {
	c := d.c
	ns := AdapterPath(c.adapter)
	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(objMgrIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(propsIface), dbus.WithMatchMember("PropertiesChanged"), dbus.WithMatchPathNamespace(ns)},
	}
	for i, m := range matches {
		if err := c.conn.AddMatchSignalContext(ctx, m...); err != nil {
			removeMatches(c.conn, matches[:i])
			return nil, fmt.Errorf("subscribe to device signals: %w", err)
		}
	}

	sigs := make(chan *dbus.Signal, 32)
	c.conn.Signal(sigs)

	unsubscribe := func() {
		c.conn.RemoveSignal(sigs)
		removeMatches(c.conn, matches)
	}

	if err := c.object(ns).CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		unsubscribe()
		if errorName(err) == "org.bluez.Error.NotReady" {
			return nil, fmt.Errorf("%w: %v", errors.ErrAdapterDisabled, err)
		}
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	c.logger.Debug("discovery started on %s", c.adapter)

	out := make(chan device.Record)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(out)
		defer unsubscribe()
		defer d.stopDiscovery()
		d.loop(ctx, sigs, out)
	}()
	return out, nil
}

func (d *Discoverer) loop(ctx context.Context, sigs <-chan *dbus.Signal, out chan<- device.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			rec, ok := d.recordFromSignal(ctx, sig)
			if !ok {
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

// recordFromSignal turns an InterfacesAdded or RSSI PropertiesChanged
// signal for a device under our adapter into a record.
func (d *Discoverer) recordFromSignal(ctx context.Context, sig *dbus.Signal) (device.Record, bool) {
	switch sig.Name {
	case ifacesAdded:
		if len(sig.Body) < 2 {
			return device.Record{}, false
		}
		path, _ := sig.Body[0].(dbus.ObjectPath)
		ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
		if AddressFromPath(d.c.adapter, path) == "" {
			return device.Record{}, false
		}
		props, ok := ifaces[deviceIface]
		if !ok {
			return device.Record{}, false
		}
		return recordFromProps(props)

	case propsChanged:
		if len(sig.Body) < 2 || AddressFromPath(d.c.adapter, sig.Path) == "" {
			return device.Record{}, false
		}
		iface, _ := sig.Body[0].(string)
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		if iface != deviceIface {
			return device.Record{}, false
		}
		if _, seen := changed["RSSI"]; !seen {
			return device.Record{}, false
		}
		var props map[string]dbus.Variant
		if err := d.c.object(sig.Path).CallWithContext(ctx, propsIface+".GetAll", 0, deviceIface).Store(&props); err != nil {
			d.c.logger.Debug("read properties of %s: %v", sig.Path, err)
			return device.Record{}, false
		}
		return recordFromProps(props)
	}
	return device.Record{}, false
}

func (d *Discoverer) stopDiscovery() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := d.c.object(AdapterPath(d.c.adapter)).CallWithContext(ctx, adapterIface+".StopDiscovery", 0).Err
	if err != nil {
		d.c.logger.Debug("stop discovery: %v", err)
		return
	}
	d.c.logger.Debug("discovery stopped on %s", d.c.adapter)
}

// Close waits for every discovery session to finish unsubscribing.
// Sessions end when their context is cancelled.
func (d *Discoverer) Close() error {
	d.wg.Wait()
	return nil
}

func removeMatches(conn *dbus.Conn, matches [][]dbus.MatchOption) {
	for _, m := range matches {
		conn.RemoveMatchSignal(m...) //nolint:errcheck
	}
}
