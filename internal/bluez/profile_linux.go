//go:build linux

package bluez

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"btlink/internal/errors"
	"btlink/internal/transport"
	"btlink/util"
)

// ProfileDialer opens RFCOMM streams by asking BlueZ to connect a
// client-role Profile1 for the requested service.  BlueZ resolves the
// RFCOMM channel through SDP and hands the connected socket back via
// NewConnection.
//
// Profiles are registered lazily on first use and unregistered by Close.
type ProfileDialer struct {
	c *Client

	mu       sync.Mutex
	profiles map[uuid.UUID]dbus.ObjectPath
	pending  map[dbus.ObjectPath]chan dbus.UnixFD // device path -> waiting Dial
}

// NewProfileDialer returns a dialer using c's bus connection.
func NewProfileDialer(c *Client) *ProfileDialer {
	return &ProfileDialer{
		c:        c,
		profiles: make(map[uuid.UUID]dbus.ObjectPath),
		pending:  make(map[dbus.ObjectPath]chan dbus.UnixFD),
	}
}

// Dial connects req.Service on the device at req.Address.
func (d *ProfileDialer) Dial(ctx context.Context, req transport.Request) (transport.Transport, error) {
	if _, err := util.ParseMAC(req.Address); err != nil {
		return nil, errors.Wrap("connect", req.Address, err)
	}
	addr := util.NormalizeAddress(req.Address)

	if err := d.ensureProfile(ctx, req.Service); err != nil {
		return nil, errors.Wrap("connect", addr, err)
	}

	devPath := DevicePath(d.c.adapter, addr)
	fds := make(chan dbus.UnixFD, 1)
	d.mu.Lock()
	d.pending[devPath] = fds
	d.mu.Unlock()
	defer d.clearPending(devPath, fds)

	dev := d.c.object(devPath)
	if err := dev.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, req.Service.String()).Err; err != nil {
		if ctx.Err() != nil {
			d.disconnect(dev, req.Service)
			return nil, errors.Wrap("connect", addr, ctx.Err())
		}
		if errorName(err) == errUnknownObj {
			err = fmt.Errorf("device not known to %s, scan first: %w", d.c.adapter, err)
		}
		return nil, errors.Wrap("connect", addr, err)
	}

	select {
	case fd := <-fds:
		return newProfileStream(fd, addr)
	case <-ctx.Done():
		d.disconnect(dev, req.Service)
		return nil, errors.Wrap("connect", addr, ctx.Err())
	}
}

// ensureProfile exports and registers a Profile1 object for service.
func (d *ProfileDialer) ensureProfile(ctx context.Context, service uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.profiles[service]; ok {
		return nil
	}

	path := dbus.ObjectPath("/btlink/profile/" + strings.ReplaceAll(service.String(), "-", ""))
	if err := d.c.conn.Export(&profile{d: d}, path, profileIface); err != nil {
		return fmt.Errorf("export profile: %w", err)
	}

	opts := map[string]dbus.Variant{
		"Name":        dbus.MakeVariant("btlink"),
		"Role":        dbus.MakeVariant("client"),
		"AutoConnect": dbus.MakeVariant(false),
	}
	err := d.c.object(rootPath).CallWithContext(ctx, profileMgr+".RegisterProfile", 0, path, service.String(), opts).Err
	if err != nil {
		d.c.conn.Export(nil, path, profileIface) //nolint:errcheck
		return fmt.Errorf("register profile %s: %w", service, err)
	}

	d.profiles[service] = path
	d.c.logger.Debug("registered client profile %s at %s", service, path)
	return nil
}

// deliver hands a connected socket to the Dial waiting for devPath.
// Sockets nobody is waiting for (a cancelled attempt) are closed.
func (d *ProfileDialer) deliver(devPath dbus.ObjectPath, fd dbus.UnixFD) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := d.pending[devPath]
	if ch == nil {
		d.c.logger.Debug("dropping unrequested connection from %s", devPath)
		unix.Close(int(fd)) //nolint:errcheck
		return
	}
	delete(d.pending, devPath)
	ch <- fd // buffered, one slot per attempt
}

func (d *ProfileDialer) clearPending(devPath dbus.ObjectPath, ch chan dbus.UnixFD) {
	d.mu.Lock()
	if d.pending[devPath] == ch {
		delete(d.pending, devPath)
	}
	d.mu.Unlock()

	// A socket delivered after Dial gave up must not leak.
	select {
	case fd := <-ch:
		unix.Close(int(fd)) //nolint:errcheck
	default:
	}
}

func (d *ProfileDialer) disconnect(dev dbus.BusObject, service uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := dev.CallWithContext(ctx, deviceIface+".DisconnectProfile", 0, service.String()).Err; err != nil {
		d.c.logger.Debug("disconnect profile on %s: %v", dev.Path(), err)
	}
}

// Close unregisters and unexports every profile.
func (d *ProfileDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs []error
	for service, path := range d.profiles {
		if err := d.c.object(rootPath).CallWithContext(ctx, profileMgr+".UnregisterProfile", 0, path).Err; err != nil {
			errs = append(errs, fmt.Errorf("unregister profile %s: %w", service, err))
		}
		d.c.conn.Export(nil, path, profileIface) //nolint:errcheck
		delete(d.profiles, service)
	}
	return errors.Join(errs...)
}

// newProfileStream adopts fd as a pollable stream.  BlueZ hands over a
// blocking socket; switching it to non-blocking lets the runtime poller
// own it, so Close interrupts a pending Read.
func newProfileStream(fd dbus.UnixFD, addr string) (transport.Transport, error) {
	if err := unix.SetNonblock(int(fd), true); err != nil {
		unix.Close(int(fd)) //nolint:errcheck
		return nil, errors.Wrap("connect", addr, err)
	}
	f := os.NewFile(uintptr(fd), "rfcomm:"+addr)
	return transport.NewStream(f, addr), nil
}

// profile is the exported org.bluez.Profile1 object.
type profile struct {
	d *ProfileDialer
}

func (p *profile) Release() *dbus.Error { return nil }

func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.d.deliver(dev, fd)
	return nil
}

// RequestDisconnection is a no-op: the session owns the socket and
// notices the disconnect as end of stream.
func (p *profile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error {
	p.d.c.logger.Debug("BlueZ requested disconnection of %s", dev)
	return nil
}
