// Package bluez talks to the BlueZ daemon over the system D-Bus: it
// reports and changes the adapter power state, runs discovery, and
// opens RFCOMM streams through a client-role Profile1 registration.
package bluez

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/retry"
	"btlink/util"
)

const (
	busName        = "org.bluez"
	rootPath       = dbus.ObjectPath("/org/bluez")
	adapterIface   = "org.bluez.Adapter1"
	deviceIface    = "org.bluez.Device1"
	profileIface   = "org.bluez.Profile1"
	profileMgr     = "org.bluez.ProfileManager1"
	propsIface     = "org.freedesktop.DBus.Properties"
	objMgrIface    = "org.freedesktop.DBus.ObjectManager"
	propsChanged   = propsIface + ".PropertiesChanged"
	ifacesAdded    = objMgrIface + ".InterfacesAdded"
	errUnknownObj  = "org.freedesktop.DBus.Error.UnknownObject"
	errUnknownSvc  = "org.freedesktop.DBus.Error.ServiceUnknown"
	errRFKill      = "org.bluez.Error.Blocked"
	defaultAdapter = "hci0"
)

// ── Object paths ─────────────────────────────────────────────────────

// AdapterPath returns the object path of a named adapter such as "hci0".
func AdapterPath(adapter string) dbus.ObjectPath {
	if adapter == "" {
		adapter = defaultAdapter
	}
	return rootPath + "/" + dbus.ObjectPath(adapter)
}

// DevicePath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(util.NormalizeAddress(addr), ":", "_")
	return AdapterPath(adapter) + "/dev_" + dbus.ObjectPath(escaped)
}

// AddressFromPath extracts the MAC address from a device object path
// under the given adapter.  It returns "" for any other path.
func AddressFromPath(adapter string, path dbus.ObjectPath) string {
	prefix := string(AdapterPath(adapter)) + "/dev_"
	s := string(path)
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	if strings.Contains(rest, "/") {
		return "" // a child object such as a GATT service
	}
	return strings.ReplaceAll(rest, "_", ":")
}

// ── Client ───────────────────────────────────────────────────────────

// Client wraps a private system bus connection bound to one adapter.
type Client struct {
	conn    *dbus.Conn
	adapter string
	logger  *util.Logger
}

// New connects to the system bus and checks that BlueZ is running.
// Both failures are reported as ErrAdapterUnavailable.
func New(ctx context.Context, adapter string, logger *util.Logger) (*Client, error) {
	if adapter == "" {
		adapter = defaultAdapter
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: system bus: %v", errors.ErrAdapterUnavailable, err)
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: list bus names: %v", errors.ErrAdapterUnavailable, err)
	}
	if !contains(names, busName) {
		conn.Close()
		return nil, fmt.Errorf("%w: %s not found on system bus (is bluetooth.service running?)",
			errors.ErrAdapterUnavailable, busName)
	}

	logger.Debug("connected to BlueZ on the system bus, adapter %s", adapter)
	return &Client{conn: conn, adapter: adapter, logger: logger}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Adapter returns the adapter name, e.g. "hci0".
func (c *Client) Adapter() string { return c.adapter }

func (c *Client) object(path dbus.ObjectPath) dbus.BusObject {
	return c.conn.Object(busName, path)
}

// ── Adapter power ────────────────────────────────────────────────────

// Powered reports the adapter's Powered property.
func (c *Client) Powered(ctx context.Context) (bool, error) {
	var v dbus.Variant
	err := c.object(AdapterPath(c.adapter)).
		CallWithContext(ctx, propsIface+".Get", 0, adapterIface, "Powered").Store(&v)
	if err != nil {
		return false, err
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("adapter property Powered is %s, not bool", v.Signature())
	}
	return on, nil
}

// SetPowered switches the adapter on or off.
func (c *Client) SetPowered(ctx context.Context, on bool) error {
	return c.object(AdapterPath(c.adapter)).
		CallWithContext(ctx, propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(on)).Err
}

// CheckAdapter maps the adapter state onto the error taxonomy: a
// missing adapter object is ErrAdapterUnavailable, a powered-off one is
// ErrAdapterDisabled.
func (c *Client) CheckAdapter(ctx context.Context) error {
	on, err := c.Powered(ctx)
	if err != nil {
		switch errorName(err) {
		case errUnknownObj, errUnknownSvc:
			return fmt.Errorf("%w: no adapter %s", errors.ErrAdapterUnavailable, c.adapter)
		}
		return fmt.Errorf("%w: %s: %v", errors.ErrAdapterUnavailable, c.adapter, err)
	}
	if !on {
		return fmt.Errorf("%w: %s is powered off", errors.ErrAdapterDisabled, c.adapter)
	}
	return nil
}

// EnableAdapter powers the adapter on and polls with b until BlueZ
// reports it powered (see retry.PowerOnBackoff).  A soft- or
// hard-blocked radio is not retried.
func (c *Client) EnableAdapter(ctx context.Context, b *retry.Backoff) error {
	err := c.CheckAdapter(ctx)
	if err == nil || !errors.Is(err, errors.ErrAdapterDisabled) {
		return err
	}

	c.logger.Info("powering on adapter %s", c.adapter)
	return b.Do(ctx, func(attempt int) error {
		if err := c.SetPowered(ctx, true); err != nil {
			if errorName(err) == errRFKill {
				return retry.Permanent(fmt.Errorf("%w: %s is blocked by rfkill", errors.ErrAdapterDisabled, c.adapter))
			}
			c.logger.Debug("power on attempt %d: %v", attempt, err)
			return err
		}
		err := c.CheckAdapter(ctx)
		if err != nil && !errors.Is(err, errors.ErrAdapterDisabled) {
			return retry.Permanent(err)
		}
		return err
	})
}

// ── Helpers ──────────────────────────────────────────────────────────

// errorName returns the D-Bus error name carried by err, if any.
func errorName(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var dep *dbus.Error
	if errors.As(err, &dep) {
		return dep.Name
	}
	return ""
}

// recordFromProps builds a device record from Device1 properties.  It
// reports false when the address is missing.
func recordFromProps(props map[string]dbus.Variant) (device.Record, bool) {
	addr, _ := props["Address"].Value().(string)
	if addr == "" {
		return device.Record{}, false
	}
	name, _ := props["Name"].Value().(string)
	if name == "" {
		name, _ = props["Alias"].Value().(string)
		if name == strings.ReplaceAll(addr, ":", "-") {
			name = "" // BlueZ falls back to the address as the alias
		}
	}
	return device.NewRecord(addr, name, bondFromProps(props)), true
}

// bondFromProps never reports BondBonding: BlueZ exposes no in-progress
// bond property, only Paired and Bonded.  A pairing without stored keys
// (Paired but not Bonded) still counts as bonded for display.
func bondFromProps(props map[string]dbus.Variant) device.BondState {
	if bonded, _ := props["Bonded"].Value().(bool); bonded {
		return device.BondBonded
	}
	if paired, _ := props["Paired"].Value().(bool); paired {
		return device.BondBonded
	}
	return device.BondNone
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
