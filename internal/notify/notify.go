// Package notify defines the outbound side of the UI collaborator:
// everything the core reports back (discoveries, status text, adapter
// prompts, received bytes) goes through a Notifier.
package notify

import (
	"btlink/internal/device"
	"btlink/util"
)

// Notifier receives notifications from the scanner and the session
// supervisor.  Implementations must be safe for concurrent use and must
// not block for long: calls arrive from discovery and read goroutines.
type Notifier interface {
	// OnDeviceDiscovered is called once per new address in a scan window.
	OnDeviceDiscovered(rec device.Record)
	// OnStatus reports session progress: connecting, connected,
	// failed, closed.
	OnStatus(text string)
	// OnAdapterStateRequired asks the user to put the adapter into the
	// given power state (true = enable).
	OnAdapterStateRequired(enabled bool)
	// OnData delivers bytes read from the connected peer.  p is only
	// valid for the duration of the call.
	OnData(addr string, p []byte)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) OnDeviceDiscovered(device.Record) {}
func (Nop) OnStatus(string)                  {}
func (Nop) OnAdapterStateRequired(bool)      {}
func (Nop) OnData(string, []byte)            {}

// Logging writes notifications to a Logger.  It is the default when no
// interactive collaborator is attached.
type Logging struct {
	Logger *util.Logger
}

func (n Logging) OnDeviceDiscovered(rec device.Record) {
	n.Logger.Info("found device %s (bond: %s)", rec.Label(), rec.Bond)
}

func (n Logging) OnStatus(text string) {
	n.Logger.Info("%s", text)
}

func (n Logging) OnAdapterStateRequired(enabled bool) {
	if enabled {
		n.Logger.Warn("bluetooth adapter is off - turn it on and retry")
		return
	}
	n.Logger.Warn("bluetooth adapter should be turned off")
}

func (n Logging) OnData(addr string, p []byte) {
	n.Logger.Verbose("%d byte(s) from %s", len(p), addr)
	n.Logger.Debug("%s: %q", addr, p)
}
