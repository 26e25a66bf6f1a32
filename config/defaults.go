package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// Backend names.
	BackendBlueZ  = "bluez"  // BlueZ Profile1 over D-Bus
	BackendRFCOMM = "rfcomm" // raw AF_BLUETOOTH socket on a fixed channel
	BackendTCP    = "tcp"    // TCP bridge to an emulator or serial gateway

	// DefaultBackend is used when none is configured.
	DefaultBackend = BackendBlueZ

	// DefaultAdapter is the local controller.
	DefaultAdapter = "hci0"

	// DefaultServiceUUID is the Serial Port Profile identifier both
	// peers agree on.
	DefaultServiceUUID = "00001101-0000-1000-8000-00805f9b34fb"

	// DefaultChannel is the RFCOMM channel for the rfcomm backend.
	DefaultChannel = 1

	// MaxChannel is the highest valid RFCOMM channel.
	MaxChannel = 30

	// DefaultConnectTimeout bounds one connection attempt.  Zero means
	// the platform default (a page timeout of several seconds).
	DefaultConnectTimeout = 15 * time.Second

	// DefaultBreakerFailures is how many consecutive connect failures
	// to one device open its breaker.  Zero leaves breakers off so a
	// user's retry always dials.
	DefaultBreakerFailures = 0

	// DefaultBreakerCooldown is how long an open breaker rejects
	// connects to that device.
	DefaultBreakerCooldown = 10 * time.Second

	// DefaultGreeting is written once a session connects.
	DefaultGreeting = "Hello, world!"

	// DefaultResend is written when the connected device is selected
	// again.
	DefaultResend = "Hello, world (subsequent)"

	// DefaultLogMaxSizeMB is the rotation size of the log file.
	DefaultLogMaxSizeMB = 10

	// DefaultLogMaxBackups is how many rotated log files are kept.
	DefaultLogMaxBackups = 3

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BTLINK"
)
