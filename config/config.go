// Package config defines the runtime configuration for btlink and
// loads it from a YAML file and BTLINK_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"btlink/internal/errors"
	"btlink/util"
)

// Config holds every tuneable for one btlink process.
type Config struct {
	// ── Transport ────────────────────────────────────────────────────
	Backend        string        `mapstructure:"backend" yaml:"backend"`
	Adapter        string        `mapstructure:"adapter" yaml:"adapter"`
	ServiceUUID    string        `mapstructure:"service_uuid" yaml:"service_uuid"`
	Channel        int           `mapstructure:"channel" yaml:"channel"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	EnableAdapter  bool          `mapstructure:"enable_adapter" yaml:"enable_adapter"`

	// Breaker guards each device against connect storms.
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`

	// ── Session payloads ─────────────────────────────────────────────
	Greeting string `mapstructure:"greeting" yaml:"greeting"`
	Resend   string `mapstructure:"resend" yaml:"resend"`

	// Peers is the device list for backends without radio discovery.
	Peers []Peer `mapstructure:"peers" yaml:"peers"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int       `mapstructure:"verbose" yaml:"verbose"`
	Log     LogConfig `mapstructure:"log" yaml:"log"`
}

// Peer is a statically configured remote device.
type Peer struct {
	Address string `mapstructure:"address" yaml:"address"`
	Name    string `mapstructure:"name" yaml:"name"`
}

// BreakerConfig controls per-device connect breakers.  MaxFailures 0
// disables them.
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures" yaml:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config populated with the defaults.
func Default() *Config {
	return &Config{
		Backend:        DefaultBackend,
		Adapter:        DefaultAdapter,
		ServiceUUID:    DefaultServiceUUID,
		Channel:        DefaultChannel,
		ConnectTimeout: DefaultConnectTimeout,
		Greeting:       DefaultGreeting,
		Resend:         DefaultResend,
		Breaker: BreakerConfig{
			MaxFailures: DefaultBreakerFailures,
			Cooldown:    DefaultBreakerCooldown,
		},
		Log: LogConfig{
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// Service returns the parsed service identifier.
func (c *Config) Service() (uuid.UUID, error) {
	return uuid.Parse(c.ServiceUUID)
}

// YAML renders the configuration in the file format Load reads.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParsePeer accepts "ADDRESS" or "ADDRESS=Name".
func ParsePeer(spec string) (Peer, error) {
	addr, name, _ := strings.Cut(spec, "=")
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Peer{}, fmt.Errorf("invalid peer %q: address is required", spec)
	}
	return Peer{Address: addr, Name: strings.TrimSpace(name)}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// normalises case-insensitive fields.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendBlueZ, BackendRFCOMM, BackendTCP:
	default:
		return &errors.ConfigError{
			Field:   "backend",
			Value:   c.Backend,
			Message: "unknown backend",
			Hint:    "use one of: bluez, rfcomm, tcp",
		}
	}

	if _, err := c.Service(); err != nil {
		return &errors.ConfigError{
			Field:   "service-uuid",
			Value:   c.ServiceUUID,
			Message: "not a valid 128-bit UUID",
			Hint:    "the Serial Port Profile is " + DefaultServiceUUID,
		}
	}

	if c.Backend == BackendBlueZ && strings.TrimSpace(c.Adapter) == "" {
		return &errors.ConfigError{
			Field:   "adapter",
			Message: "required for the bluez backend",
			Hint:    "list adapters with 'bluetoothctl list', usually hci0",
		}
	}

	if c.Backend == BackendRFCOMM && (c.Channel < 1 || c.Channel > MaxChannel) {
		return &errors.ConfigError{
			Field:   "channel",
			Value:   c.Channel,
			Message: fmt.Sprintf("out of range 1-%d", MaxChannel),
			Hint:    "RFCOMM channels are numbered 1 to 30; 'sdptool browse <addr>' shows the one in use",
		}
	}

	if c.ConnectTimeout < 0 {
		return &errors.ConfigError{
			Field:   "timeout",
			Value:   c.ConnectTimeout,
			Message: "must not be negative",
			Hint:    "use 0 for the platform default",
		}
	}

	if c.Breaker.MaxFailures < 0 || c.Breaker.Cooldown < 0 {
		return &errors.ConfigError{
			Field:   "breaker",
			Value:   fmt.Sprintf("%d/%v", c.Breaker.MaxFailures, c.Breaker.Cooldown),
			Message: "failures and cooldown must not be negative",
			Hint:    "set breaker.max_failures to 0 to disable",
		}
	}

	for i, p := range c.Peers {
		if strings.TrimSpace(p.Address) == "" {
			return &errors.ConfigError{
				Field:   "peer",
				Message: fmt.Sprintf("peer #%d has no address", i+1),
			}
		}
		if c.Backend == BackendRFCOMM && !util.IsMAC(p.Address) {
			return &errors.ConfigError{
				Field:   "peer",
				Value:   p.Address,
				Message: "not a Bluetooth address",
				Hint:    "use the form AA:BB:CC:DD:EE:FF",
			}
		}
	}

	if c.Backend == BackendTCP && len(c.Peers) == 0 {
		return &errors.ConfigError{
			Field:   "peer",
			Message: "the tcp backend needs at least one peer",
			Hint:    "pass --peer 127.0.0.1:9000=emulator or list peers in the config file",
		}
	}

	if c.Verbose < 0 {
		c.Verbose = 0
	}
	return nil
}
