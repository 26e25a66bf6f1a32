package config

import (
	"strings"
	"testing"
	"time"

	"btlink/internal/errors"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	svc, err := cfg.Service()
	if err != nil {
		t.Fatal(err)
	}
	if svc.String() != DefaultServiceUUID {
		t.Errorf("service = %s", svc)
	}
}

func TestDefault_BreakerOff(t *testing.T) {
	cfg := Default()
	if cfg.Breaker.MaxFailures != 0 {
		t.Errorf("breaker should be off by default, MaxFailures = %d", cfg.Breaker.MaxFailures)
	}
	if cfg.Breaker.Cooldown != DefaultBreakerCooldown {
		t.Errorf("cooldown = %v", cfg.Breaker.Cooldown)
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantSub string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "usb" },
			field:   "backend",
			wantSub: "hint: use one of",
		},
		{
			name:    "bad uuid",
			mutate:  func(c *Config) { c.ServiceUUID = "not-a-uuid" },
			field:   "service-uuid",
			wantSub: "hint:",
		},
		{
			name:    "no adapter",
			mutate:  func(c *Config) { c.Adapter = " " },
			field:   "adapter",
			wantSub: "required for the bluez backend",
		},
		{
			name:    "negative breaker",
			mutate:  func(c *Config) { c.Breaker.Cooldown = -time.Second },
			field:   "breaker",
			wantSub: "must not be negative",
		},
		{
			name: "channel out of range",
			mutate: func(c *Config) {
				c.Backend = BackendRFCOMM
				c.Channel = 31
			},
			field:   "channel",
			wantSub: "out of range 1-30",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.ConnectTimeout = -time.Second },
			field:   "timeout",
			wantSub: "must not be negative",
		},
		{
			name:    "tcp without peers",
			mutate:  func(c *Config) { c.Backend = BackendTCP },
			field:   "peer",
			wantSub: "at least one peer",
		},
		{
			name: "rfcomm peer not a MAC",
			mutate: func(c *Config) {
				c.Backend = BackendRFCOMM
				c.Peers = []Peer{{Address: "localhost:9000"}}
			},
			field:   "peer",
			wantSub: "not a Bluetooth address",
		},
		{
			name:    "blank peer",
			mutate:  func(c *Config) { c.Peers = []Peer{{Name: "ghost"}} },
			field:   "peer",
			wantSub: "peer #1 has no address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *errors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not a ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_Normalises(t *testing.T) {
	cfg := Default()
	cfg.Backend = " TCP "
	cfg.Peers = []Peer{{Address: "127.0.0.1:9000"}}
	cfg.Verbose = -2
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendTCP {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.Verbose != 0 {
		t.Errorf("verbose = %d", cfg.Verbose)
	}
}

func TestParsePeer(t *testing.T) {
	tests := []struct {
		spec    string
		want    Peer
		wantErr bool
	}{
		{"00:1A:7D:DA:71:13", Peer{Address: "00:1A:7D:DA:71:13"}, false},
		{"127.0.0.1:9000=emulator", Peer{Address: "127.0.0.1:9000", Name: "emulator"}, false},
		{" AA:BB = Bench Sensor ", Peer{Address: "AA:BB", Name: "Bench Sensor"}, false},
		{"=nameless", Peer{}, true},
		{"", Peer{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParsePeer(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendTCP
	cfg.Peers = []Peer{{Address: "127.0.0.1:9000", Name: "emulator"}}

	data, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"backend: tcp", "connect_timeout: 15s", "name: emulator"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("yaml missing %q:\n%s", want, data)
		}
	}

	path := writeConfig(t, string(data))
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ConnectTimeout != cfg.ConnectTimeout || len(loaded.Peers) != 1 || loaded.Peers[0].Name != "emulator" {
		t.Errorf("loaded = %+v", loaded)
	}
}
