package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btlink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no btlink.yaml in the search path
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if cfg.Backend != want.Backend || cfg.Adapter != want.Adapter || cfg.ServiceUUID != want.ServiceUUID {
		t.Errorf("got %+v, want defaults", cfg)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("timeout = %v", cfg.ConnectTimeout)
	}
	if cfg.Greeting != DefaultGreeting || cfg.Resend != DefaultResend {
		t.Errorf("payloads = %q / %q", cfg.Greeting, cfg.Resend)
	}
	if cfg.Log.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Errorf("log max size = %d", cfg.Log.MaxSizeMB)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
backend: tcp
connect_timeout: 5s
greeting: "hi"
breaker:
  max_failures: 5
peers:
  - address: 127.0.0.1:9000
    name: emulator
  - address: 127.0.0.1:9001
log:
  file: /tmp/btlink.log
  max_backups: 7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendTCP {
		t.Errorf("backend = %q", cfg.Backend)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.ConnectTimeout)
	}
	if cfg.Greeting != "hi" {
		t.Errorf("greeting = %q", cfg.Greeting)
	}
	if cfg.Breaker.MaxFailures != 5 || cfg.Breaker.Cooldown != DefaultBreakerCooldown {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	if cfg.Resend != DefaultResend {
		t.Errorf("resend should keep its default, got %q", cfg.Resend)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[0].Name != "emulator" || cfg.Peers[1].Address != "127.0.0.1:9001" {
		t.Errorf("peers = %+v", cfg.Peers)
	}
	if cfg.Log.File != "/tmp/btlink.log" || cfg.Log.MaxBackups != 7 {
		t.Errorf("log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "backend: tcp\nchannel: 2\n")
	t.Setenv("BTLINK_BACKEND", "rfcomm")
	t.Setenv("BTLINK_CHANNEL", "5")
	t.Setenv("BTLINK_LOG_FILE", "/var/log/btlink.log")
	t.Setenv("BTLINK_ENABLE_ADAPTER", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendRFCOMM {
		t.Errorf("backend = %q, want rfcomm", cfg.Backend)
	}
	if cfg.Channel != 5 {
		t.Errorf("channel = %d, want 5", cfg.Channel)
	}
	if cfg.Log.File != "/var/log/btlink.log" {
		t.Errorf("log file = %q", cfg.Log.File)
	}
	if !cfg.EnableAdapter {
		t.Error("EnableAdapter should be true")
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "adapter: hci1\n")
	t.Setenv("BTLINK_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Adapter != "hci1" {
		t.Errorf("adapter = %q", cfg.Adapter)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}
	bad := writeConfig(t, "backend: [unclosed\n")
	if _, err := Load(bad); err == nil {
		t.Error("malformed YAML should fail")
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
