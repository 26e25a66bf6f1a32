package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"btlink/internal/errors"
)

// isolate keeps a developer's btlink.yaml and BTLINK_ variables out of
// the test.
func isolate(t *testing.T) {
	t.Helper()
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BTLINK_CONFIG", "")
}

// TestRun_Version verifies --version prints a version string.
func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "btlink ") {
		t.Errorf("output = %q", out.String())
	}
}

// TestRun_Help verifies --help prints usage without error.
func TestRun_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}} {
		t.Run(args[0], func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), args, strings.NewReader(""), &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), "--backend") {
				t.Errorf("usage should list flags:\n%s", out.String())
			}
		})
	}
}

// TestRun_DryRun verifies --dry-run prints the resolved configuration
// with flags taking precedence.
func TestRun_DryRun(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--dry-run", "-b", "TCP", "-P", "127.0.0.1:9000=emulator", "--timeout", "3s", "-vv",
	}, strings.NewReader(""), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"backend: tcp",
		"connect_timeout: 3s",
		"address: 127.0.0.1:9000",
		"name: emulator",
		"verbose: 2",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out.String())
		}
	}
}

// TestRun_Errors verifies bad input is rejected before anything starts.
func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig bool
	}{
		{"unknown flag", []string{"--bogus"}, false},
		{"positional argument", []string{"somehost"}, false},
		{"bad peer", []string{"-b", "tcp", "-P", "=nameless"}, false},
		{"channel out of range", []string{"-b", "rfcomm", "-c", "40", "-P", "00:1A:7D:DA:71:13"}, true},
		{"bad uuid", []string{"-s", "spp"}, true},
		{"tcp without peers", []string{"-b", "tcp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			var out bytes.Buffer
			err := run(context.Background(), append(tt.args, "--dry-run"), strings.NewReader(""), &out)
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *errors.ConfigError
			if got := errors.As(err, &ce); got != tt.wantConfig {
				t.Errorf("ConfigError = %v, want %v (err: %v)", got, tt.wantConfig, err)
			}
		})
	}
}

// TestRun_Interactive drives the console over a TCP backend until quit.
func TestRun_Interactive(t *testing.T) {
	isolate(t)
	var out bytes.Buffer
	in := strings.NewReader("devices\nsend hi\nquit\n")
	err := run(context.Background(), []string{"-b", "tcp", "-P", "127.0.0.1:1=nobody"}, in, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"type 'help'", "no devices found yet", "send: not connected"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
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
