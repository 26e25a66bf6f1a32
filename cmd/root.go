// Package cmd wires up the CLI flags and starts the interactive
// session manager.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"btlink/config"
	"btlink/internal/console"
	"btlink/internal/errors"
	"btlink/internal/core"
	"btlink/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X btlink/cmd.version=2.0.0"
var version = "0.1.0" //nolint:gochecknoglobals

// options holds the raw flag values.  Only flags the user actually set
// override the loaded configuration.
type options struct {
	configPath    string
	backend       string
	adapter       string
	serviceUUID   string
	channel       int
	timeout       time.Duration
	peers         []string
	greeting      string
	resend        string
	enableAdapter bool
	logFile       string
	verbose       int

	showVersion bool
	showHelp    bool
	dryRun      bool
}

// Execute parses args and runs btlink on the process's stdin/stdout.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdin, os.Stdout)
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs, opts := newFlagSet(out)

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.showHelp {
		printUsage(out, fs)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(out, "btlink %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── configuration ────────────────────────────────────────────
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, fs, opts); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.dryRun {
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	defer logger.Close() //nolint:errcheck
	logger.SetFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)

	con, restore, err := newConsole(in, out)
	if err != nil {
		return err
	}
	if restore != nil {
		defer restore() //nolint:errcheck
		logger.SetOutput(con.Output())
	}

	app, err := core.Build(ctx, cfg, logger, con)
	if err != nil {
		return err
	}
	con.Attach(console.Controls{
		Controller:    app.Supervisor,
		Scanner:       app.Scanner,
		EnableAdapter: app.EnableAdapter,
		Metrics:       app.Metrics,
	})
	con.OnStatus(fmt.Sprintf("btlink %s (%s backend), type 'help' for commands", version, cfg.Backend))
	if err := app.CheckAdapter(ctx); err != nil && !errors.Is(err, errors.ErrAdapterDisabled) {
		con.OnStatus(fmt.Sprintf("adapter: %v", err))
	}

	return app.Run(ctx, con)
}

// ── helpers ──────────────────────────────────────────────────────────

func newFlagSet(out io.Writer) (*flag.FlagSet, *options) {
	opts := &options{}
	fs := flag.NewFlagSet("btlink", flag.ContinueOnError)
	fs.SetOutput(out)

	// ── transport ────────────────────────────────────────────────
	fs.StringVarP(&opts.configPath, "config", "f", "", "Config file (default ./btlink.yaml)")
	fs.StringVarP(&opts.backend, "backend", "b", config.DefaultBackend, "Transport backend: bluez, rfcomm, tcp")
	fs.StringVarP(&opts.adapter, "adapter", "a", config.DefaultAdapter, "Local adapter (bluez)")
	fs.StringVarP(&opts.serviceUUID, "service-uuid", "s", config.DefaultServiceUUID, "Service identifier both peers agree on")
	fs.IntVarP(&opts.channel, "channel", "c", config.DefaultChannel, "RFCOMM channel (rfcomm)")
	fs.DurationVarP(&opts.timeout, "timeout", "w", config.DefaultConnectTimeout, "Connect timeout, 0 for the platform default")
	fs.StringArrayVarP(&opts.peers, "peer", "P", nil, "Peer ADDRESS[=Name] (repeatable; rfcomm, tcp)")
	fs.BoolVar(&opts.enableAdapter, "enable-adapter", false, "Power the adapter on at startup if it is off")

	// ── payloads ─────────────────────────────────────────────────
	fs.StringVar(&opts.greeting, "greeting", config.DefaultGreeting, "Written once connected (empty disables)")
	fs.StringVar(&opts.resend, "resend", config.DefaultResend, "Written when the connected device is selected again")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&opts.logFile, "log-file", "", "Also log to this file (rotated)")

	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the resolved configuration and exit")

	fs.Usage = func() { printUsage(out, fs) }
	return fs, opts
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, opts *options) error {
	if fs.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if fs.Changed("adapter") {
		cfg.Adapter = opts.adapter
	}
	if fs.Changed("service-uuid") {
		cfg.ServiceUUID = opts.serviceUUID
	}
	if fs.Changed("channel") {
		cfg.Channel = opts.channel
	}
	if fs.Changed("timeout") {
		cfg.ConnectTimeout = opts.timeout
	}
	if fs.Changed("enable-adapter") {
		cfg.EnableAdapter = opts.enableAdapter
	}
	if fs.Changed("greeting") {
		cfg.Greeting = opts.greeting
	}
	if fs.Changed("resend") {
		cfg.Resend = opts.resend
	}
	if fs.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if fs.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if fs.Changed("peer") {
		cfg.Peers = cfg.Peers[:0]
		for _, spec := range opts.peers {
			p, err := config.ParsePeer(spec)
			if err != nil {
				return fmt.Errorf("peer: %w", err)
			}
			cfg.Peers = append(cfg.Peers, p)
		}
	}
	return nil
}

// newConsole uses line editing when in is a terminal.  restore is nil
// otherwise.
func newConsole(in io.Reader, out io.Writer) (*console.Console, func() error, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		rw := struct {
			io.Reader
			io.Writer
		}{in, out}
		return console.NewTerminal(int(f.Fd()), rw)
	}
	return console.New(in, out), nil, nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `btlink - Bluetooth point-to-point session manager v%s

Scan for nearby devices, pick one, and exchange text with it over a
single serial-style stream.

Usage:
  btlink [options]

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  btlink                                      BlueZ on hci0, SPP service
  btlink -b rfcomm -c 1 -P 00:1A:7D:DA:71:13  Raw RFCOMM to a known device
  btlink -b tcp -P 127.0.0.1:9000=emulator    Through a TCP bridge
  btlink -vv --log-file btlink.log            Verbose, with a rotating log
`)
}
