// Package console is the interactive front end.  It turns typed
// commands into scan, select and write requests and renders the
// notifications the core sends back.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"btlink/internal/device"
	"btlink/internal/errors"
	"btlink/internal/metrics"
	"btlink/internal/supervisor"
)

// Prompt is shown before each command when attached to a terminal.
const Prompt = "btlink> "

// Controller is the session side the console drives.
type Controller interface {
	SelectTarget(addr string) error
	Write(p []byte) error
	State() supervisor.State
	Current() (device.Record, bool)
}

// Scanner is the discovery side the console drives.
type Scanner interface {
	StartScan(ctx context.Context) error
	StopScan()
	Scanning() bool
	Registry() *device.Registry
}

// Controls are attached once the core has been built.
type Controls struct {
	Controller    Controller
	Scanner       Scanner
	EnableAdapter func(ctx context.Context) error // nil when unsupported
	Metrics       *metrics.Collector
}

// lineReader yields one command line at a time.
type lineReader interface {
	ReadLine() (string, error)
}

// Console reads commands and prints notifications.  It implements
// notify.Notifier; notifications may arrive from any goroutine.
type Console struct {
	lines lineReader

	mu  sync.Mutex // serialises writes to out
	out io.Writer

	ctl Controls
}

// New returns a console reading plain lines from in.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{lines: &scannerReader{s: bufio.NewScanner(in)}, out: out}
}

// NewTerminal puts the terminal on fd into raw mode and returns a
// console with line editing and history.  The returned restore func
// puts the terminal back.
func NewTerminal(fd int, rw io.ReadWriter) (*Console, func() error, error) {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("raw terminal: %w", err)
	}
	t := term.NewTerminal(rw, Prompt)
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h) //nolint:errcheck
	}
	restore := func() error { return term.Restore(fd, old) }
	return &Console{lines: t, out: t}, restore, nil
}

// Output returns the writer notifications go to.  Loggers sharing the
// terminal should write here so that the prompt is redrawn.
func (c *Console) Output() io.Writer { return c.out }

// Attach connects the console to the core.
func (c *Console) Attach(ctl Controls) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctl = ctl
}

// ── Notifier ─────────────────────────────────────────────────────────

func (c *Console) OnDeviceDiscovered(rec device.Record) {
	n := 0
	if reg := c.controls().Scanner; reg != nil {
		n = reg.Registry().Len()
	}
	c.printf("[%d] %s  bond:%s\n", n, rec.Label(), rec.Bond)
}

func (c *Console) OnStatus(text string) {
	c.printf("* %s\n", text)
}

func (c *Console) OnAdapterStateRequired(enabled bool) {
	if enabled {
		c.printf("! bluetooth is off: turn it on (or type 'enable') and scan again\n")
		return
	}
	c.printf("! bluetooth should be turned off\n")
}

func (c *Console) OnData(addr string, p []byte) {
	c.printf("< %s: %s\n", addr, strings.TrimRight(string(p), "\r\n"))
}

// ── Command loop ─────────────────────────────────────────────────────

// Run executes commands until quit, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	type result struct {
		line string
		err  error
	}
	lines := make(chan result)
	go func() {
		for {
			line, err := c.lines.ReadLine()
			select {
			case lines <- result{line, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-lines:
			if r.err == io.EOF {
				return nil
			}
			if r.err != nil {
				return r.err
			}
			if quit := c.Exec(ctx, r.line); quit {
				return nil
			}
		}
	}
}

// Exec runs one command line and reports whether the user asked to
// quit.  Command errors are printed, not returned.
func (c *Console) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	ctl := c.controls()

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		c.printf("%s", helpText)

	case "scan":
		if ctl.Scanner == nil {
			c.printf("scanning is not available\n")
			return false
		}
		if err := ctl.Scanner.StartScan(ctx); err != nil {
			c.report("scan", err)
		}

	case "stop":
		if ctl.Scanner != nil {
			ctl.Scanner.StopScan()
		}

	case "devices", "ls":
		c.listDevices(ctl)

	case "select", "connect":
		c.selectTarget(ctl, arg)

	case "send":
		if ctl.Controller == nil {
			return false
		}
		if err := ctl.Controller.Write([]byte(arg)); err != nil {
			c.report("send", err)
		}

	case "status":
		c.status(ctl)

	case "stats":
		c.printf("%s\n", ctl.Metrics.JSON())

	case "enable":
		if ctl.EnableAdapter == nil {
			c.printf("this backend cannot power the adapter on\n")
			return false
		}
		if err := ctl.EnableAdapter(ctx); err != nil {
			c.report("enable", err)
			return false
		}
		c.printf("* adapter powered on\n")

	default:
		c.printf("unknown command %q (type 'help')\n", cmd)
	}
	return false
}

func (c *Console) selectTarget(ctl Controls, arg string) {
	if ctl.Controller == nil {
		return
	}
	if arg == "" {
		c.printf("usage: select <number|address>\n")
		return
	}
	addr := arg
	if n, err := strconv.Atoi(arg); err == nil && ctl.Scanner != nil {
		list := ctl.Scanner.Registry().List()
		if n < 1 || n > len(list) {
			c.printf("no device [%d] (type 'devices')\n", n)
			return
		}
		addr = list[n-1].Address
	}
	if err := ctl.Controller.SelectTarget(addr); err != nil {
		c.report("select", err)
	}
}

func (c *Console) listDevices(ctl Controls) {
	if ctl.Scanner == nil {
		return
	}
	list := ctl.Scanner.Registry().List()
	if len(list) == 0 {
		c.printf("no devices found yet (type 'scan')\n")
		return
	}
	for i, rec := range list {
		c.printf("[%d] %s  bond:%s\n", i+1, rec.Label(), rec.Bond)
	}
}

func (c *Console) status(ctl Controls) {
	if ctl.Controller == nil {
		return
	}
	state := ctl.Controller.State()
	if rec, ok := ctl.Controller.Current(); ok {
		c.printf("%s: %s\n", state, rec.Label())
	} else {
		c.printf("%s\n", state)
	}
	if ctl.Scanner != nil && ctl.Scanner.Scanning() {
		c.printf("scanning\n")
	}
}

func (c *Console) report(op string, err error) {
	switch {
	case errors.Is(err, errors.ErrAdapterDisabled):
		c.printf("%s: %v\n", op, err)
		c.OnAdapterStateRequired(true)
	case errors.Is(err, errors.ErrNotConnected):
		c.printf("%s: not connected (select a device first)\n", op)
	default:
		c.printf("%s: %v\n", op, err)
	}
}

func (c *Console) controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctl
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// scannerReader adapts bufio.Scanner to lineReader.
type scannerReader struct {
	s *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if r.s.Scan() {
		return r.s.Text(), nil
	}
	if err := r.s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

const helpText = `commands:
  scan                 discover nearby devices
  stop                 stop discovery
  devices              list discovered devices
  select <n|address>   connect to a device (again: send the resend payload)
  send <text>          write text to the connected device
  status               show the session state
  stats                show counters as JSON
  enable               power the adapter on
  quit                 leave
`
