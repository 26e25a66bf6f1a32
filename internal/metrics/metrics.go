// Package metrics provides lightweight, lock-free counters for tracking
// runtime statistics of the session manager.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a btlink process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	transportsLive  atomic.Int64
	transportsTotal atomic.Int64
	sessionsTotal   atomic.Int64
	connectFailures atomic.Int64
	bytesIn         atomic.Int64
	bytesOut        atomic.Int64
	writesRejected  atomic.Int64
	devicesFound    atomic.Int64
	errorsTotal     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Transport metrics ────────────────────────────────────────────────

// TransportOpened increments both the live and total counters.
func (c *Collector) TransportOpened() {
	if c == nil {
		return
	}
	c.transportsLive.Add(1)
	c.transportsTotal.Add(1)
}

// TransportClosed decrements the live transport counter.
func (c *Collector) TransportClosed() {
	if c == nil {
		return
	}
	c.transportsLive.Add(-1)
}

// LiveTransports returns the number of currently open transports.
// Outside of a switch-over it is never above one.
func (c *Collector) LiveTransports() int64 {
	if c == nil {
		return 0
	}
	return c.transportsLive.Load()
}

// TotalTransports returns the lifetime transport count.
func (c *Collector) TotalTransports() int64 {
	if c == nil {
		return 0
	}
	return c.transportsTotal.Load()
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionStarted records a new connection attempt.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsTotal.Add(1)
}

// TotalSessions returns the number of sessions ever created.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ConnectFailed records a failed connection attempt.
func (c *Collector) ConnectFailed() {
	if c == nil {
		return
	}
	c.connectFailures.Add(1)
}

// ConnectFailures returns the number of failed connection attempts.
func (c *Collector) ConnectFailures() int64 {
	if c == nil {
		return 0
	}
	return c.connectFailures.Load()
}

// WriteRejected records a write refused because no session was connected.
func (c *Collector) WriteRejected() {
	if c == nil {
		return
	}
	c.writesRejected.Add(1)
}

// RejectedWrites returns the number of refused writes.
func (c *Collector) RejectedWrites() int64 {
	if c == nil {
		return 0
	}
	return c.writesRejected.Load()
}

// DeviceFound records a newly discovered device.
func (c *Collector) DeviceFound() {
	if c == nil {
		return
	}
	c.devicesFound.Add(1)
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the peer.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the peer.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	TransportsLive   int64  `json:"transports_live"`
	TransportsTotal  int64  `json:"transports_total"`
	SessionsTotal    int64  `json:"sessions_total"`
	ConnectFailures  int64  `json:"connect_failures"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	WritesRejected   int64  `json:"writes_rejected"`
	DevicesFound     int64  `json:"devices_found"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		TransportsLive:  c.transportsLive.Load(),
		TransportsTotal: c.transportsTotal.Load(),
		SessionsTotal:   c.sessionsTotal.Load(),
		ConnectFailures: c.connectFailures.Load(),
		BytesIn:         c.bytesIn.Load(),
		BytesOut:        c.bytesOut.Load(),
		WritesRejected:  c.writesRejected.Load(),
		DevicesFound:    c.devicesFound.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
