package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Transports(t *testing.T) {
	c := New()

	c.TransportOpened()
	c.TransportOpened()
	if c.LiveTransports() != 2 {
		t.Errorf("live = %d, want 2", c.LiveTransports())
	}
	if c.TotalTransports() != 2 {
		t.Errorf("total = %d, want 2", c.TotalTransports())
	}

	c.TransportClosed()
	if c.LiveTransports() != 1 {
		t.Errorf("live = %d, want 1", c.LiveTransports())
	}
	if c.TotalTransports() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalTransports())
	}
}

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionStarted()
	c.SessionStarted()
	c.ConnectFailed()
	c.WriteRejected()

	if c.TotalSessions() != 2 {
		t.Errorf("sessions = %d, want 2", c.TotalSessions())
	}
	if c.ConnectFailures() != 1 {
		t.Errorf("connect failures = %d, want 1", c.ConnectFailures())
	}
	if c.RejectedWrites() != 1 {
		t.Errorf("rejected writes = %d, want 1", c.RejectedWrites())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(13)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 13 {
		t.Errorf("bytes out = %d, want 13", c.TotalBytesOut())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if got := c.Snapshot().LastErrorMessage; got != "second error" {
		t.Errorf("last error = %q", got)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.TransportOpened()
	c.DeviceFound()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.TransportsLive != 1 {
		t.Errorf("JSON live = %d", snap.TransportsLive)
	}
	if snap.DevicesFound != 1 {
		t.Errorf("JSON devices = %d", snap.DevicesFound)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.TransportOpened()
	c.TransportClosed()
	c.SessionStarted()
	c.ConnectFailed()
	c.WriteRejected()
	c.DeviceFound()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.RecordError("test")

	if c.LiveTransports() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.TransportsLive != 0 {
		t.Error("nil snapshot should be zero")
	}

	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
