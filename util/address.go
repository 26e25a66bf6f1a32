package util

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeAddress trims an address.  Device addresses are also
// upper-cased so that "aa:bb:cc:dd:ee:ff" and "AA:BB:CC:DD:EE:FF"
// compare equal; other identifiers such as host:port keep their case.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if IsMAC(addr) {
		return strings.ToUpper(addr)
	}
	return addr
}

// ParseMAC parses a colon-separated 48-bit device address into bytes
// in the order written.
func ParseMAC(addr string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(strings.TrimSpace(addr), ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid device address %q: want XX:XX:XX:XX:XX:XX", addr)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return out, fmt.Errorf("invalid device address %q: octet %q", addr, p)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid device address %q: octet %q", addr, p)
		}
		out[i] = byte(b)
	}
	return out, nil
}

// IsMAC reports whether addr is a well-formed device address.
func IsMAC(addr string) bool {
	_, err := ParseMAC(addr)
	return err == nil
}
