//go:build linux

package transport

import (
	"context"
	"testing"

	"btlink/internal/errors"
)

func TestBdaddr(t *testing.T) {
	got := bdaddr([6]byte{0x00, 0x1A, 0x7D, 0xDA, 0x71, 0x13})
	want := [6]uint8{0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00}
	if got != want {
		t.Errorf("bdaddr = %x, want %x", got, want)
	}
}

func TestRFCOMMDialer_BadAddress(t *testing.T) {
	d := &RFCOMMDialer{Channel: 3}
	_, err := d.Dial(context.Background(), Request{Address: "not-a-mac"})
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
	if errors.IsAdapterError(err) {
		t.Errorf("address error misclassified as adapter error: %v", err)
	}
}
