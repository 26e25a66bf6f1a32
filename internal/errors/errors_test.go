package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestTransportError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  TransportError
		want string
	}{
		{
			name: "with address",
			err:  TransportError{Op: "connect", Addr: "AA:BB:CC:DD:EE:FF", Err: fmt.Errorf("host is down")},
			want: "connect AA:BB:CC:DD:EE:FF: host is down",
		},
		{
			name: "no address",
			err:  TransportError{Op: "read", Err: io.ErrUnexpectedEOF},
			want: "read: unexpected EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransportError_Taxonomy(t *testing.T) {
	tests := []struct {
		op          string
		wantConnect bool
		wantIO      bool
	}{
		{"connect", true, false},
		{"read", false, true},
		{"write", false, true},
		{"close", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			err := Wrap(tt.op, "AA:BB", fmt.Errorf("boom"))
			if got := Is(err, ErrConnectFailed); got != tt.wantConnect {
				t.Errorf("Is(ErrConnectFailed) = %v, want %v", got, tt.wantConnect)
			}
			if got := Is(err, ErrIO); got != tt.wantIO {
				t.Errorf("Is(ErrIO) = %v, want %v", got, tt.wantIO)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := Wrap("read", "x", io.EOF)
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap("write", "x", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrap_NestedSentinel(t *testing.T) {
	err := fmt.Errorf("session: %w", Wrap("connect", "AA:BB", ErrAdapterDisabled))
	if !Is(err, ErrConnectFailed) {
		t.Error("should match ErrConnectFailed through fmt wrapping")
	}
	if !Is(err, ErrAdapterDisabled) {
		t.Error("should still match the inner sentinel")
	}
}

func TestIsAdapterError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrAdapterUnavailable, true},
		{fmt.Errorf("scan: %w", ErrAdapterDisabled), true},
		{ErrConnectFailed, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAdapterError(tt.err); got != tt.want {
			t.Errorf("IsAdapterError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "channel",
				Value:   42,
				Message: "out of range 1-30",
				Hint:    "RFCOMM channels are numbered 1 to 30",
			},
			want: "config: --channel=42: out of range 1-30\n  hint: RFCOMM channels are numbered 1 to 30",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "service-uuid",
				Message: "required",
			},
			want: "config: --service-uuid: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	err := Join(ErrIO, ErrTransportClosed)
	if !Is(err, ErrIO) || !Is(err, ErrTransportClosed) {
		t.Errorf("joined error should match both sentinels: %v", err)
	}
}
