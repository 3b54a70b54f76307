package reader

import (
	"errors"
	"testing"

	"github.com/ebfe/scard"
)

func TestPickReader(t *testing.T) {
	readers := []string{"Yubico YubiKey OTP+FIDO+CCID 00 00", "ACS ACR39U ICC Reader 01 00"}

	tests := []struct {
		name    string
		want    string
		got     string
		wantErr error
	}{
		{name: "First reader by default", want: "", got: readers[0]},
		{name: "Case insensitive substring", want: "acr39u", got: readers[1]},
		{name: "No match", want: "omnikey", wantErr: ErrUnknownName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickReader(readers, tt.want)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("pickReader() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.got {
				t.Errorf("pickReader() = %q, want %q", got, tt.got)
			}
		})
	}

	if _, err := pickReader(nil, ""); !errors.Is(err, ErrNoReader) {
		t.Errorf("pickReader(nil) error = %v, want %v", err, ErrNoReader)
	}
}

func TestProtocol(t *testing.T) {
	tests := map[string]scard.Protocol{
		"t0":  scard.ProtocolT0,
		"t1":  scard.ProtocolT1,
		"any": scard.ProtocolT0 | scard.ProtocolT1,
	}
	for name, want := range tests {
		if got := protocol(name); got != want {
			t.Errorf("protocol(%q) = %v, want %v", name, got, want)
		}
	}
}
