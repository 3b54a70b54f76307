package emv

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// AIP is the Application Interchange Profile (tag 82). Only the first byte
// carries capability flags (EMV 4.3 Book 3, C1).
type AIP [2]byte

// ParseAIP requires exactly two bytes.
func ParseAIP(b []byte) (AIP, error) {
	if len(b) != 2 {
		return AIP{}, fmt.Errorf("aip must be 2 bytes, got %d: %w", len(b), ErrMissingData)
	}
	return AIP{b[0], b[1]}, nil
}

// SDA reports static data authentication support (byte 1, b7).
func (a AIP) SDA() bool { return bits.IsSet(a[0], 7) }

// DDA reports dynamic data authentication support (byte 1, b6).
func (a AIP) DDA() bool { return bits.IsSet(a[0], 6) }

// CardholderVerification reports cardholder verification support (byte 1, b5).
func (a AIP) CardholderVerification() bool { return bits.IsSet(a[0], 5) }

// TerminalRiskManagement reports that terminal risk management is to be
// performed (byte 1, b4).
func (a AIP) TerminalRiskManagement() bool { return bits.IsSet(a[0], 4) }

// IssuerAuthentication reports issuer authentication support (byte 1, b3).
func (a AIP) IssuerAuthentication() bool { return bits.IsSet(a[0], 3) }

// CDA reports combined DDA/application cryptogram support (byte 1, b1).
func (a AIP) CDA() bool { return bits.IsSet(a[0], 1) }

// AIPFlag is one named capability and its state.
type AIPFlag struct {
	Name string
	Set  bool
}

// Flags lists the six capabilities in byte order.
func (a AIP) Flags() []AIPFlag {
	return []AIPFlag{
		{"SDA supported", a.SDA()},
		{"DDA supported", a.DDA()},
		{"Cardholder verification supported", a.CardholderVerification()},
		{"Terminal risk management to be performed", a.TerminalRiskManagement()},
		{"Issuer authentication supported", a.IssuerAuthentication()},
		{"CDA supported", a.CDA()},
	}
}

func (a AIP) String() string {
	return fmt.Sprintf("%02X%02X", a[0], a[1])
}
