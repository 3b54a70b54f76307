package emv

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/tlv"
	"golang.org/x/text/encoding/charmap"
)

// Format selects how a data object value is displayed.
type Format int

const (
	FormatHex  Format = iota // upper-case hex dump
	FormatText               // ISO-8859-1 text
	FormatDate               // 3-byte BCD YYMMDD shown as YYYY-MM-DD
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatDate:
		return "date"
	default:
		return "hex"
	}
}

// TagInfo is the dictionary entry of a data object.
type TagInfo struct {
	Name   string
	Format Format
}

// EMV 4.3 Book 3, Annex A. Keys are the tag bytes read as a big-endian integer.
var dictionary = map[uint64]TagInfo{
	0x4F:   {"Application Identifier (AID)", FormatHex},
	0x50:   {"Application Label", FormatText},
	0x56:   {"Track 1 Data", FormatHex},
	0x57:   {"Track 2 Equivalent Data", FormatHex},
	0x5A:   {"Application Primary Account Number (PAN)", FormatHex},
	0x5F20: {"Cardholder Name", FormatText},
	0x5F24: {"Application Expiration Date", FormatDate},
	0x5F25: {"Application Effective Date", FormatDate},
	0x5F28: {"Issuer Country Code", FormatHex},
	0x5F2D: {"Language Preference", FormatText},
	0x5F30: {"Service Code", FormatHex},
	0x5F34: {"Application Primary Account Number (PAN) Sequence Number", FormatHex},
	0x82:   {"Application Interchange Profile", FormatHex},
	0x84:   {"Dedicated File (DF) Name", FormatHex},
	0x87:   {"Application Priority Indicator", FormatHex},
	0x88:   {"Short File Identifier (SFI)", FormatHex},
	0x8C:   {"Card Risk Management Data Object List 1 (CDOL1)", FormatHex},
	0x8D:   {"Card Risk Management Data Object List 2 (CDOL2)", FormatHex},
	0x8E:   {"Cardholder Verification Method (CVM) List", FormatHex},
	0x8F:   {"Certification Authority Public Key Index", FormatHex},
	0x90:   {"Issuer Public Key Certificate", FormatHex},
	0x92:   {"Issuer Public Key Remainder", FormatHex},
	0x93:   {"Signed Static Application Data", FormatHex},
	0x94:   {"Application File Locator (AFL)", FormatHex},
	0x9F07: {"Application Usage Control", FormatHex},
	0x9F08: {"Application Version Number", FormatHex},
	0x9F0D: {"Issuer Action Code - Default", FormatHex},
	0x9F0E: {"Issuer Action Code - Denial", FormatHex},
	0x9F0F: {"Issuer Action Code - Online", FormatHex},
	0x9F12: {"Application Preferred Name", FormatText},
	0x9F1F: {"Track 1 Discretionary Data", FormatHex},
	0x9F32: {"Issuer Public Key Exponent", FormatHex},
	0x9F38: {"Processing Options Data Object List (PDOL)", FormatHex},
	0x9F42: {"Application Currency Code", FormatHex},
	0x9F44: {"Application Currency Exponent", FormatHex},
	0x9F46: {"ICC Public Key Certificate", FormatHex},
	0x9F47: {"ICC Public Key Exponent", FormatHex},
	0x9F48: {"ICC Public Key Remainder", FormatHex},
	0x9F49: {"Dynamic Data Authentication Data Object List (DDOL)", FormatHex},
	0x9F4A: {"Static Data Authentication Tag List", FormatHex},
	0x9F62: {"PCVC3 (Track1)", FormatHex},
	0x9F63: {"PUNATC (Track1)", FormatHex},
	0x9F64: {"NATC (Track1)", FormatHex},
	0x9F65: {"PCVC3 (Track2)", FormatHex},
	0x9F66: {"Terminal Transaction Qualifiers (TTQ)", FormatHex},
	0x9F67: {"NATC (Track2)", FormatHex},
	0x9F68: {"Card Additional Processes", FormatHex},
	0x9F6B: {"Track 2 Data/Card CVM Limit", FormatHex},
	0x9F6C: {"Card Transaction Qualifiers (CTQ)", FormatHex},
}

// Lookup returns the dictionary entry for tag. Unknown tags are named after
// their own hex value and displayed as hex.
func Lookup(tag tlv.Tag) TagInfo {
	if info, ok := dictionary[tag.Uint()]; ok {
		return info
	}
	return TagInfo{Name: tag.String(), Format: FormatHex}
}

// Display renders value according to the format. Values the format cannot
// represent fall back to hex.
func (f Format) Display(value []byte) string {
	switch f {
	case FormatText:
		if text, err := charmap.ISO8859_1.NewDecoder().Bytes(value); err == nil {
			return string(text)
		}
	case FormatDate:
		if date, ok := bcdDate(value); ok {
			return date
		}
	}
	return fmt.Sprintf("%X", value)
}

// Render returns "<name>: <value>" for a data object. Constructed objects
// are shown as the hex of their encoded children.
func Render(n tlv.Node) string {
	info := Lookup(n.Tag())

	value, err := n.Value()
	if err != nil {
		parts, _ := n.Parts()
		return fmt.Sprintf("%s: %X", info.Name, tlv.EncodeAll(parts...))
	}
	return fmt.Sprintf("%s: %s", info.Name, info.Format.Display(value))
}

func bcdDate(b []byte) (string, bool) {
	if len(b) != 3 {
		return "", false
	}
	var d [3]int
	for i, v := range b {
		hi, lo := int(v>>4), int(v&0x0F)
		if hi > 9 || lo > 9 {
			return "", false
		}
		d[i] = hi*10 + lo
	}
	return fmt.Sprintf("%04d-%02d-%02d", 2000+d[0], d[1], d[2]), true
}
