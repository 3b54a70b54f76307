package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// File Control Information returned by SELECT of the PSE or of an
// application (EMV 4.3 Book 1, 11.3.4).

var tagFCITemplate = tlv.Tag{0x6F}

// FCI is the content of the FCI Template (6F).
type FCI struct {
	DFName              []byte                  `tlv:"84" fmt:"ascii"`
	ProprietaryTemplate *FCIProprietaryTemplate `tlv:"A5"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// FCIProprietaryTemplate is the A5 template. The PSE answer carries the SFI
// of the directory (88), an application answer its label and PDOL.
type FCIProprietaryTemplate struct {
	ApplicationLabel []byte `tlv:"50" fmt:"ascii"`

	ApplicationPriorityIndicator []byte `tlv:"87" fmt:"int"`
	SFI                          []byte `tlv:"88"`
	PDOL                         []byte `tlv:"9F38"`
	LanguagePreference           []byte `tlv:"5F2D" fmt:"ascii"`
	IssuerCodeTableIndex         []byte `tlv:"9F11" fmt:"int"`
	ApplicationPreferredName     []byte `tlv:"9F12" fmt:"ascii"`

	IssuerDiscretionaryData *FCIIssuerDiscretionaryData `tlv:"BF0C"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// FCIIssuerDiscretionaryData is the BF0C template, mostly bank and country
// information.
type FCIIssuerDiscretionaryData struct {
	LogEntry                           []byte `tlv:"9F4D"`
	IssuerIdentificationNumberExtended []byte `tlv:"9F0C"`
	IssuerCountryCodeAlpha3            []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2            []byte `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                 []byte `tlv:"5F54" fmt:"ascii"`
	IBAN                               []byte `tlv:"5F53" fmt:"ascii"`
	IssuerURL                          []byte `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber         []byte `tlv:"42"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// ParseFCI maps SELECT response data onto an FCI. The 6F wrapper is
// optional. Bytes after a 6F template are ignored.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data cannot be parsed: %w", ErrMissingData)
	}

	root, _, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("fci: %w", err)
	}

	var nodes []tlv.Node
	if root.Is(tagFCITemplate) {
		nodes, _ = root.Parts()
	} else if nodes, err = tlv.DecodeAll(data); err != nil {
		return nil, fmt.Errorf("fci: %w", err)
	}

	fci := &FCI{}
	if err := tlv.UnmarshalNodes(nodes, fci); err != nil {
		return nil, fmt.Errorf("failed to map structure: %w", err)
	}

	return fci, nil
}

// Proprietary returns the A5 template, failing with ErrMissingData when the
// card left it out.
func (f *FCI) Proprietary() (*FCIProprietaryTemplate, error) {
	if f.ProprietaryTemplate == nil {
		return nil, fmt.Errorf("fci has no A5 template: %w", ErrMissingData)
	}
	return f.ProprietaryTemplate, nil
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)

	if pt := f.ProprietaryTemplate; pt != nil {
		tlv.WriteStructFields(&sb, "Proprietary", pt)
		tlv.WriteStructFields(&sb, "Discretionary", pt.IssuerDiscretionaryData)
	}

	return strings.TrimRight(sb.String(), "\n")
}
