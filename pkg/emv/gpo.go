package emv

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// GET PROCESSING OPTIONS (CLA 80, INS A8). The command data is the
// Command Template 83 holding the PDOL related data. No terminal data is
// available here, so every requested field is zero filled.

var (
	tagCommandTemplate = tlv.Tag{0x83}
	tagResponseFormat1 = tlv.Tag{0x80}
	tagResponseFormat2 = tlv.Tag{0x77}
	tagAIP             = tlv.Tag{0x82}
	tagAFL             = tlv.Tag{0x94}
)

// NewGPOCommand builds GET PROCESSING OPTIONS for the given PDOL, which may
// be empty.
func NewGPOCommand(pdol DOL) *iso7816.CommandAPDU {
	cla, _ := iso7816.NewClass(0x80)
	ins := iso7816.MustInstruction(iso7816.INS_GET_PROCESSING_OPTIONS)
	data := tlv.MustPrimitive(tagCommandTemplate, make([]byte, pdol.TotalLength())).Encode()
	// Case 4 with Le 00 as EMV Book 3 defines GPO, unlike SELECT. Under T=0
	// the PC/SC layer drops Le and the Client follows the 61XX.
	return iso7816.NewCommandAPDU(cla, ins, 0x00, 0x00, data, iso7816.MaxShortLe)
}

// ProcessingOptions is the decoded GPO response.
type ProcessingOptions struct {
	Template tlv.Tag // 80 or 77
	AIP      AIP
	AFL      []AFLEntry
}

// ParseProcessingOptions accepts both response formats: 80 holding the AIP
// followed by the AFL, or 77 holding the 82 and 94 objects.
func ParseProcessingOptions(data []byte) (*ProcessingOptions, error) {
	root, _, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("gpo response: %w", err)
	}

	var aipBytes, aflBytes []byte
	switch {
	case root.Is(tagResponseFormat1):
		value, _ := root.Value()
		if len(value) < 2 {
			return nil, fmt.Errorf("format 1 response of %d bytes: %w", len(value), ErrMissingData)
		}
		aipBytes, aflBytes = value[:2], value[2:]

	case root.Is(tagResponseFormat2):
		if aipBytes, err = root.FindValue(tagAIP); err != nil {
			return nil, fmt.Errorf("format 2 response without AIP: %w: %w", ErrMissingData, err)
		}
		if aflBytes, err = root.FindValue(tagAFL); err != nil {
			return nil, fmt.Errorf("format 2 response without AFL: %w: %w", ErrMissingData, err)
		}

	default:
		return nil, fmt.Errorf("gpo response tag %s: %w", root.Tag(), ErrUnexpectedTemplate)
	}

	aip, err := ParseAIP(aipBytes)
	if err != nil {
		return nil, err
	}
	afl, err := ParseAFL(aflBytes)
	if err != nil {
		return nil, err
	}

	return &ProcessingOptions{Template: root.Tag(), AIP: aip, AFL: afl}, nil
}
