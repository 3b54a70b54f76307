package iso7816

import (
	"fmt"

	"github.com/gregLibert/emv-reader/pkg/bits"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// File control information returned by SELECT (ISO/IEC 7816-4, 7.4).
// P2 bits 4-3 choose the shape of the answer:
//
//	00  FCI: optional 6F wrapper holding 62 and/or 64, or a flat list
//	01  FCP template 62 (mandatory)
//	10  FMD template 64 (mandatory)
//	11  no data
//
// EMV cards answer with a flat 6F holding 84 and the A5 proprietary template.

// FCPTemplate (File Control Parameters) - Tag '62'.
type FCPTemplate struct {
	DataSizeExcludingStruct []byte `tlv:"80" fmt:"int"`
	TotalFileSize           []byte `tlv:"81" fmt:"int"`
	FileDescriptor          []byte `tlv:"82"`
	FileIdentifier          []byte `tlv:"83"`
	DFName                  []byte `tlv:"84" fmt:"ascii"`
	ProprietaryInfoRaw      []byte `tlv:"85"`
	SecurityAttrProprietary []byte `tlv:"86"`
	ExtFileControlInfoID    []byte `tlv:"87"`
	ShortEFIdentifier       []byte `tlv:"88"`
	LifeCycleStatus         []byte `tlv:"8A"`
	SecAttrRefExpanded      []byte `tlv:"8B"`
	SecurityAttrCompact     []byte `tlv:"8C"`
	SecEnvTemplateID        []byte `tlv:"8D"`
	ChannelSecurityAttr     []byte `tlv:"8E"`
	SecAttrTemplateData     []byte `tlv:"A0"`
	SecAttrTemplateProp     []byte `tlv:"A1"`
	OneOrMorePairs          []byte `tlv:"A2"`
	ProprietaryDataBER      []byte `tlv:"A5"`
	SecurityAttrExpanded    []byte `tlv:"AB"`
	CryptoMechanismID       []byte `tlv:"AC"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// FMDTemplate (File Management Data) - Tag '64'.
type FMDTemplate struct {
	ApplicationIdentifier []byte `tlv:"84" fmt:"ascii"`
	ApplicationLabel      []byte `tlv:"50" fmt:"ascii"`
	ProprietaryData53     []byte `tlv:"53"`
	ProprietaryData73     []byte `tlv:"73"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// FileControlInfo represents the parsed result of a SELECT command.
type FileControlInfo struct {
	FCP *FCPTemplate
	FMD *FMDTemplate

	// Unknown holds what neither template claimed in a flat answer.
	Unknown []tlv.Node

	ProprietaryRawData []byte
}

// GetAID returns the DF name (84) from FCP, falling back to FMD.
func (fci *FileControlInfo) GetAID() []byte {
	if fci.FCP != nil && len(fci.FCP.DFName) > 0 {
		return fci.FCP.DFName
	}
	if fci.FMD != nil && len(fci.FMD.ApplicationIdentifier) > 0 {
		return fci.FMD.ApplicationIdentifier
	}
	return nil
}

// ApplicationLabel returns the Application Label (Tag 50) from FMD.
func (fci *FileControlInfo) ApplicationLabel() []byte {
	if fci.FMD != nil {
		return fci.FMD.ApplicationLabel
	}
	return nil
}

// ParseSelectData parses the data field of a SELECT response according to P2.
// It returns nil without error when there is nothing to parse.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	nodes, err := tlv.DecodeAll(data)
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}

	fci := &FileControlInfo{
		FCP: &FCPTemplate{},
		FMD: &FMDTemplate{},
	}

	switch bits.GetRange(p2, 4, 3) {
	case 1:
		return fci, requireTemplate(nodes, tlv.Tag{0x62}, fci.FCP)

	case 2:
		return fci, requireTemplate(nodes, tlv.Tag{0x64}, fci.FMD)

	case 0:
		working := nodes
		for _, n := range nodes {
			if n.Is(tlv.Tag{0x6F}) && n.Encoding() == tlv.Constructed {
				working, _ = n.Parts()
				break
			}
		}

		foundFCP, err := unmarshalTemplate(working, tlv.Tag{0x62}, fci.FCP)
		if err != nil {
			return nil, err
		}
		foundFMD, err := unmarshalTemplate(working, tlv.Tag{0x64}, fci.FMD)
		if err != nil {
			return nil, err
		}
		if foundFCP || foundFMD {
			return fci, nil
		}

		// Flat answer: FCP takes what it knows, FMD gets the rest.
		if err := tlv.UnmarshalNodes(working, fci.FCP); err != nil {
			return nil, fmt.Errorf("flat FCP unmarshal failed: %w", err)
		}
		rest := fci.FCP.Unknown
		fci.FCP.Unknown = nil

		if err := tlv.UnmarshalNodes(rest, fci.FMD); err != nil {
			return nil, fmt.Errorf("flat FMD unmarshal failed: %w", err)
		}
		fci.Unknown = fci.FMD.Unknown
		fci.FMD.Unknown = nil
		return fci, nil

	default:
		return nil, nil
	}
}

func requireTemplate(nodes []tlv.Node, tag tlv.Tag, target interface{}) error {
	found, err := unmarshalTemplate(nodes, tag, target)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mandatory tag '%s' not found", tag)
	}
	return nil
}

func unmarshalTemplate(nodes []tlv.Node, tag tlv.Tag, target interface{}) (bool, error) {
	for _, n := range nodes {
		if !n.Is(tag) {
			continue
		}
		parts, err := n.Parts()
		if err != nil {
			return false, fmt.Errorf("template %s: %w", tag, err)
		}
		if err := tlv.UnmarshalNodes(parts, target); err != nil {
			return false, fmt.Errorf("template %s: %w", tag, err)
		}
		return true, nil
	}
	return false, nil
}
