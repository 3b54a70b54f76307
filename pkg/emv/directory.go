package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// Payment System Directory records (EMV 4.3 Book 1, 12.2.3): a Record
// Template 70 holding one Application Template 61 per application.

var tagRecordTemplate = tlv.Tag{0x70}

type DirectoryDiscretionaryTemplate struct {
	ApplicationSelectionRegisteredProprietaryData []byte `tlv:"9F0A"`
	IssuerCountryCodeAlpha3                       []byte `tlv:"5F56" fmt:"ascii"`
	IssuerCountryCodeAlpha2                       []byte `tlv:"5F55" fmt:"ascii"`
	BankIdentifierCode                            []byte `tlv:"5F54" fmt:"ascii"`
	IBAN                                          []byte `tlv:"5F53" fmt:"ascii"`
	IssuerURL                                     []byte `tlv:"5F50" fmt:"ascii"`
	IssuerIdentificationNumber                    []byte `tlv:"42"`
	IssuerIdentificationNumberExtended            []byte `tlv:"9F0C"`
	LogEntry                                      []byte `tlv:"9F4D"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// ApplicationTemplate (Tag '61') represents an entry in the Payment System Directory.
// It contains the necessary information to select a specific application.
type ApplicationTemplate struct {
	AID                          []byte                         `tlv:"4F"`
	ApplicationLabel             []byte                         `tlv:"50" fmt:"ascii"`
	ApplicationPriorityIndicator []byte                         `tlv:"87" fmt:"int"`
	DirectoryDiscretionaryData   DirectoryDiscretionaryTemplate `tlv:"73"`
	ApplicationPreferredName     []byte                         `tlv:"9F12" fmt:"ascii"`
	DDFName                      []byte                         `tlv:"9D" fmt:"ascii"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// DirectoryRecord is the content of one record of the directory SFI.
type DirectoryRecord struct {
	Applications []ApplicationTemplate `tlv:"61"`

	Unknown []tlv.Node `tlv:",unknown"`
}

// ParseDirectoryRecord decodes READ RECORD data as a directory record.
// Bytes after the 70 template are ignored.
func ParseDirectoryRecord(data []byte) (*DirectoryRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty record data: %w", ErrMissingData)
	}

	root, _, err := tlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("directory record: %w", err)
	}

	if !root.Is(tagRecordTemplate) {
		return nil, fmt.Errorf("directory record tag %s, want 70: %w", root.Tag(), ErrUnexpectedTemplate)
	}

	parts, _ := root.Parts()
	record := &DirectoryRecord{}
	if err := tlv.UnmarshalNodes(parts, record); err != nil {
		return nil, fmt.Errorf("failed to map directory record: %w", err)
	}

	return record, nil
}

// AIDs lists the application identifiers of the record in order. Entries
// without a 4F are skipped.
func (r *DirectoryRecord) AIDs() [][]byte {
	var out [][]byte
	for _, app := range r.Applications {
		if len(app.AID) > 0 {
			out = append(out, app.AID)
		}
	}
	return out
}

// Describe generates a report for all applications found in the record.
func (r *DirectoryRecord) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV DIRECTORY RECORD ===")

	tlv.WriteStructFields(&sb, "Record", r)

	for i, app := range r.Applications {
		prefix := fmt.Sprintf("App[%d]", i+1)
		tlv.WriteStructFields(&sb, prefix, app)

		tlv.WriteStructFields(&sb, prefix+".Discretionary", app.DirectoryDiscretionaryData)
	}

	return strings.TrimRight(sb.String(), "\n")
}
