package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// ReadRecordResult represents the outcome of a READ RECORD command execution.
type ReadRecordResult struct {
	Trace
}

func NewReadRecordResult(t Trace) (*ReadRecordResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_READ_RECORD {
		return nil, fmt.Errorf("trace must start with READ RECORD command (got %02X)", byte(t[0].Command.Instruction.Raw))
	}

	return &ReadRecordResult{Trace: t}, nil
}

// Record decodes the first TLV of the record payload. Padding after it is
// ignored.
func (r *ReadRecordResult) Record() (tlv.Node, error) {
	if !r.IsSuccess() {
		return tlv.Node{}, fmt.Errorf("read record failed with status %04X", uint16(r.Status()))
	}
	node, _, err := tlv.Decode(r.Data())
	return node, err
}

// Describe generates a detailed, ASCII-formatted report of the read operation.
func (r *ReadRecordResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== READ RECORD COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command

	sfi := cmd.P2 >> 3
	mode := ReadRecordMode(cmd.P2 & 0x07)

	sb.WriteString("[1] Command: READ RECORD\n")

	target := "Current EF"
	if sfi > 0 {
		target = fmt.Sprintf("SFI %02X (%d)", sfi, sfi)
	}
	fmt.Fprintf(&sb, "    + Target:  %s\n", target)

	var p1Desc string
	switch {
	case mode&0b100 == 0:
		p1Desc = fmt.Sprintf("Record Identifier %02X", cmd.P1)
	case cmd.P1 == 0:
		p1Desc = "Current Record"
	default:
		p1Desc = fmt.Sprintf("Record Number %d", cmd.P1)
	}

	fmt.Fprintf(&sb, "    + P1:      %02X -> %s\n", cmd.P1, p1Desc)
	fmt.Fprintf(&sb, "    + Mode:    %02X -> %s\n", byte(mode), mode)
	writeStatusLine(&sb, tx0.Response)
	sb.WriteString("\n")

	if len(r.Trace) > 1 {
		fmt.Fprintf(&sb, "[2] Protocol: Auto-handling (%d steps)\n", len(r.Trace))
		fmt.Fprintf(&sb, "    + Final SW: [%04X]\n", uint16(r.Status()))
	}

	payload := r.Data()
	sb.WriteString("[=] DATA OUTCOME:\n")
	if len(payload) > 0 {
		fmt.Fprintf(&sb, "    + Length: %d bytes\n", len(payload))
		fmt.Fprintf(&sb, "    + Dump:   %X\n", payload)
		if node, err := r.Record(); err == nil {
			for _, line := range strings.Split(node.Dump(), "\n") {
				fmt.Fprintf(&sb, "    | %s\n", line)
			}
		} else {
			fmt.Fprintf(&sb, "    + ASCII:  %q\n", tlv.MakeSafeASCII(payload))
		}
	} else {
		sb.WriteString("    - No Data Received.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
