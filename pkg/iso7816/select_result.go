package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// SelectResult wraps the Trace of a SELECT to expose its FCI and a readable
// report of the exchange.
type SelectResult struct {
	Trace
}

// NewSelectResult checks that t is non-empty and starts with SELECT.
func NewSelectResult(t Trace) (*SelectResult, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}

	if t[0].Command.Instruction.Raw != INS_SELECT {
		return nil, fmt.Errorf("trace must start with SELECT command (got %02X)", byte(t[0].Command.Instruction.Raw))
	}

	return &SelectResult{Trace: t}, nil
}

// FCI parses the response data (joined across GET RESPONSE) according to
// the P2 of the initial SELECT.
func (r *SelectResult) FCI() (*FileControlInfo, error) {
	if !r.IsSuccess() {
		return nil, fmt.Errorf("selection failed, cannot parse FCI")
	}

	data := r.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("no response data found")
	}

	return ParseSelectData(data, r.Trace[0].Command.P2)
}

// Describe renders the request, the protocol follow-ups and the parsed FCI.
func (r *SelectResult) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== SELECT COMMAND REPORT ===\n")

	tx0 := r.Trace[0]
	cmd := tx0.Command

	method := SelectionMethod(cmd.P1)
	occ := FileOccurrence(cmd.P2 & 0x03)
	ctrl := SelectionControl(cmd.P2 & 0x0C)

	sb.WriteString("[1] Command: SELECT FILE (Initial Request)\n")
	fmt.Fprintf(&sb, "    + Method:  %02X -> %s\n", cmd.P1, method)
	fmt.Fprintf(&sb, "    + Control: %02X -> %s | %s\n", cmd.P2, occ, ctrl)
	if len(cmd.Data) > 0 {
		fmt.Fprintf(&sb, "    + Data:    %X (%q)\n", cmd.Data, tlv.MakeSafeASCII(cmd.Data))
	}
	writeStatusLine(&sb, tx0.Response)
	if len(tx0.Response.Data) > 0 {
		fmt.Fprintf(&sb, "    + Payload: %d bytes received directly\n", len(tx0.Response.Data))
	}
	sb.WriteString("\n")

	payload := r.Data()

	if len(r.Trace) > 1 {
		fmt.Fprintf(&sb, "[2] Protocol: Auto-handling (Sequence of %d steps)\n", len(r.Trace))

		last := r.Last()
		opName := "Unknown"
		switch last.Command.Instruction.Raw {
		case INS_GET_RESPONSE:
			opName = "GET RESPONSE"
		case INS_SELECT:
			opName = "RE-SELECT (Correction)"
		}

		fmt.Fprintf(&sb, "    + Action:  Sending %s\n", opName)
		fmt.Fprintf(&sb, "    + Result:  [%04X] %s Final Status\n", uint16(last.Response.Status), okMark(last.IsSuccess()))
		if len(payload) > 0 {
			fmt.Fprintf(&sb, "    + Payload: %d bytes received\n", len(payload))
			fmt.Fprintf(&sb, "      Dump:    %X\n", payload)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("[=] FINAL OUTCOME:\n")

	fci, err := r.FCI()
	if err != nil || fci == nil {
		switch {
		case err != nil && len(payload) > 0:
			fmt.Fprintf(&sb, "    - FCI Parsing Failed: %v\n", err)
		default:
			sb.WriteString("    - No Data returned to parse.\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	var structures []string
	if fci.FCP != nil {
		structures = append(structures, "FCP")
	}
	if fci.FMD != nil {
		structures = append(structures, "FMD")
	}
	if len(fci.ProprietaryRawData) > 0 {
		structures = append(structures, "ProprietaryRaw")
	}
	strList := "None"
	if len(structures) > 0 {
		strList = strings.Join(structures, " + ")
	}
	fmt.Fprintf(&sb, "    - Structure: %s\n", strList)

	writeTemplate(&sb, "FCP", fci.FCP)
	writeTemplate(&sb, "FMD", fci.FMD)
	for _, n := range fci.Unknown {
		fmt.Fprintf(&sb, "    - Unknown Tag %s: %X\n", n.Tag(), n.Encode())
	}
	if len(fci.ProprietaryRawData) > 0 {
		fmt.Fprintf(&sb, "    - Proprietary:   %X\n", fci.ProprietaryRawData)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// writeTemplate appends the report lines of one template, newline terminated.
func writeTemplate(sb *strings.Builder, prefix string, s interface{}) {
	var block strings.Builder
	tlv.WriteStructFields(&block, prefix, s)
	if block.Len() > 0 {
		sb.WriteString(block.String())
		sb.WriteString("\n")
	}
}

// writeStatusLine prints the "+ Result:" line shared by the command reports.
func writeStatusLine(sb *strings.Builder, resp *ResponseAPDU) {
	sw := resp.Status
	desc := "SW_NO_ERROR"
	ok := true

	switch {
	case sw.IsBytesAvailable():
		desc = fmt.Sprintf("%02X (%d) bytes still available", sw.SW2(), sw.SW2())
	case sw.IsWrongLength():
		ok = false
		desc = fmt.Sprintf("Wrong length, correct is %02X (%d)", sw.SW2(), sw.SW2())
	case sw != SW_NO_ERROR:
		ok = false
		desc = sw.Verbose()
	}

	fmt.Fprintf(sb, "    + Result:  [%02X %02X] %s %s\n", sw.SW1(), sw.SW2(), okMark(ok), desc)
}

func okMark(ok bool) string {
	if ok {
		return "[OK]"
	}
	return "[!!]"
}
