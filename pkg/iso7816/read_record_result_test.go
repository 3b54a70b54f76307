package iso7816

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

func TestReadRecordResult_Describe(t *testing.T) {
	cmd := ReadRecord(Class{}, 1, 1)
	resp := ResponseAPDU{
		Data:   []byte("HELLO"),
		Status: SW_NO_ERROR, // 9000
	}

	trace := Trace{
		{Command: cmd, Response: &resp},
	}

	res, err := NewReadRecordResult(trace)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	report := res.Describe()
	actualLines := strings.Split(report, "\n")

	expectedLines := []string{
		"=== READ RECORD COMMAND REPORT ===",
		"[1] Command: READ RECORD",
		"    + Target:  SFI 01 (1)",
		"    + P1:      01 -> Record Number 1",
		"    + Mode:    04 -> Ref Num: Read Record P1",
		"    + Result:  [90 00] [OK] SW_NO_ERROR",
		"",
		"[=] DATA OUTCOME:",
		"    + Length: 5 bytes",
		"    + Dump:   48454C4C4F",
		`    + ASCII:  "HELLO"`,
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecordResult_Describe_Complex(t *testing.T) {
	cmd := NewReadRecordCommand(Class{}, 2, 0xFE, RefByID_NextOccurrence)

	resp := ResponseAPDU{
		Data:   nil,
		Status: 0x6A83, // Record not found
	}

	trace := Trace{
		{Command: cmd, Response: &resp},
	}

	res, _ := NewReadRecordResult(trace)
	report := res.Describe()
	actualLines := strings.Split(report, "\n")

	expectedLines := []string{
		"=== READ RECORD COMMAND REPORT ===",
		"[1] Command: READ RECORD",
		"    + Target:  SFI 02 (2)",
		"    + P1:      FE -> Record Identifier FE",
		"    + Mode:    02 -> Ref ID: Next Occurrence",
		"    + Result:  [6A 83] [!!] [6A83] SW_ERR_RECORD_NOT_FOUND",
		"",
		"[=] DATA OUTCOME:",
		"    - No Data Received.",
	}

	if diff := cmp.Diff(expectedLines, actualLines); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecordResult_Record(t *testing.T) {
	cmd := ReadRecord(Class{}, 1, 1)
	trace := Trace{
		{Command: cmd, Response: &ResponseAPDU{Status: NewStatusWord(0x6C, 0x08)}},
		{Command: cmd.WithNe(8), Response: &ResponseAPDU{
			Data:   tlv.Hex("70 06 5F20 03 444F45"),
			Status: SW_NO_ERROR,
		}},
	}

	res, err := NewReadRecordResult(trace)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	node, err := res.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	name, err := node.FindValue(tlv.Tag{0x5F, 0x20})
	if err != nil || string(name) != "DOE" {
		t.Errorf("FindValue(5F20) = %q, %v", name, err)
	}

	expectedLines := []string{
		"=== READ RECORD COMMAND REPORT ===",
		"[1] Command: READ RECORD",
		"    + Target:  SFI 01 (1)",
		"    + P1:      01 -> Record Number 1",
		"    + Mode:    04 -> Ref Num: Read Record P1",
		"    + Result:  [6C 08] [!!] Wrong length, correct is 08 (8)",
		"",
		"[2] Protocol: Auto-handling (2 steps)",
		"    + Final SW: [9000]",
		"[=] DATA OUTCOME:",
		"    + Length: 8 bytes",
		"    + Dump:   70065F2003444F45",
		"    | 70",
		"    |   5F20 [3] 444F45",
	}

	if diff := cmp.Diff(expectedLines, strings.Split(res.Describe(), "\n")); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestReadRecordResult_RecordFailure(t *testing.T) {
	trace := Trace{{Command: ReadRecord(Class{}, 1, 9), Response: &ResponseAPDU{Status: SW_ERR_RECORD_NOT_FOUND}}}
	res, _ := NewReadRecordResult(trace)
	if _, err := res.Record(); err == nil {
		t.Error("Record() should fail on 6A83")
	}
}
