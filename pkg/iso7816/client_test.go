package iso7816

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

const selectPSE = "00A404000E315041592E5359532E4444463031"

func TestClient_Send(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name     string
		script   func(*MockCard)
		cmd      *CommandAPDU
		wantSent []string
		wantSW   StatusWord
		wantData []byte
	}{
		{
			name: "Direct success",
			script: func(m *MockCard) {
				m.On("00B2010C00", "70035A0112 9000")
			},
			cmd:      ReadRecord(cls, 1, 1),
			wantSent: []string{"00B2010C00"},
			wantSW:   SW_NO_ERROR,
			wantData: tlv.Hex("70 03 5A 01 12"),
		},
		{
			name: "6C retry with Le from SW2",
			script: func(m *MockCard) {
				m.On("00B2010C00", "6C05")
				m.On("00B2010C05", "7003500141 9000")
			},
			cmd:      ReadRecord(cls, 1, 1),
			wantSent: []string{"00B2010C00", "00B2010C05"},
			wantSW:   SW_NO_ERROR,
			wantData: tlv.Hex("70 03 50 01 41"),
		},
		{
			name: "Repeated 6C is not looped",
			script: func(m *MockCard) {
				m.On("00B2010C00", "6C05")
				m.On("00B2010C05", "6C07")
			},
			cmd:      ReadRecord(cls, 1, 1),
			wantSent: []string{"00B2010C00", "00B2010C05"},
			wantSW:   NewStatusWord(0x6C, 0x07),
		},
		{
			name: "61 triggers GET RESPONSE",
			script: func(m *MockCard) {
				m.On(selectPSE, "6104")
				m.On("00C0000004", "6F02 8400 9000")
			},
			cmd:      SelectByAID(cls, []byte("1PAY.SYS.DDF01")),
			wantSent: []string{selectPSE, "00C0000004"},
			wantSW:   SW_NO_ERROR,
			wantData: tlv.Hex("6F 02 84 00"),
		},
		{
			name: "Chained 61 replies are joined",
			script: func(m *MockCard) {
				m.On(selectPSE, "6102")
				m.On("00C0000002", "6F04 6102", "8400 9000")
			},
			cmd:      SelectByAID(cls, []byte("1PAY.SYS.DDF01")),
			wantSent: []string{selectPSE, "00C0000002", "00C0000002"},
			wantSW:   SW_NO_ERROR,
			wantData: tlv.Hex("6F 04 84 00"),
		},
		{
			name: "6C then 61",
			script: func(m *MockCard) {
				m.On("00B2011400", "6C10")
				m.On("00B2011410", "6110")
				m.On("00C0000010", "70035A0199 9000")
			},
			cmd:      ReadRecord(cls, 2, 1),
			wantSent: []string{"00B2011400", "00B2011410", "00C0000010"},
			wantSW:   SW_NO_ERROR,
			wantData: tlv.Hex("70 03 5A 01 99"),
		},
		{
			name:     "Error status is not a Go error",
			script:   func(m *MockCard) {},
			cmd:      SelectByAID(cls, []byte("1PAY.SYS.DDF01")),
			wantSent: []string{selectPSE},
			wantSW:   SW_ERR_FILE_NOT_FOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := NewMockCard()
			tt.script(card)

			trace, err := NewClient(card).Send(tt.cmd)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantSent, card.Sent()); diff != "" {
				t.Errorf("sent commands mismatch (-want +got):\n%s", diff)
			}
			if trace.Status() != tt.wantSW {
				t.Errorf("final SW = %04X, want %04X", uint16(trace.Status()), uint16(tt.wantSW))
			}
			if diff := cmp.Diff(tt.wantData, trace.Data()); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			if len(trace) != len(tt.wantSent) {
				t.Errorf("trace has %d transactions, want %d", len(trace), len(tt.wantSent))
			}
		})
	}
}

func TestClient_GetResponseChainIsBounded(t *testing.T) {
	card := NewMockCard().
		On(selectPSE, "6101").
		On("00C0000001", "AA 6101")

	client := NewClient(card)
	client.MaxGetResponse = 3

	trace, err := client.Send(SelectByAID(Class{}, []byte("1PAY.SYS.DDF01")))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(card.Sent()); got != 4 {
		t.Errorf("sent %d commands, want 4", got)
	}
	if !trace.Status().IsBytesAvailable() {
		t.Errorf("final SW = %04X, want 61XX", uint16(trace.Status()))
	}
}

func TestClient_TransportFailure(t *testing.T) {
	boom := errors.New("reader removed")
	card := NewMockCard().
		On("00B2010C00", "6C05").
		Fail("00B2010C05", boom)

	trace, err := NewClient(card).Send(ReadRecord(Class{}, 1, 1))

	var te *TransmitError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransmitError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the transport cause: %v", err)
	}
	if len(trace) != 1 {
		t.Errorf("trace has %d transactions, want the one before the failure", len(trace))
	}
	if diff := cmp.Diff([]string{"00B2010C00", "00B2010C05"}, card.Sent()); diff != "" {
		t.Errorf("transport failure must not be retried (-want +got):\n%s", diff)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	card := NewMockCard().On("00B2010C00", "90")

	_, err := NewClient(card).Send(ReadRecord(Class{}, 1, 1))
	var te *TransmitError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransmitError", err)
	}
}

func TestMockCard(t *testing.T) {
	card := NewMockCard().On("00 B2 01 0C 00", "6A83", "9000")

	first, _ := card.Transmit(tlv.Hex("00B2010C00"))
	second, _ := card.Transmit(tlv.Hex("00B2010C00"))
	third, _ := card.Transmit(tlv.Hex("00B2010C00"))

	if diff := cmp.Diff([][]byte{{0x6A, 0x83}, {0x90, 0x00}, {0x90, 0x00}}, [][]byte{first, second, third}); diff != "" {
		t.Errorf("reply queue mismatch (-want +got):\n%s", diff)
	}

	if _, err := card.Transmit([]byte{0x00}); err == nil {
		t.Error("malformed command should be rejected")
	}

	cmds := card.Commands()
	if len(cmds) != 3 || cmds[0].Instruction.Raw != INS_READ_RECORD {
		t.Errorf("Commands() = %v", cmds)
	}
}
