package iso7816

import (
	"bytes"
	"fmt"
)

// APDU encoding follows ISO/IEC 7816-3 and 7816-4.
//
// A command is a 4 byte header (CLA INS P1 P2) followed by an optional body:
//
//	Case 1: header only
//	Case 2: header + Le
//	Case 3: header + Lc + data
//	Case 4: header + Lc + data + Le
//
// Lc and Le use one byte (short form) unless Nc > 255 or Ne > 256, in which
// case the extended form is used. In both forms a zero Le means the maximum.
//
// A response is the data field followed by the trailer SW1 SW2.

const (
	// MaxShortLc is the largest Nc encodable on one byte.
	MaxShortLc = 255

	// MaxShortLe is the largest Ne in short form, encoded as 00.
	MaxShortLe = 256

	// MaxExtendedLc is the largest Nc in extended form.
	MaxExtendedLc = 65535

	// MaxExtendedLe is the largest Ne in extended form, encoded as 0000.
	MaxExtendedLe = 65536
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// WithNe returns a copy of the command expecting ne bytes.
func (c *CommandAPDU) WithNe(ne int) *CommandAPDU {
	cp := *c
	cp.Ne = ne
	return &cp
}

// Bytes encodes the command, choosing short or extended length fields from
// Nc and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid Ne %d", ne)
	}

	extended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !extended {
			buf.WriteByte(byte(nc))
		} else {
			buf.Write([]byte{0x00, byte(nc >> 8), byte(nc)})
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		switch {
		case !extended:
			// 256 wraps to 00
			buf.WriteByte(byte(ne))
		default:
			// Without Lc a leading 00 marks the extended Le.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			buf.Write([]byte{byte(ne >> 8), byte(ne)})
		}
	}

	return buf.Bytes(), nil
}

// ParseCommandAPDU decodes a short-form command. Extended lengths are rejected.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}
	cmd := NewCommandAPDU(cla, ins, raw[2], raw[3], nil, 0)

	body := raw[4:]
	switch {
	case len(body) == 0:
		return cmd, nil
	case len(body) == 1:
		cmd.Ne = shortLe(body[0])
		return cmd, nil
	case body[0] == 0x00:
		return nil, fmt.Errorf("extended length command not supported")
	}

	lc := int(body[0])
	switch len(body) {
	case 1 + lc:
		cmd.Data = append([]byte(nil), body[1:]...)
	case 2 + lc:
		cmd.Data = append([]byte(nil), body[1:1+lc]...)
		cmd.Ne = shortLe(body[1+lc])
	default:
		return nil, fmt.Errorf("body length %d does not match Lc %d", len(body), lc)
	}
	return cmd, nil
}

func shortLe(b byte) int {
	if b == 0 {
		return MaxShortLe
	}
	return int(b)
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw card output into data and status word.
// The input must contain at least SW1 and SW2.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   append([]byte(nil), raw[:n]...),
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
