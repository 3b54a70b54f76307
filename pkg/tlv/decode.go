package tlv

import (
	"errors"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// maxLengthBytes bounds the long length form (0x81..0x84).
const maxLengthBytes = 4

// Decode parses one BER-TLV element starting at data[0] and reports how many
// bytes it used. Bytes after the element are left alone.
func Decode(data []byte) (Node, int, error) {
	return decodeAt(data, 0)
}

// DecodeAll parses consecutive elements until data is exhausted.
func DecodeAll(data []byte) ([]Node, error) {
	var nodes []Node
	for off := 0; off < len(data); {
		n, used, err := decodeAt(data[off:], off)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
		off += used
	}
	return nodes, nil
}

// ReadTag reads a tag field from the start of data: one byte, or, when its
// low five bits are all set, every following byte up to and including the
// first one whose high bit is clear.
func ReadTag(data []byte) (Tag, int, error) {
	if len(data) == 0 {
		return nil, 0, parseErr(0, ErrPrematureEnd)
	}
	p := 0
	if bits.GetRange(data[0], 5, 1) == 0x1F {
		for {
			p++
			if p >= len(data) {
				return nil, 0, parseErr(p, ErrPrematureEnd)
			}
			if !bits.IsSet(data[p], 8) {
				break
			}
		}
	}
	return Tag(clone(data[:p+1])), p + 1, nil
}

// readLength decodes the length field at data[0] and returns the length and
// the size of the field. A long-form length larger than what follows in data
// is rejected here so it never has to fit an int.
func readLength(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, parseErr(0, ErrPrematureEnd)
	}
	first := data[0]
	if !bits.IsSet(first, 8) {
		return int(first), 1, nil
	}

	n := int(first & 0x7F)
	if n > maxLengthBytes {
		return 0, 0, parseErr(0, ErrLengthTooLarge)
	}
	if n == 0 {
		return 0, 0, parseErr(0, ErrIndefiniteLength)
	}
	if 1+n > len(data) {
		return 0, 0, parseErr(len(data), ErrPrematureEnd)
	}
	length := bits.Uint(data[1 : 1+n])
	if length > uint64(len(data)-1-n) {
		return 0, 0, parseErr(len(data), ErrPrematureEnd)
	}
	return int(length), 1 + n, nil
}

func decodeAt(data []byte, base int) (Node, int, error) {
	if len(data) < 2 {
		return Node{}, 0, parseErr(base, ErrTooShort)
	}

	tag, p, err := ReadTag(data)
	if err != nil {
		return Node{}, 0, shift(err, base)
	}

	length, lenSize, err := readLength(data[p:])
	if err != nil {
		return Node{}, 0, shift(err, base+p)
	}
	p += lenSize

	if length > len(data)-p {
		return Node{}, 0, parseErr(base+len(data), ErrPrematureEnd)
	}
	body := data[p : p+length]
	consumed := p + length

	if tag.Encoding() == Primitive {
		n, err := NewPrimitive(tag, body)
		if err != nil {
			return Node{}, 0, &ParseError{Offset: base, Err: ErrInconsistent, Cause: err}
		}
		return n, consumed, nil
	}

	var parts []Node
	for off := 0; off < len(body); {
		child, used, err := decodeAt(body[off:], base+p+off)
		if err != nil {
			// A lone trailing byte cannot start a child: the children do not
			// fill the declared length exactly.
			if errors.Is(err, ErrTooShort) {
				return Node{}, 0, parseErr(base+p+off, ErrPrematureEnd)
			}
			return Node{}, 0, err
		}
		parts = append(parts, child)
		off += used
	}

	n, err := NewConstructed(tag, parts...)
	if err != nil {
		return Node{}, 0, &ParseError{Offset: base, Err: ErrInconsistent, Cause: err}
	}
	return n, consumed, nil
}

func shift(err error, base int) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Offset += base
	}
	return err
}
