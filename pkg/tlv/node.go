package tlv

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/bits"
)

// Class is the tag class carried by bits 8-7 of the first tag byte.
type Class byte

const (
	ClassUniversal       Class = 0b00
	ClassApplication     Class = 0b01
	ClassContextSpecific Class = 0b10
	ClassPrivate         Class = 0b11
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context-specific"
	case ClassPrivate:
		return "private"
	default:
		return fmt.Sprintf("Class(%d)", byte(c))
	}
}

// Encoding tells whether a node carries raw bytes or nested nodes (bit 6).
type Encoding byte

const (
	Primitive Encoding = iota
	Constructed
)

func (e Encoding) String() string {
	if e == Constructed {
		return "constructed"
	}
	return "primitive"
}

// Tag is the raw tag field of a TLV, one or more bytes.
type Tag []byte

// Class returns the tag class. An empty tag reports ClassUniversal.
func (t Tag) Class() Class {
	if len(t) == 0 {
		return ClassUniversal
	}
	return Class(bits.GetRange(t[0], 8, 7))
}

// Encoding returns the encoding flagged by the first tag byte.
func (t Tag) Encoding() Encoding {
	if len(t) > 0 && bits.IsSet(t[0], 6) {
		return Constructed
	}
	return Primitive
}

// Uint returns the tag bytes read as a big-endian integer (9F38 -> 0x9F38).
func (t Tag) Uint() uint64 {
	return bits.Uint(t)
}

// Equal reports whether both tags have exactly the same bytes.
func (t Tag) Equal(other Tag) bool {
	return bytes.Equal(t, other)
}

func (t Tag) String() string {
	return strings.ToUpper(hex.EncodeToString(t))
}

// Node is one decoded BER-TLV element. The tag decides which payload is
// meaningful: a primitive node holds a value, a constructed node holds its
// children in wire order. Nodes are immutable once built.
type Node struct {
	tag   Tag
	value []byte
	parts []Node
}

// NewPrimitive builds a primitive node. It fails with a *ConstraintError when
// the tag announces a constructed encoding.
func NewPrimitive(tag Tag, value []byte) (Node, error) {
	if err := checkTag(tag, Primitive, "NewPrimitive"); err != nil {
		return Node{}, err
	}
	return Node{tag: clone(tag), value: clone(value)}, nil
}

// NewConstructed builds a constructed node from its children. It fails with a
// *ConstraintError when the tag announces a primitive encoding.
func NewConstructed(tag Tag, parts ...Node) (Node, error) {
	if err := checkTag(tag, Constructed, "NewConstructed"); err != nil {
		return Node{}, err
	}
	owned := make([]Node, len(parts))
	copy(owned, parts)
	return Node{tag: clone(tag), parts: owned}, nil
}

// MustPrimitive is NewPrimitive for fixed, known-good tags. It panics on error.
func MustPrimitive(tag Tag, value []byte) Node {
	n, err := NewPrimitive(tag, value)
	if err != nil {
		panic(err)
	}
	return n
}

// MustConstructed is NewConstructed for fixed, known-good tags. It panics on error.
func MustConstructed(tag Tag, parts ...Node) Node {
	n, err := NewConstructed(tag, parts...)
	if err != nil {
		panic(err)
	}
	return n
}

func checkTag(tag Tag, want Encoding, op string) error {
	if len(tag) == 0 {
		return &ConstraintError{Op: op, Want: want, Reason: "empty tag"}
	}
	if tag.Encoding() != want {
		return &ConstraintError{Tag: clone(tag), Op: op, Want: want, Reason: "incorrect tag encoding"}
	}
	return nil
}

// Tag returns a copy of the node tag.
func (n Node) Tag() Tag { return clone(n.tag) }

// Class returns the class of the node tag.
func (n Node) Class() Class { return n.tag.Class() }

// Encoding returns the encoding of the node tag.
func (n Node) Encoding() Encoding { return n.tag.Encoding() }

// Is reports whether the node carries exactly the given tag.
func (n Node) Is(tag Tag) bool { return n.tag.Equal(tag) }

// Value returns a copy of the payload of a primitive node.
func (n Node) Value() ([]byte, error) {
	if n.Encoding() != Primitive {
		return nil, &ConstraintError{Tag: n.Tag(), Op: "Value", Want: Primitive, Reason: "node is constructed"}
	}
	return clone(n.value), nil
}

// Parts returns the children of a constructed node.
func (n Node) Parts() ([]Node, error) {
	if n.Encoding() != Constructed {
		return nil, &ConstraintError{Tag: n.Tag(), Op: "Parts", Want: Constructed, Reason: "node is primitive"}
	}
	out := make([]Node, len(n.parts))
	copy(out, n.parts)
	return out, nil
}

// Part returns the first immediate child whose tag equals tag.
// It does not search grandchildren. ErrNotFound is returned when no child matches.
func (n Node) Part(tag Tag) (Node, error) {
	if n.Encoding() != Constructed {
		return Node{}, &ConstraintError{Tag: n.Tag(), Op: "Part", Want: Constructed, Reason: "node is primitive"}
	}
	for _, p := range n.parts {
		if p.tag.Equal(tag) {
			return p, nil
		}
	}
	return Node{}, fmt.Errorf("tag %s in %s: %w", tag, n.tag, ErrNotFound)
}

// Find follows a path of tags through nested constructed nodes,
// e.g. Find(Tag{0xA5}, Tag{0x88}).
func (n Node) Find(path ...Tag) (Node, error) {
	cur := n
	for _, tag := range path {
		next, err := cur.Part(tag)
		if err != nil {
			return Node{}, err
		}
		cur = next
	}
	return cur, nil
}

// FindValue is Find followed by Value.
func (n Node) FindValue(path ...Tag) ([]byte, error) {
	found, err := n.Find(path...)
	if err != nil {
		return nil, err
	}
	return found.Value()
}

// Equal reports whether two trees have the same tags, encodings and payloads.
func Equal(a, b Node) bool {
	if !a.tag.Equal(b.tag) {
		return false
	}
	if a.Encoding() == Primitive {
		return bytes.Equal(a.value, b.value)
	}
	if len(a.parts) != len(b.parts) {
		return false
	}
	for i := range a.parts {
		if !Equal(a.parts[i], b.parts[i]) {
			return false
		}
	}
	return true
}

func (n Node) String() string {
	if n.Encoding() == Primitive {
		return fmt.Sprintf("{tag: %s enc: %s value: %X}", n.tag, Primitive, n.value)
	}
	return fmt.Sprintf("{tag: %s enc: %s parts: %d}", n.tag, Constructed, len(n.parts))
}

// Dump renders the whole tree, one node per line, children indented.
func (n Node) Dump() string {
	var sb strings.Builder
	n.dump(&sb, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func (n Node) dump(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.Encoding() == Primitive {
		fmt.Fprintf(sb, "%s%s [%d] %X\n", indent, n.tag, len(n.value), n.value)
		return
	}
	fmt.Fprintf(sb, "%s%s\n", indent, n.tag)
	for _, p := range n.parts {
		p.dump(sb, depth+1)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
