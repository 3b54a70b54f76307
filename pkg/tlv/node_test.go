package tlv

import (
	"errors"
	"strings"
	"testing"
)

func TestTag_ClassAndEncoding(t *testing.T) {
	tests := []struct {
		tag      Tag
		class    Class
		encoding Encoding
	}{
		{Tag{0x04}, ClassUniversal, Primitive},
		{Tag{0x30}, ClassUniversal, Constructed},
		{Tag{0x5A}, ClassApplication, Primitive},
		{Tag{0x6F}, ClassApplication, Constructed},
		{Tag{0x9F, 0x38}, ClassContextSpecific, Primitive},
		{Tag{0xA5}, ClassContextSpecific, Constructed},
		{Tag{0xDF, 0x01}, ClassPrivate, Primitive},
		{Tag{0xFF, 0x20}, ClassPrivate, Constructed},
	}

	for _, tt := range tests {
		if got := tt.tag.Class(); got != tt.class {
			t.Errorf("Tag %s Class() = %s, want %s", tt.tag, got, tt.class)
		}
		if got := tt.tag.Encoding(); got != tt.encoding {
			t.Errorf("Tag %s Encoding() = %s, want %s", tt.tag, got, tt.encoding)
		}
	}
}

func TestConstructors_RejectMismatchedEncoding(t *testing.T) {
	t.Run("Primitive constructor with constructed tag", func(t *testing.T) {
		_, err := NewPrimitive(Tag{0x70}, []byte{0x01})
		var ce *ConstraintError
		if !errors.As(err, &ce) {
			t.Fatalf("error = %v, want *ConstraintError", err)
		}
		if ce.Want != Primitive {
			t.Errorf("Want = %s, want primitive", ce.Want)
		}
	})

	t.Run("Constructed constructor with primitive tag", func(t *testing.T) {
		_, err := NewConstructed(Tag{0x5A})
		if !errors.Is(err, &ConstraintError{}) {
			t.Fatalf("error = %v, want *ConstraintError", err)
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			t.Errorf("constraint violation must not be a parse error")
		}
	})

	t.Run("Empty tag", func(t *testing.T) {
		if _, err := NewPrimitive(nil, nil); err == nil {
			t.Error("expected error for empty tag")
		}
	})

	t.Run("Must variants panic", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("MustConstructed should panic on a primitive tag")
			}
		}()
		MustConstructed(Tag{0x5A})
	})
}

func TestAccessors_WrongEncoding(t *testing.T) {
	prim := MustPrimitive(Tag{0x5A}, []byte{0x01})
	cons := MustConstructed(Tag{0x70}, prim)

	if _, err := prim.Parts(); !errors.Is(err, &ConstraintError{}) {
		t.Errorf("Parts() on primitive: error = %v", err)
	}
	if _, err := prim.Part(Tag{0x5A}); !errors.Is(err, &ConstraintError{}) {
		t.Errorf("Part() on primitive: error = %v", err)
	}
	if _, err := cons.Value(); !errors.Is(err, &ConstraintError{}) {
		t.Errorf("Value() on constructed: error = %v", err)
	}
}

func TestPart(t *testing.T) {
	tree := MustConstructed(Tag{0x70},
		MustConstructed(Tag{0x61},
			MustPrimitive(Tag{0x4F}, Hex("A0000000031010")),
		),
		MustPrimitive(Tag{0x4F}, Hex("A0000000041010")),
		MustPrimitive(Tag{0x4F}, Hex("A0000000999999")),
	)

	t.Run("First immediate match", func(t *testing.T) {
		n, err := tree.Part(Tag{0x4F})
		if err != nil {
			t.Fatalf("Part() error = %v", err)
		}
		v, _ := n.Value()
		if got := strings.ToUpper(Tag(v).String()); got != "A0000000041010" {
			t.Errorf("Part() = %s, want A0000000041010", got)
		}
	})

	t.Run("Not recursive", func(t *testing.T) {
		child := MustConstructed(Tag{0x70}, MustConstructed(Tag{0x61}, MustPrimitive(Tag{0x4F}, nil)))
		if _, err := child.Part(Tag{0x4F}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Part() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("Exact byte match", func(t *testing.T) {
		if _, err := tree.Part(Tag{0x4F, 0x00}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Part() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("Path", func(t *testing.T) {
		v, err := tree.FindValue(Tag{0x61}, Tag{0x4F})
		if err != nil {
			t.Fatalf("FindValue() error = %v", err)
		}
		if Tag(v).String() != "A0000000031010" {
			t.Errorf("FindValue() = %X", v)
		}
	})
}

func TestNode_Immutable(t *testing.T) {
	value := []byte{0x01, 0x02}
	n := MustPrimitive(Tag{0x5A}, value)
	value[0] = 0xFF

	got, _ := n.Value()
	if got[0] != 0x01 {
		t.Error("node must not alias the constructor input")
	}

	got[1] = 0xFF
	again, _ := n.Value()
	if again[1] != 0x02 {
		t.Error("node must not alias the returned value")
	}
}

func TestNode_String(t *testing.T) {
	prim := MustPrimitive(Tag{0x9F, 0x38}, []byte{0x91})
	if got, want := prim.String(), "{tag: 9F38 enc: primitive value: 91}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	cons := MustConstructed(Tag{0x6F}, prim, prim)
	if got, want := cons.String(), "{tag: 6F enc: constructed parts: 2}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	wantDump := "6F\n  9F38 [1] 91\n  9F38 [1] 91"
	if got := cons.Dump(); got != wantDump {
		t.Errorf("Dump() = %q, want %q", got, wantDump)
	}
}
