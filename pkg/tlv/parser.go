// Package tlv implements a BER-TLV (Basic Encoding Rules - Tag-Length-Value)
// codec producing an owned tree of Nodes, plus helpers that map decoded
// nodes onto Go structures using struct tags and render them as reports.
package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

var (
	nodeType      = reflect.TypeOf(Node{})
	nodeSliceType = reflect.TypeOf([]Node{})
)

// Unmarshal decodes every top-level element of data and maps them into target.
func Unmarshal(data []byte, target interface{}) error {
	nodes, err := DecodeAll(data)
	if err != nil {
		return fmt.Errorf("ber-tlv decode failed: %w", err)
	}
	return UnmarshalNodes(nodes, target)
}

// UnmarshalNodes maps already decoded nodes to a target struct.
// Fields are matched with `tlv:"<hex tag>"`. Slices of structs collect
// repeated tags; a `tlv:",unknown"` []Node field receives unmatched nodes.
func UnmarshalNodes(nodes []Node, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", v.Kind())
	}
	t := v.Type()

	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		tagConfig := fieldType.Tag.Get("tlv")

		if tagConfig == "" || isUnknownField(fieldType) {
			continue
		}

		tagHex := strings.Split(tagConfig, ",")[0]

		for idx, node := range nodes {
			if !strings.EqualFold(node.tag.String(), tagHex) {
				continue
			}
			if err := mapNodeToField(node, field); err != nil {
				return fmt.Errorf("field %s (%s): %w", fieldType.Name, tagHex, err)
			}
			consumed[idx] = true
		}
	}

	return collectUnknown(v, t, nodes, consumed)
}

func mapNodeToField(node Node, field reflect.Value) error {
	if field.Kind() == reflect.Slice && !isByteSlice(field) && field.Type() != nodeSliceType {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeToValue(node, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeToValue(node, field)
}

func decodeToValue(node Node, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(rawContent(node))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(rawContent(node))
		return nil

	case field.Kind() == reflect.String:
		field.SetString(hex.EncodeToString(rawContent(node)))
		return nil

	case field.Type() == nodeType:
		field.Set(reflect.ValueOf(node))
		return nil

	case field.Type() == nodeSliceType:
		if node.Encoding() == Constructed {
			field.Set(reflect.ValueOf(append([]Node(nil), node.parts...)))
		}
		return nil

	case isStructOrPtrToStruct(field):
		target := targetStruct(field)
		if node.Encoding() == Constructed {
			return UnmarshalNodes(node.parts, target.Interface())
		}
		return Unmarshal(node.value, target.Interface())
	}

	return nil
}

// rawContent is the value of a primitive node or the re-encoded children of
// a constructed one.
func rawContent(n Node) []byte {
	if n.Encoding() == Constructed {
		return EncodeAll(n.parts...)
	}
	return clone(n.value)
}

func isUnknownField(f reflect.StructField) bool {
	return f.Tag.Get("tlv") == ",unknown" || f.Name == "Unknown"
}

func collectUnknown(v reflect.Value, t reflect.Type, nodes []Node, consumed map[int]bool) error {
	var field reflect.Value
	for i := 0; i < v.NumField(); i++ {
		if isUnknownField(t.Field(i)) && t.Field(i).Type == nodeSliceType {
			field = v.Field(i)
			break
		}
	}
	if !field.IsValid() || !field.CanSet() {
		return nil
	}

	var leftovers []Node
	for idx, n := range nodes {
		if !consumed[idx] {
			leftovers = append(leftovers, n)
		}
	}
	if len(leftovers) > 0 {
		field.Set(reflect.ValueOf(leftovers))
	}
	return nil
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	if v.Kind() == reflect.Struct {
		return true
	}
	return v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct
}

func targetStruct(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field.Addr()
}
