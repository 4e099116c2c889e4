// Package schema describes the typed shape constraining a document's dot
// store: which CRDT kind lives at each path, and (recursively) what the
// nested kinds are.
//
// Grounded on _examples/original_source/crdt/src/schema.rs.
package schema

import (
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/path"
)

// Kind names a CRDT shape independent of its nested schema — the argument
// to Lens.Make/Destroy (spec.md §4.3).
type Kind uint8

const (
	KindNull Kind = iota
	KindFlag
	KindReg
	KindTable
	KindStruct
	KindArray
)

// Schema is a typed description constraining a dot store (spec.md §2).
// The zero value is Null, the identity schema every lens sequence starts
// from.
type Schema struct {
	Kind   Kind
	Prim   path.PrimitiveKind // meaningful for Reg and the key of Table
	Inner  *Schema            // meaningful for Table (value schema) and Array (element schema)
	Fields map[string]*Schema // meaningful for Struct
}

func Null() *Schema    { return &Schema{Kind: KindNull} }
func Flag() *Schema    { return &Schema{Kind: KindFlag} }
func Reg(k path.PrimitiveKind) *Schema { return &Schema{Kind: KindReg, Prim: k} }
func Table(k path.PrimitiveKind, inner *Schema) *Schema {
	return &Schema{Kind: KindTable, Prim: k, Inner: inner}
}
func Struct(fields map[string]*Schema) *Schema {
	if fields == nil {
		fields = map[string]*Schema{}
	}
	return &Schema{Kind: KindStruct, Fields: fields}
}
func Array(inner *Schema) *Schema { return &Schema{Kind: KindArray, Inner: inner} }

// Equal reports deep structural equality.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case KindReg:
		return s.Prim == o.Prim
	case KindTable:
		return s.Prim == o.Prim && s.Inner.Equal(o.Inner)
	case KindArray:
		return s.Inner.Equal(o.Inner)
	case KindStruct:
		if len(s.Fields) != len(o.Fields) {
			return false
		}
		for k, v := range s.Fields {
			ov, ok := o.Fields[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Clone returns a deep, independent copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{Kind: s.Kind, Prim: s.Prim}
	if s.Inner != nil {
		out.Inner = s.Inner.Clone()
	}
	if s.Fields != nil {
		out.Fields = make(map[string]*Schema, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v.Clone()
		}
	}
	return out
}

// Default returns the empty value a fresh instance of this schema starts
// from: nothing to validate against a CRDT view's initial (absent) state,
// since every view treats an unwritten prefix as empty.
func (s *Schema) Default() interface{} { return nil }

// validatePrimitive reports whether a primitive value may be stored at a
// Reg/Table key of the given primitive kind.
func validatePrimitive(k path.PrimitiveKind, v path.Primitive) bool {
	return v.Kind == k
}

// Field looks up a struct field's schema, erroring if absent or if s is not
// a struct.
func (s *Schema) Field(name string) (*Schema, error) {
	if s.Kind != KindStruct {
		return nil, errors.New(errors.SchemaMismatch, "field access on non-struct schema")
	}
	f, ok := s.Fields[name]
	if !ok {
		return nil, errors.New(errors.SchemaMismatch, "no such field %q", name)
	}
	return f, nil
}
