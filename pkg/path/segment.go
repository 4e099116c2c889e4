// Package path implements the bijective, self-delimiting byte encoding for
// segmented CRDT paths described in spec.md §3. Every segment is framed with
// its type and length at both ends, so a Path can be navigated forwards
// (First/Child) and backwards (Last/Parent) in O(1) without a full parse.
package path

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the tagged variant carried by a Segment.
type Kind uint8

const (
	KindSchema Kind = iota
	KindDoc
	KindField
	KindKey
	KindNonce
	KindDot
	KindPolicy
	KindPeer
	KindSig
	KindPosition
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "Schema"
	case KindDoc:
		return "Doc"
	case KindField:
		return "Field"
	case KindKey:
		return "Key"
	case KindNonce:
		return "Nonce"
	case KindDot:
		return "Dot"
	case KindPolicy:
		return "Policy"
	case KindPeer:
		return "Peer"
	case KindSig:
		return "Sig"
	case KindPosition:
		return "Position"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// PrimitiveKind tags the union carried by Key segments and by MV-Register /
// table values.
type PrimitiveKind uint8

const (
	PrimBool PrimitiveKind = iota
	PrimU64
	PrimI64
	PrimString
)

// Primitive is the tagged union `bool | u64 | i64 | String` from spec.md §3.
type Primitive struct {
	Kind PrimitiveKind
	B    bool
	U    uint64
	I    int64
	S    string
}

func Bool(b bool) Primitive       { return Primitive{Kind: PrimBool, B: b} }
func U64(u uint64) Primitive      { return Primitive{Kind: PrimU64, U: u} }
func I64(i int64) Primitive       { return Primitive{Kind: PrimI64, I: i} }
func Str(s string) Primitive      { return Primitive{Kind: PrimString, S: s} }

// Equal reports whether two primitives carry the same tag and value.
func (p Primitive) Equal(o Primitive) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PrimBool:
		return p.B == o.B
	case PrimU64:
		return p.U == o.U
	case PrimI64:
		return p.I == o.I
	case PrimString:
		return p.S == o.S
	}
	return false
}

func (p Primitive) String() string {
	switch p.Kind {
	case PrimBool:
		return fmt.Sprintf("%v", p.B)
	case PrimU64:
		return fmt.Sprintf("%d", p.U)
	case PrimI64:
		return fmt.Sprintf("%d", p.I)
	case PrimString:
		return fmt.Sprintf("%q", p.S)
	default:
		return "<invalid primitive>"
	}
}

// Encode serializes a Primitive to a self-contained byte string, the same
// framing DecodePrimitive expects back. Exported for callers (pkg/cursor)
// that store a primitive as an MV-Register or array leaf's value payload
// rather than as a path segment.
func (p Primitive) Encode() []byte { return p.encode() }

// encode serializes a Primitive to a self-contained byte string (used as the
// payload of Key/Primitive-bearing segments).
func (p Primitive) encode() []byte {
	switch p.Kind {
	case PrimBool:
		if p.B {
			return []byte{byte(PrimBool), 1}
		}
		return []byte{byte(PrimBool), 0}
	case PrimU64:
		buf := make([]byte, 9)
		buf[0] = byte(PrimU64)
		binary.BigEndian.PutUint64(buf[1:], p.U)
		return buf
	case PrimI64:
		buf := make([]byte, 9)
		buf[0] = byte(PrimI64)
		binary.BigEndian.PutUint64(buf[1:], uint64(p.I))
		return buf
	case PrimString:
		buf := make([]byte, 1+len(p.S))
		buf[0] = byte(PrimString)
		copy(buf[1:], p.S)
		return buf
	}
	return nil
}

// DecodePrimitive decodes a Primitive from the bytes produced by
// Primitive.encode, for callers (e.g. pkg/schema validating register leaves)
// that need to interpret a stored value payload.
func DecodePrimitive(data []byte) (Primitive, error) {
	return decodePrimitive(data)
}

func decodePrimitive(data []byte) (Primitive, error) {
	if len(data) < 1 {
		return Primitive{}, fmt.Errorf("path: empty primitive payload")
	}
	switch PrimitiveKind(data[0]) {
	case PrimBool:
		if len(data) != 2 {
			return Primitive{}, fmt.Errorf("path: bad bool primitive length %d", len(data))
		}
		return Bool(data[1] != 0), nil
	case PrimU64:
		if len(data) != 9 {
			return Primitive{}, fmt.Errorf("path: bad u64 primitive length %d", len(data))
		}
		return U64(binary.BigEndian.Uint64(data[1:])), nil
	case PrimI64:
		if len(data) != 9 {
			return Primitive{}, fmt.Errorf("path: bad i64 primitive length %d", len(data))
		}
		return I64(int64(binary.BigEndian.Uint64(data[1:]))), nil
	case PrimString:
		return Str(string(data[1:])), nil
	default:
		return Primitive{}, fmt.Errorf("path: unknown primitive kind %d", data[0])
	}
}
