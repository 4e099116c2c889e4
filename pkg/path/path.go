package path

import (
	"encoding/binary"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
)

// Segment is one element of a decoded Path: the tagged union from spec.md
// §3 (Schema|Doc|Field|Key|Nonce|Dot|Policy|Peer|Sig|Position). Only the
// fields matching Kind are meaningful; Policy and Sig payloads are kept
// opaque (callers in pkg/acl and pkg/cursor own their encoding) to avoid a
// dependency cycle between the codec and the packages that define claims
// and signatures.
type Segment struct {
	Kind  Kind
	Hash  id.Hash
	Doc   id.DocId
	Field string
	Key   Primitive
	Nonce uint64
	Dot   id.Dot
	Peer  id.PeerId
	Raw   []byte // Policy payload, Sig (64 bytes), or Position bytes
}

func SegSchema(h id.Hash) Segment    { return Segment{Kind: KindSchema, Hash: h} }
func SegDoc(d id.DocId) Segment      { return Segment{Kind: KindDoc, Doc: d} }
func SegField(f string) Segment      { return Segment{Kind: KindField, Field: f} }
func SegKey(p Primitive) Segment     { return Segment{Kind: KindKey, Key: p} }
func SegNonce(n uint64) Segment      { return Segment{Kind: KindNonce, Nonce: n} }
func SegDot(d id.Dot) Segment        { return Segment{Kind: KindDot, Dot: d} }
func SegPolicy(raw []byte) Segment   { return Segment{Kind: KindPolicy, Raw: raw} }
func SegPeer(p id.PeerId) Segment    { return Segment{Kind: KindPeer, Peer: p} }
func SegSig(sig [64]byte) Segment    { return Segment{Kind: KindSig, Raw: sig[:]} }
func SegPosition(p Position) Segment { return Segment{Kind: KindPosition, Raw: []byte(p)} }

func (s Segment) Position() Position { return Position(s.Raw) }

func (s Segment) payload() []byte {
	switch s.Kind {
	case KindSchema:
		return s.Hash[:]
	case KindDoc:
		return s.Doc[:]
	case KindField:
		return []byte(s.Field)
	case KindKey:
		return s.Key.encode()
	case KindNonce:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, s.Nonce)
		return buf
	case KindDot:
		buf := make([]byte, 40)
		copy(buf, s.Dot.Peer[:])
		binary.BigEndian.PutUint64(buf[32:], s.Dot.Counter)
		return buf
	case KindPolicy, KindSig, KindPosition:
		return s.Raw
	case KindPeer:
		return s.Peer[:]
	default:
		return nil
	}
}

func decodeSegment(kind Kind, data []byte) (Segment, error) {
	switch kind {
	case KindSchema:
		var h id.Hash
		if len(data) != 32 {
			return Segment{}, errors.New(errors.InvalidPath, "schema segment must be 32 bytes, got %d", len(data))
		}
		copy(h[:], data)
		return SegSchema(h), nil
	case KindDoc:
		var d id.DocId
		if len(data) != 32 {
			return Segment{}, errors.New(errors.InvalidPath, "doc segment must be 32 bytes, got %d", len(data))
		}
		copy(d[:], data)
		return SegDoc(d), nil
	case KindField:
		return SegField(string(data)), nil
	case KindKey:
		p, err := decodePrimitive(data)
		if err != nil {
			return Segment{}, errors.Wrap(errors.InvalidPath, err, "decoding key segment")
		}
		return SegKey(p), nil
	case KindNonce:
		if len(data) != 8 {
			return Segment{}, errors.New(errors.InvalidPath, "nonce segment must be 8 bytes, got %d", len(data))
		}
		return SegNonce(binary.BigEndian.Uint64(data)), nil
	case KindDot:
		if len(data) != 40 {
			return Segment{}, errors.New(errors.InvalidPath, "dot segment must be 40 bytes, got %d", len(data))
		}
		var d id.Dot
		copy(d.Peer[:], data[:32])
		d.Counter = binary.BigEndian.Uint64(data[32:])
		return SegDot(d), nil
	case KindPolicy:
		return SegPolicy(append([]byte(nil), data...)), nil
	case KindPeer:
		var p id.PeerId
		if len(data) != 32 {
			return Segment{}, errors.New(errors.InvalidPath, "peer segment must be 32 bytes, got %d", len(data))
		}
		copy(p[:], data)
		return SegPeer(p), nil
	case KindSig:
		if len(data) != 64 {
			return Segment{}, errors.New(errors.InvalidPath, "sig segment must be 64 bytes, got %d", len(data))
		}
		return SegSig([64]byte(data)), nil
	case KindPosition:
		return SegPosition(Position(append([]byte(nil), data...))), nil
	default:
		return Segment{}, errors.New(errors.InvalidPath, "unknown segment kind %d", kind)
	}
}

// Path is an encoded, self-delimiting sequence of segments. Each segment is
// framed at both ends with its type byte and a big-endian uint16 length:
//
//	[type][len:2][payload][len:2][type]
//
// so both First()/Child() (forward) and Last()/Parent() (backward)
// navigation are O(1), and the codec is bijective between []Segment and
// Path. Grounded on _examples/original_source/crdt/src/path.rs.
type Path []byte

// Empty is the zero-length path, the root of the tree.
func Empty() Path { return nil }

// Append returns a new Path with seg appended as the final (child) segment.
func (p Path) Append(seg Segment) Path {
	payload := seg.payload()
	if len(payload) > 0xffff {
		panic("path: segment payload too large")
	}
	out := make([]byte, 0, len(p)+len(payload)+6)
	out = append(out, p...)
	out = append(out, byte(seg.Kind))
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	out = append(out, lenBuf[:]...)
	out = append(out, byte(seg.Kind))
	return Path(out)
}

// Of builds a Path from a sequence of segments applied left to right.
func Of(segs ...Segment) Path {
	p := Empty()
	for _, s := range segs {
		p = p.Append(s)
	}
	return p
}

func (p Path) IsEmpty() bool { return len(p) == 0 }

func (p Path) firstLen() (int, bool) {
	if len(p) < 5 {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(p[1:3])), true
}

func (p Path) lastLen() (int, bool) {
	if len(p) < 5 {
		return 0, false
	}
	end := len(p)
	return int(binary.BigEndian.Uint16(p[end-3 : end-1])), true
}

// First returns the root-most segment of the path.
func (p Path) First() (Segment, bool) {
	n, ok := p.firstLen()
	if !ok {
		return Segment{}, false
	}
	kind := Kind(p[0])
	seg, err := decodeSegment(kind, p[3:3+n])
	if err != nil {
		return Segment{}, false
	}
	return seg, true
}

// Last returns the leaf-most segment of the path.
func (p Path) Last() (Segment, bool) {
	n, ok := p.lastLen()
	if !ok {
		return Segment{}, false
	}
	end := len(p)
	kind := Kind(p[end-1])
	seg, err := decodeSegment(kind, p[end-3-n:end-3])
	if err != nil {
		return Segment{}, false
	}
	return seg, true
}

// Child drops the root-most segment, returning the remaining suffix.
func (p Path) Child() (Path, bool) {
	n, ok := p.firstLen()
	if !ok {
		return nil, false
	}
	return p[n+6:], true
}

// Parent drops the leaf-most segment, returning the remaining prefix.
func (p Path) Parent() (Path, bool) {
	n, ok := p.lastLen()
	if !ok {
		return nil, false
	}
	end := len(p)
	return p[:end-n-6], true
}

// IsAncestor reports whether p is a prefix of other (p == other counts as
// an ancestor of itself, matching spec.md §4.2's implication rule).
func (p Path) IsAncestor(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Equal reports byte-for-byte path equality.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Segments decodes the full path into its component segments, root first.
func (p Path) Segments() []Segment {
	var out []Segment
	rest := p
	for !rest.IsEmpty() {
		seg, ok := rest.First()
		if !ok {
			break
		}
		out = append(out, seg)
		next, ok := rest.Child()
		if !ok {
			break
		}
		rest = next
	}
	return out
}

// Clone returns an independent copy of the path's bytes.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}
