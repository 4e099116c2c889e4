package crdt

import (
	"sort"

	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// OR-Array layout: two disjoint sub-trees under base.
//
//	base . Field("VALUES") . Dot(uid) . Nonce . Peer . Sig  -> element value
//	base . Field("META")   . Dot(uid) . Position(pos) . Nonce . Peer . Sig -> (empty)
//
// uid is the dot of the mutation that first inserted the element — stable
// for the element's lifetime regardless of later moves or value updates.
// Concurrent updates/moves of the same element are resolved deterministically
// by comparing the authoring dot of the surviving candidates (see
// dotGreater); this is the array last_move/last_update tie-break recorded in
// DESIGN.md.

var valuesField = path.SegField("VALUES")
var metaField = path.SegField("META")

func valuesBase(base path.Path) path.Path { return base.Append(valuesField) }
func metaBase(base path.Path) path.Path   { return base.Append(metaField) }

// ValuePath returns the sub-path an array element's value leaf lives under,
// for callers (pkg/cursor) that navigate into an element without going
// through Update/Move/Delete.
func ValuePath(base path.Path, uid id.Dot) path.Path {
	return valuesBase(base).Append(path.SegDot(uid))
}

// Element is one live slot of an OR-Array, as rendered by List.
type Element struct {
	UID   id.Dot
	Pos   path.Position
	Value []byte
}

// dotGreater gives a total order over dots for breaking ties between
// concurrently-live candidates for the same uid's value or position:
// higher counter wins, ties broken by lexicographically greater peer id.
func dotGreater(a, b id.Dot) bool {
	if a.Counter != b.Counter {
		return a.Counter > b.Counter
	}
	for i := range a.Peer {
		if a.Peer[i] != b.Peer[i] {
			return a.Peer[i] > b.Peer[i]
		}
	}
	return false
}

func uidOf(p path.Path) (id.Dot, bool) {
	for _, seg := range p.Segments() {
		if seg.Kind == path.KindDot {
			return seg.Dot, true
		}
	}
	return id.Dot{}, false
}

func positionOf(p path.Path) (path.Position, bool) {
	for _, seg := range p.Segments() {
		if seg.Kind == path.KindPosition {
			return seg.Position(), true
		}
	}
	return nil, false
}

// List renders the array's current elements in position order. When more
// than one live candidate exists for an element's value or position (a
// concurrent update or move not yet resolved by a later write), the
// dot-greater candidate wins — update, then delete-absence, then move, in
// that precedence, since a surviving update/position always belongs to
// whichever dot is causally latest by this total order.
func List(s *State, base path.Path) []Element {
	type acc struct {
		bestValDot  id.Dot
		haveVal     bool
		value       []byte
		bestPosDot  id.Dot
		havePos     bool
		pos         path.Position
	}
	elems := map[id.Dot]*acc{}

	for k, v := range s.ScanPrefix(valuesBase(base)) {
		p := path.Path(k)
		uid, ok := uidOf(p)
		if !ok {
			continue
		}
		d, ok := DotOf(p)
		if !ok {
			continue
		}
		e := elems[uid]
		if e == nil {
			e = &acc{}
			elems[uid] = e
		}
		if !e.haveVal || dotGreater(d, e.bestValDot) {
			e.haveVal, e.bestValDot, e.value = true, d, v
		}
	}
	for k := range s.ScanPrefix(metaBase(base)) {
		p := path.Path(k)
		uid, ok := uidOf(p)
		if !ok {
			continue
		}
		d, ok := DotOf(p)
		if !ok {
			continue
		}
		pos, ok := positionOf(p)
		if !ok {
			continue
		}
		e := elems[uid]
		if e == nil {
			e = &acc{}
			elems[uid] = e
		}
		if !e.havePos || dotGreater(d, e.bestPosDot) {
			e.havePos, e.bestPosDot, e.pos = true, d, pos
		}
	}

	out := make([]Element, 0, len(elems))
	for uid, e := range elems {
		if !e.havePos {
			continue // element has no surviving position: fully deleted (meta tombstoned)
		}
		out = append(out, Element{UID: uid, Pos: e.pos, Value: e.value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Compare(out[j].Pos) < 0 })
	return out
}

// Insert places value immediately after `after` (the zero Dot means "at the
// head"), minting a fresh uid for the new element. Both the VALUES and META
// leaf are authored by the same dot.
func Insert(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, after id.Dot, value []byte) (id.Dot, *Causal) {
	elems := List(s, base)
	lo, hi := path.Zero(), path.Position(nil)
	if after != (id.Dot{}) {
		for i, e := range elems {
			if e.UID == after {
				lo = e.Pos
				if i+1 < len(elems) {
					hi = elems[i+1].Pos
				}
				break
			}
		}
	} else if len(elems) > 0 {
		hi = elems[0].Pos
	}
	var pos path.Position
	if hi == nil {
		pos = lo.Succ()
	} else {
		pos = lo.Mid(hi)
	}

	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		uidSeg := path.SegDot(dot)
		valPath := signedLeaf(signer, valuesBase(base).Append(uidSeg), nonce)
		metaPath := signedLeaf(signer, metaBase(base).Append(uidSeg).Append(path.SegPosition(pos)), nonce)
		return []write{
			{Path: valPath, Value: value},
			{Path: metaPath},
		}
	})
	return dot, c
}

// Update replaces the value of an existing element, tombstoning whatever
// value leaves are presently visible for uid.
func Update(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, uid id.Dot, value []byte) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		return []write{{Path: signedLeaf(signer, valuesBase(base).Append(path.SegDot(uid)), nonce), Value: value}}
	})
	tombstoneVisible(s, c, dot, valuesBase(base).Append(path.SegDot(uid)))
	return dot, c
}

// Move relocates an existing element to a new position, tombstoning
// whatever meta leaves are presently visible for uid.
func Move(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, uid id.Dot, newPos path.Position) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		return []write{{Path: signedLeaf(signer, metaBase(base).Append(path.SegDot(uid)).Append(path.SegPosition(newPos)), nonce)}}
	})
	tombstoneVisible(s, c, dot, metaBase(base).Append(path.SegDot(uid)))
	return dot, c
}

// Delete removes an element entirely, tombstoning both its visible value
// and meta leaves under a single dot.
func Delete(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, uid id.Dot) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(id.Dot, uint64) []write { return nil })
	tombstoneVisible(s, c, dot, valuesBase(base).Append(path.SegDot(uid)))
	tombstoneVisible(s, c, dot, metaBase(base).Append(path.SegDot(uid)))
	return dot, c
}
