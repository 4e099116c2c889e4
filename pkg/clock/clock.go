// Package clock implements the causal context described in spec.md §3/§Glossary:
// a compact representation of a set of observed dots, one sorted run-length
// range list per peer, supporting union/intersection/difference/containment.
//
// Grounded on _examples/original_source/crdt/src/dotset2.rs, simplified from
// a generic RangeSet<u64> crate to a plain sorted, non-overlapping []rng per
// peer (no interval-set library in the retrieved pack covers u64 run-length
// sets keyed by raw 32-byte peer ids).
package clock

import (
	"sort"

	"github.com/localfirst/ldb/pkg/id"
)

// rng is an inclusive-exclusive counter range [from, to).
type rng struct {
	from, to uint64
}

// CausalContext is the set of dots a replica has observed for one document,
// plus the document and schema it applies to (spec.md §3).
type CausalContext struct {
	Doc    id.DocId
	Schema id.Hash
	dots   map[id.PeerId][]rng
}

// New returns an empty causal context scoped to doc/schema.
func New(doc id.DocId, schema id.Hash) *CausalContext {
	return &CausalContext{Doc: doc, Schema: schema, dots: map[id.PeerId][]rng{}}
}

// Clone returns an independent deep copy.
func (c *CausalContext) Clone() *CausalContext {
	out := New(c.Doc, c.Schema)
	for p, rs := range c.dots {
		cp := make([]rng, len(rs))
		copy(cp, rs)
		out.dots[p] = cp
	}
	return out
}

// Contains reports whether d has been observed.
func (c *CausalContext) Contains(d id.Dot) bool {
	for _, r := range c.dots[d.Peer] {
		if d.Counter >= r.from && d.Counter < r.to {
			return true
		}
	}
	return false
}

// Insert records d as observed, merging adjacent/overlapping ranges.
func (c *CausalContext) Insert(d id.Dot) {
	rs := c.dots[d.Peer]
	rs = append(rs, rng{d.Counter, d.Counter + 1})
	c.dots[d.Peer] = normalize(rs)
}

// Max returns the highest observed counter for peer, or 0 if none.
func (c *CausalContext) Max(peer id.PeerId) uint64 {
	rs := c.dots[peer]
	if len(rs) == 0 {
		return 0
	}
	return rs[len(rs)-1].to - 1
}

// Next returns the dot one past the highest observed counter for peer: the
// dot a fresh local mutation by peer should carry.
func (c *CausalContext) Next(peer id.PeerId) id.Dot {
	return id.Dot{Peer: peer, Counter: c.Max(peer) + 1}
}

// IsEmpty reports whether the context has observed no dots at all.
func (c *CausalContext) IsEmpty() bool {
	for _, rs := range c.dots {
		if len(rs) > 0 {
			return false
		}
	}
	return true
}

// Peers returns the set of peers with at least one observed dot, sorted for
// determinism.
func (c *CausalContext) Peers() []id.PeerId {
	out := make([]id.PeerId, 0, len(c.dots))
	for p, rs := range c.dots {
		if len(rs) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Dots enumerates every observed dot, in a stable peer-then-counter order.
func (c *CausalContext) Dots() []id.Dot {
	var out []id.Dot
	for _, p := range c.Peers() {
		for _, r := range c.dots[p] {
			for cnt := r.from; cnt < r.to; cnt++ {
				out = append(out, id.Dot{Peer: p, Counter: cnt})
			}
		}
	}
	return out
}

func less(a, b id.PeerId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func normalize(rs []rng) []rng {
	sort.Slice(rs, func(i, j int) bool { return rs[i].from < rs[j].from })
	out := rs[:0:0]
	for _, r := range rs {
		if n := len(out); n > 0 && r.from <= out[n-1].to {
			if r.to > out[n-1].to {
				out[n-1].to = r.to
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func rangesOp(a, b []rng, op func(av, bv bool) bool) []rng {
	// Sweep the boundary points of both range lists and keep the subranges
	// where op(inA, inB) holds.
	type pt struct {
		at       uint64
		startA   bool
		endA     bool
		startB   bool
		endB     bool
	}
	bounds := map[uint64]bool{}
	for _, r := range a {
		bounds[r.from] = true
		bounds[r.to] = true
	}
	for _, r := range b {
		bounds[r.from] = true
		bounds[r.to] = true
	}
	pts := make([]uint64, 0, len(bounds))
	for k := range bounds {
		pts = append(pts, k)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i] < pts[j] })

	inA := func(v uint64) bool {
		for _, r := range a {
			if v >= r.from && v < r.to {
				return true
			}
		}
		return false
	}
	inB := func(v uint64) bool {
		for _, r := range b {
			if v >= r.from && v < r.to {
				return true
			}
		}
		return false
	}

	var out []rng
	for i := 0; i+1 < len(pts); i++ {
		lo, hi := pts[i], pts[i+1]
		if op(inA(lo), inB(lo)) {
			if n := len(out); n > 0 && out[n-1].to == lo {
				out[n-1].to = hi
			} else {
				out = append(out, rng{lo, hi})
			}
		}
	}
	return out
}

// Union returns the set of dots observed by either context.
func (c *CausalContext) Union(o *CausalContext) *CausalContext {
	out := New(c.Doc, c.Schema)
	peers := map[id.PeerId]bool{}
	for p := range c.dots {
		peers[p] = true
	}
	for p := range o.dots {
		peers[p] = true
	}
	for p := range peers {
		merged := rangesOp(c.dots[p], o.dots[p], func(a, b bool) bool { return a || b })
		if len(merged) > 0 {
			out.dots[p] = merged
		}
	}
	return out
}

// Intersect returns the set of dots observed by both contexts.
func (c *CausalContext) Intersect(o *CausalContext) *CausalContext {
	out := New(c.Doc, c.Schema)
	for p, rs := range c.dots {
		merged := rangesOp(rs, o.dots[p], func(a, b bool) bool { return a && b })
		if len(merged) > 0 {
			out.dots[p] = merged
		}
	}
	return out
}

// Diff returns the dots observed by c but not by o: c \ o.
func (c *CausalContext) Diff(o *CausalContext) *CausalContext {
	out := New(c.Doc, c.Schema)
	for p, rs := range c.dots {
		merged := rangesOp(rs, o.dots[p], func(a, b bool) bool { return a && !b })
		if len(merged) > 0 {
			out.dots[p] = merged
		}
	}
	return out
}

// Range is an inclusive-exclusive counter range, exported for wire codecs
// that want the context's native range-compressed form instead of Dots'
// per-counter expansion (see sync.EncodeContext).
type Range struct {
	From, To uint64
}

// RangesFor returns peer's observed ranges in ascending order.
func (c *CausalContext) RangesFor(peer id.PeerId) []Range {
	rs := c.dots[peer]
	out := make([]Range, len(rs))
	for i, r := range rs {
		out[i] = Range{From: r.from, To: r.to}
	}
	return out
}

// InsertRange records every counter in [from, to) as observed for peer.
func (c *CausalContext) InsertRange(peer id.PeerId, from, to uint64) {
	if from >= to {
		return
	}
	rs := append(c.dots[peer], rng{from, to})
	c.dots[peer] = normalize(rs)
}

// ContainsContext reports whether every dot in o is also in c.
func (c *CausalContext) ContainsContext(o *CausalContext) bool {
	return o.Diff(c).IsEmpty()
}

// Equal reports whether c and o contain exactly the same dots.
func (c *CausalContext) Equal(o *CausalContext) bool {
	return c.Diff(o).IsEmpty() && o.Diff(c).IsEmpty()
}
