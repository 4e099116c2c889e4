// Package crdt implements the composite δ-state CRDT described in spec.md
// §3/§4.1: a path-prefixed dot store with five logical views (EW-Flag,
// MV-Register, OR-Map, Struct, OR-Array) and join/unjoin against a causal
// context.
//
// Grounded on _examples/original_source/crdt/src/crdt.rs and crdt/src/crdts.rs.
package crdt

import (
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Causal is the unit of replication (spec.md §4.1): a causal context, the
// fresh paths the contained dots introduced, and — per dot — the paths that
// dot's mutation tombstoned. Attributing expirations to the dot that caused
// them (rather than treating Expired as a bare set of paths) is what lets
// Unjoin answer "what did dot D do" without retaining every historical
// delta: see State.ExpiredByDot.
type Causal struct {
	Ctx     *clock.CausalContext
	Store   map[string][]byte
	Expired map[id.Dot][]string
}

// NewCausal returns an empty delta scoped to the given document/schema.
func NewCausal(doc id.DocId, schema id.Hash) *Causal {
	return &Causal{Ctx: clock.New(doc, schema), Store: map[string][]byte{}, Expired: map[id.Dot][]string{}}
}

func key(p path.Path) string { return string(p) }

// Put stages a fresh path/value pair in the delta.
func (c *Causal) Put(p path.Path, v []byte) {
	c.Store[key(p)] = v
}

// Tombstone stages paths expired by dot d.
func (c *Causal) Tombstone(d id.Dot, paths ...path.Path) {
	ss := c.Expired[d]
	for _, p := range paths {
		ss = append(ss, key(p))
	}
	c.Expired[d] = ss
}

// Merge folds other's store/expired entries into c.
func (c *Causal) Merge(other *Causal) {
	for k, v := range other.Store {
		c.Store[k] = v
	}
	for d, ps := range other.Expired {
		c.Expired[d] = append(c.Expired[d], ps...)
	}
	c.Ctx = c.Ctx.Union(other.Ctx)
}

// State is the materialized, ever-growing replica of one document's dot
// store: every path ever authored is permanently indexed by its dot
// (PathByDot) and every tombstoning mutation's effect is indexed by the dot
// that performed it (ExpiredByDot), while Live holds only the paths
// presently un-tombstoned. This split is what makes Unjoin minimal (spec.md
// §8f) without retaining full historical delta objects.
//
// Dots are assumed to arrive in causal order (a tombstoning delta is never
// applied before the insert it tombstones); a full sync engine buffers
// out-of-order deltas to uphold this, which is out of scope for this
// package (see sync).
type State struct {
	Ctx          *clock.CausalContext
	Live         map[string][]byte
	PathByDot    map[id.Dot]string
	ExpiredByDot map[id.Dot][]string
}

// NewState returns an empty replica for doc/schema.
func NewState(doc id.DocId, schema id.Hash) *State {
	return &State{
		Ctx:          clock.New(doc, schema),
		Live:         map[string][]byte{},
		PathByDot:    map[id.Dot]string{},
		ExpiredByDot: map[id.Dot][]string{},
	}
}

// Get returns the value stored at path p, if p is currently live.
func (s *State) Get(p path.Path) ([]byte, bool) {
	v, ok := s.Live[key(p)]
	return v, ok
}

// ScanPrefix returns every live path with the given byte prefix. A real
// storage façade backs this with a sorted range scan (storage.Store); this
// in-memory form is the reference semantics used directly by the views in
// this package and by their unit tests.
func (s *State) ScanPrefix(prefix path.Path) map[string][]byte {
	out := map[string][]byte{}
	pfx := key(prefix)
	for k, v := range s.Live {
		if len(k) >= len(pfx) && k[:len(pfx)] == pfx {
			out[k] = v
		}
	}
	return out
}

// DotOf recovers the dot that authored a stored path. Every persisted path
// ends with a `Nonce(n) · Peer(p) · Sig(s)` tail (spec.md §3 invariant 5),
// except policy claims which carry their authoring Dot directly ahead of
// the Peer/Sig tail (the dot store's Policy variant is keyed by Dot, not by
// a synthesized nonce).
func DotOf(p path.Path) (id.Dot, bool) {
	last, ok := p.Last()
	if !ok || last.Kind != path.KindSig {
		return id.Dot{}, false
	}
	parent, ok := p.Parent()
	if !ok {
		return id.Dot{}, false
	}
	peerSeg, ok := parent.Last()
	if !ok || peerSeg.Kind != path.KindPeer {
		return id.Dot{}, false
	}
	grandparent, ok := parent.Parent()
	if !ok {
		return id.Dot{}, false
	}
	prev, ok := grandparent.Last()
	if !ok {
		return id.Dot{}, false
	}
	switch prev.Kind {
	case path.KindNonce:
		return id.Dot{Peer: peerSeg.Peer, Counter: prev.Nonce}, true
	case path.KindDot:
		return prev.Dot, true
	default:
		return id.Dot{}, false
	}
}

// Join applies causal c to state s: expired paths are removed, fresh paths
// are inserted, and the contexts are unioned. Join is idempotent,
// commutative, and associative because dots never repeat and tombstones are
// monotone (spec.md §4.1, testable property 1).
func Join(s *State, c *Causal) {
	for d, paths := range c.Expired {
		for _, p := range paths {
			delete(s.Live, p)
		}
		s.ExpiredByDot[d] = paths
	}
	for f, v := range c.Store {
		if d, ok := DotOf(path.Path(f)); ok {
			s.PathByDot[d] = f
		}
		s.Live[f] = v
	}
	*s.Ctx = *s.Ctx.Union(c.Ctx)
}

// Unjoin computes the minimal delta a peer holding remoteCtx needs to catch
// up to s: for every dot s has observed that remoteCtx has not, the path
// that dot authored (if any) is resent as a fresh Store entry when still
// live, and whatever that dot tombstoned is resent as an Expired entry
// (spec.md §8f).
func Unjoin(s *State, remoteCtx *clock.CausalContext) *Causal {
	missing := s.Ctx.Diff(remoteCtx)
	out := &Causal{Ctx: missing, Store: map[string][]byte{}, Expired: map[id.Dot][]string{}}
	for _, d := range missing.Dots() {
		if p, ok := s.PathByDot[d]; ok {
			if v, live := s.Live[p]; live {
				out.Store[p] = v
			}
		}
		if paths, ok := s.ExpiredByDot[d]; ok {
			out.Expired[d] = paths
		}
	}
	return out
}
