package crdt

import (
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Entry returns the sub-path an OR-Map key's value lives under.
func Entry(base path.Path, key path.Primitive) path.Path {
	return base.Append(path.SegKey(key))
}

// Keys returns the set of live keys in the OR-Map rooted at base: every
// distinct Key segment immediately beneath base that still has at least one
// live path under it.
func Keys(s *State, base path.Path) []path.Primitive {
	seen := map[string]path.Primitive{}
	for k := range s.ScanPrefix(base) {
		rest := path.Path(k[len(base):])
		seg, ok := rest.First()
		if !ok || seg.Kind != path.KindKey {
			continue
		}
		seen[seg.Key.String()] = seg.Key
	}
	out := make([]path.Primitive, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

// Remove tombstones every live path under key's entire subtree — the value
// nested there may itself be any CRDT, so the removal is a prefix-wide
// tombstone, not a single leaf (spec.md §4.1 OR-Map semantics).
func Remove(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, key path.Primitive) (id.Dot, *Causal) {
	return RemovePath(s, ctx, signer, Entry(base, key))
}

// RemovePath tombstones every live non-policy path at or under p under a
// single fresh dot. Remove is RemovePath applied to an OR-Map entry's
// sub-path; cursor's generic subtree removal calls it directly when the
// caller already has the full path rather than a (base, key) pair.
func RemovePath(s *State, ctx *clock.CausalContext, signer Signer, p path.Path) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(id.Dot, uint64) []write { return nil })
	tombstoneVisible(s, c, dot, p)
	return dot, c
}
