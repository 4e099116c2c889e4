package crdt

import (
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Enabled reports whether the EW-Flag rooted at base is presently on: the
// flag is on iff at least one enable-witness leaf under base is live.
// Concurrent enable/disable resolve in favour of enable (enable-wins),
// because a disable can only tombstone the witnesses it has causally
// observed — a concurrent enable's witness survives the join.
func Enabled(s *State, base path.Path) bool {
	for k := range s.ScanPrefix(base) {
		if !underPolicy(path.Path(k)[len(base):]) {
			return true
		}
	}
	return false
}

// Enable turns the flag on: it tombstones every witness currently visible
// to the caller and writes one fresh witness, all under a single dot.
func Enable(s *State, ctx *clock.CausalContext, signer Signer, base path.Path) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		return []write{{Path: signedLeaf(signer, base, nonce)}}
	})
	tombstoneVisible(s, c, dot, base)
	return dot, c
}

// Disable turns the flag off: it tombstones every witness currently visible
// and authors no new path, still spending a fresh dot (spec.md §3
// invariant 2).
func Disable(s *State, ctx *clock.CausalContext, signer Signer, base path.Path) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(id.Dot, uint64) []write { return nil })
	tombstoneVisible(s, c, dot, base)
	return dot, c
}

// tombstoneVisible stages every non-policy path currently live under prefix
// as expired-by-dot in c. Policy leaves (base . Policy(...) . Dot . Peer .
// Sig) are never swept up by an ordinary disable/remove/update — spec.md §3
// deliberately excludes policy claims from "tombstone every descendant" so
// that an ACL grant outlives whatever value it happens to sit above;
// retracting one requires an explicit Revokes claim (see pkg/acl).
func tombstoneVisible(s *State, c *Causal, dot id.Dot, prefix path.Path) {
	for k := range s.ScanPrefix(prefix) {
		p := path.Path(k)
		if underPolicy(p[len(prefix):]) {
			continue
		}
		c.Tombstone(dot, p)
	}
}

// underPolicy reports whether rest, a path relative to some prefix, passes
// through a Policy segment, i.e. belongs to a policy leaf.
func underPolicy(rest path.Path) bool {
	for _, seg := range rest.Segments() {
		if seg.Kind == path.KindPolicy {
			return true
		}
	}
	return false
}
