package crdt

import (
	"sort"

	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Values returns every concurrently-live value of the MV-Register rooted at
// base, in a stable order (sorted by the raw leaf path bytes). More than
// one entry means a concurrent assign has not yet been resolved by a later
// write — the caller (cursor/doc) surfaces that as a conflict set rather
// than silently picking one, per spec.md §4.1.
func Values(s *State, base path.Path) [][]byte {
	live := s.ScanPrefix(base)
	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, live[k])
	}
	return out
}

// Assign resolves every concurrently-visible value and writes a single new
// one, all under one fresh dot.
func Assign(s *State, ctx *clock.CausalContext, signer Signer, base path.Path, value []byte) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		return []write{{Path: signedLeaf(signer, base, nonce), Value: value}}
	})
	tombstoneVisible(s, c, dot, base)
	return dot, c
}
