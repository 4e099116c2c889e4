package crdt

import (
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Signer produces the Peer/Sig tail every mutated path carries (spec.md §3
// invariant 5: "every policy and every value leaf is signed"). pkg/keys
// implements this over ed25519; tests here use a fake.
type Signer interface {
	Peer() id.PeerId
	Sign(msg []byte) [64]byte
}

// signedLeaf appends a Nonce(nonce)·Peer·Sig tail to base, signing over
// every byte up to (but not including) the signature itself so a verifier
// can recompute it from the path alone.
func signedLeaf(signer Signer, base path.Path, nonce uint64) path.Path {
	withPeer := base.Append(path.SegNonce(nonce)).Append(path.SegPeer(signer.Peer()))
	sig := signer.Sign(withPeer)
	return withPeer.Append(path.SegSig(sig))
}

// write is one path/value pair a mutation stages for insertion.
type write struct {
	Path  path.Path
	Value []byte
}

// mutate allocates the next dot for signer under ctx, builds the paths that
// dot authors via build, and returns both the dot and a Causal recording
// them as staged inserts. Every exported mutator in this package funnels
// through here so each logical operation spends exactly one fresh dot
// (spec.md §3 invariant 2), even when it writes several paths (e.g. an
// array insert's VALUES and META pair) or writes none at all (a pure
// tombstone such as disable/remove/delete, which calls mutate with a build
// func returning nil and then stages its own Tombstone entries).
func mutate(ctx *clock.CausalContext, signer Signer, build func(dot id.Dot, nonce uint64) []write) (id.Dot, *Causal) {
	dot := ctx.Next(signer.Peer())
	writes := build(dot, dot.Counter)
	c := NewCausal(ctx.Doc, ctx.Schema)
	c.Ctx.Insert(dot)
	for _, w := range writes {
		c.Put(w.Path, w.Value)
	}
	return dot, c
}
