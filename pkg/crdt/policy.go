package crdt

import (
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// SayPolicy stages a signed policy claim leaf at base: base . Policy(payload)
// . Dot(dot) . Peer . Sig. The claim's own dot takes the place an ordinary
// leaf's Nonce would occupy (DotOf recovers it directly from the Dot
// segment), so a policy leaf's authorship survives storage/reload without
// needing a separate nonce-to-dot mapping.
//
// Policy leaves are deliberately outside tombstoneVisible's reach (see
// flag.go): the only way to retract one is an explicit Revokes claim,
// authored through this same function by pkg/acl's caller.
func SayPolicy(ctx *clock.CausalContext, signer Signer, base path.Path, payload []byte) (id.Dot, *Causal) {
	dot, c := mutate(ctx, signer, func(dot id.Dot, nonce uint64) []write {
		withDot := base.Append(path.SegPolicy(payload)).Append(path.SegDot(dot))
		withPeer := withDot.Append(path.SegPeer(signer.Peer()))
		sig := signer.Sign(withPeer)
		return []write{{Path: withPeer.Append(path.SegSig(sig))}}
	})
	return dot, c
}
