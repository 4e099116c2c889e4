// Package id defines the identifier types shared across the path codec, the
// causal context, and the ACL engine: 32-byte ed25519 public keys for peers
// and documents, the blake3 lens-sequence hash, and the (peer, counter) dot.
package id

import (
	"encoding/base64"
	"fmt"
)

// PeerId is the ed25519 public key identifying a replica.
type PeerId [32]byte

func (p PeerId) String() string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(p[:])
}

// DocId is the public key of a document's ephemeral creation keypair. A peer
// whose identity equals a document's id is that document's local authority.
type DocId [32]byte

func (d DocId) String() string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(d[:])
}

// AsPeer reinterprets a document id as the peer id of its local authority.
func (d DocId) AsPeer() PeerId { return PeerId(d) }

// Hash is a 32-byte blake3 digest identifying a lens sequence or derived
// schema.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// EmptyHash is the content address of the empty lens sequence (spec.md §6).
var EmptyHash = Hash{}

// Dot uniquely identifies one mutation: a peer id and a strictly monotone
// per-peer counter starting at 1.
type Dot struct {
	Peer    PeerId
	Counter uint64
}

func (d Dot) String() string {
	return fmt.Sprintf("%s:%d", d.Peer, d.Counter)
}

// Less provides a total order over dots (peer id first, then counter), used
// for producing stable iteration order over dot sets.
func (d Dot) Less(o Dot) bool {
	if d.Peer != o.Peer {
		for i := range d.Peer {
			if d.Peer[i] != o.Peer[i] {
				return d.Peer[i] < o.Peer[i]
			}
		}
	}
	return d.Counter < o.Counter
}
