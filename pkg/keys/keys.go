// Package keys implements the ed25519 peer and document identities that
// back every signed path tail in spec.md §3 (mutation dots, policy claims):
// a KeyPair signs, its Peer id verifies.
package keys

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
)

// KeyPair is one peer's signing identity. It implements crdt.Signer.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidPath, err, "generating keypair")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// FromSeed deterministically derives a keypair from a 32-byte seed, for
// tests and for peers that persist only the seed.
func FromSeed(seed [32]byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}
}

// Peer returns the PeerId derived from the public key (spec.md §3: a Peer
// segment is the raw public key bytes).
func (k *KeyPair) Peer() id.PeerId {
	var p id.PeerId
	copy(p[:], k.Public)
	return p
}

// Sign produces a detached ed25519 signature over msg.
func (k *KeyPair) Sign(msg []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], ed25519.Sign(k.Private, msg))
	return sig
}

// Verify checks a signature produced by the peer identified by pub.
func Verify(pub id.PeerId, msg []byte, sig [64]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}
