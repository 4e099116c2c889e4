package sync

import (
	cryptorand "crypto/rand"
	"sync"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"golang.org/x/crypto/chacha20poly1305"
)

// DocKey is the symmetric key securing one document's gossip topic with one
// peer (spec.md §6: "one AEAD key per (doc, peer), rotated on demand").
type DocKey [chacha20poly1305.KeySize]byte

// KeyRing holds the locally-known DocKeys this peer uses to seal and open
// gossip frames. A key is minted lazily on first use and replaced wholesale
// by Rotate; Set installs a key received from a remote peer via the Key
// request (spec.md §6).
type KeyRing struct {
	mu   sync.Mutex
	byDP map[id.DocId]map[id.PeerId]DocKey
}

// NewKeyRing returns an empty ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{byDP: map[id.DocId]map[id.PeerId]DocKey{}}
}

// Current returns doc/peer's key, minting a fresh random one if none exists
// yet.
func (r *KeyRing) Current(doc id.DocId, peer id.PeerId) DocKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPeer := r.peerMap(doc)
	k, ok := byPeer[peer]
	if !ok {
		k = randomKey()
		byPeer[peer] = k
	}
	return k
}

// Rotate replaces doc/peer's key with a fresh random one and returns it, for
// a local peer to then distribute via the Key response.
func (r *KeyRing) Rotate(doc id.DocId, peer id.PeerId) DocKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := randomKey()
	r.peerMap(doc)[peer] = k
	return k
}

// Set installs a key received from a remote peer's Key response.
func (r *KeyRing) Set(doc id.DocId, peer id.PeerId, key DocKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peerMap(doc)[peer] = key
}

// peerMap returns (creating if absent) doc's per-peer key map. Caller must
// hold r.mu.
func (r *KeyRing) peerMap(doc id.DocId) map[id.PeerId]DocKey {
	byPeer, ok := r.byDP[doc]
	if !ok {
		byPeer = map[id.PeerId]DocKey{}
		r.byDP[doc] = byPeer
	}
	return byPeer
}

func randomKey() DocKey {
	var k DocKey
	if _, err := cryptorand.Read(k[:]); err != nil {
		panic("sync: reading random key: " + err.Error())
	}
	return k
}

// Seal AEAD-encrypts plaintext under key, binding aad (normally the
// document id, for domain separation across a peer's documents) and
// prepending a fresh random nonce.
func Seal(key DocKey, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "constructing AEAD cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := cryptorand.Read(nonce); err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "generating nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a frame Seal produced.
func Open(key DocKey, aad, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "constructing AEAD cipher")
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New(errors.NetworkDropped, "frame shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, errors.Wrap(errors.NetworkDropped, err, "opening AEAD frame")
	}
	return pt, nil
}
