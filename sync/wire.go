// Package sync is the gossip and request/response transport glue of
// spec.md §6: it carries a document's δ-causals between replicas inside
// AEAD-sealed frames, and answers the three unary requests (Lenses, Key,
// Unjoin) peers use to bootstrap a join.
//
// Grounded on _examples/original_source/crdt/src/backend.rs's gossip/sync
// loop for the request shapes, and on plugins/bundle/plugin.go +
// download/download.go for the session lifecycle (Start/Stop, reconnect
// backoff) this package's Session adapts from HTTP bundle polling to
// push/pull delta gossip over an encrypted Transport.
package sync

import (
	"encoding/binary"
	"sort"

	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/keys"
)

// No ecosystem codec in the retrieved pack targets this system's internal
// binary shapes (a range-compressed causal context, a dot-keyed expiry
// map); protobuf/flatbuffers appear only as badger's own transitive
// dependencies and would require a generated schema this package has no
// use for elsewhere. EncodeCausal/DecodeCausal follow pkg/lens.Lenses'
// own length-prefixed encoding convention instead.

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendU32(buf, uint32(len(b)))
	return append(buf, b...)
}

func takeU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errors.New(errors.NetworkDropped, "truncated frame: expected 4-byte length")
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:], nil
}

func takeU64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errors.New(errors.NetworkDropped, "truncated frame: expected 8-byte counter")
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

func takeBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := takeU32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, errors.New(errors.NetworkDropped, "truncated frame: expected %d bytes, got %d", n, len(rest))
	}
	return rest[:n], rest[n:], nil
}

// EncodeContext serializes a causal context to its range-compressed wire
// form: doc id, schema hash, then per-peer sorted range lists.
func EncodeContext(ctx *clock.CausalContext) []byte {
	var buf []byte
	buf = append(buf, ctx.Doc[:]...)
	buf = append(buf, ctx.Schema[:]...)
	peers := ctx.Peers()
	buf = appendU32(buf, uint32(len(peers)))
	for _, p := range peers {
		buf = append(buf, p[:]...)
		rs := ctx.RangesFor(p)
		buf = appendU32(buf, uint32(len(rs)))
		for _, r := range rs {
			buf = appendU64(buf, r.From)
			buf = appendU64(buf, r.To)
		}
	}
	return buf
}

// DecodeContext parses the wire form EncodeContext produces.
func DecodeContext(buf []byte) (*clock.CausalContext, []byte, error) {
	if len(buf) < 64 {
		return nil, nil, errors.New(errors.NetworkDropped, "truncated causal context")
	}
	var doc id.DocId
	var schema id.Hash
	copy(doc[:], buf[:32])
	copy(schema[:], buf[32:64])
	rest := buf[64:]

	nPeers, rest, err := takeU32(rest)
	if err != nil {
		return nil, nil, err
	}
	ctx := clock.New(doc, schema)
	for i := uint32(0); i < nPeers; i++ {
		if len(rest) < 32 {
			return nil, nil, errors.New(errors.NetworkDropped, "truncated peer id in causal context")
		}
		var peer id.PeerId
		copy(peer[:], rest[:32])
		rest = rest[32:]

		nRanges, r2, err := takeU32(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r2
		for j := uint32(0); j < nRanges; j++ {
			from, r3, err := takeU64(rest)
			if err != nil {
				return nil, nil, err
			}
			to, r4, err := takeU64(r3)
			if err != nil {
				return nil, nil, err
			}
			rest = r4
			ctx.InsertRange(peer, from, to)
		}
	}
	return ctx, rest, nil
}

// EncodeCausal serializes a causal delta to its wire form: a context,
// followed by the fresh Store entries and dot-keyed Expired entries, both
// sorted for determinism.
func EncodeCausal(c *crdt.Causal) []byte {
	var buf []byte
	buf = append(buf, EncodeContext(c.Ctx)...)

	keys := make([]string, 0, len(c.Store))
	for k := range c.Store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = appendU32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendBytes(buf, []byte(k))
		buf = appendBytes(buf, c.Store[k])
	}

	dots := make([]id.Dot, 0, len(c.Expired))
	for d := range c.Expired {
		dots = append(dots, d)
	}
	sort.Slice(dots, func(i, j int) bool { return dots[i].Less(dots[j]) })
	buf = appendU32(buf, uint32(len(dots)))
	for _, d := range dots {
		buf = append(buf, d.Peer[:]...)
		buf = appendU64(buf, d.Counter)
		paths := c.Expired[d]
		buf = appendU32(buf, uint32(len(paths)))
		for _, p := range paths {
			buf = appendBytes(buf, []byte(p))
		}
	}
	return buf
}

// DecodeCausal parses the wire form EncodeCausal produces.
func DecodeCausal(buf []byte) (*crdt.Causal, error) {
	ctx, rest, err := DecodeContext(buf)
	if err != nil {
		return nil, err
	}

	nStore, rest, err := takeU32(rest)
	if err != nil {
		return nil, err
	}
	store := make(map[string][]byte, nStore)
	for i := uint32(0); i < nStore; i++ {
		var k, v []byte
		k, rest, err = takeBytes(rest)
		if err != nil {
			return nil, err
		}
		v, rest, err = takeBytes(rest)
		if err != nil {
			return nil, err
		}
		store[string(k)] = v
	}

	nExpired, rest, err := takeU32(rest)
	if err != nil {
		return nil, err
	}
	expired := make(map[id.Dot][]string, nExpired)
	for i := uint32(0); i < nExpired; i++ {
		if len(rest) < 32 {
			return nil, errors.New(errors.NetworkDropped, "truncated dot in expired set")
		}
		var d id.Dot
		copy(d.Peer[:], rest[:32])
		rest = rest[32:]
		d.Counter, rest, err = takeU64(rest)
		if err != nil {
			return nil, err
		}
		nPaths, r2, err := takeU32(rest)
		if err != nil {
			return nil, err
		}
		rest = r2
		paths := make([]string, 0, nPaths)
		for j := uint32(0); j < nPaths; j++ {
			var p []byte
			p, rest, err = takeBytes(rest)
			if err != nil {
				return nil, err
			}
			paths = append(paths, string(p))
		}
		expired[d] = paths
	}

	return &crdt.Causal{Ctx: ctx, Store: store, Expired: expired}, nil
}

// SignedCausal is a causal delta together with the signature its author
// produced over the encoded bytes, proving provenance independently of
// whatever AEAD key happened to carry the frame (spec.md §6: "signature +
// signer peer + archived causal bytes").
type SignedCausal struct {
	Signer id.PeerId
	Sig    [64]byte
	Body   []byte
}

// SignCausal encodes and signs c as signer.
func SignCausal(signer crdt.Signer, c *crdt.Causal) *SignedCausal {
	body := EncodeCausal(c)
	return &SignedCausal{Signer: signer.Peer(), Sig: signer.Sign(body), Body: body}
}

// Verify checks sc's signature and, if it verifies, decodes the causal it
// carries.
func (sc *SignedCausal) Verify() (*crdt.Causal, error) {
	if !keys.Verify(sc.Signer, sc.Body, sc.Sig) {
		return nil, errors.New(errors.SignatureInvalid, "signature from %v does not verify", sc.Signer)
	}
	return DecodeCausal(sc.Body)
}

// EncodeSignedCausal serializes a SignedCausal for sealing into a Frame.
func EncodeSignedCausal(sc *SignedCausal) []byte {
	var buf []byte
	buf = append(buf, sc.Signer[:]...)
	buf = append(buf, sc.Sig[:]...)
	buf = appendBytes(buf, sc.Body)
	return buf
}

// DecodeSignedCausal parses the wire form EncodeSignedCausal produces.
func DecodeSignedCausal(buf []byte) (*SignedCausal, error) {
	if len(buf) < 32+64 {
		return nil, errors.New(errors.NetworkDropped, "truncated signed causal")
	}
	var sc SignedCausal
	copy(sc.Signer[:], buf[:32])
	copy(sc.Sig[:], buf[32:96])
	body, rest, err := takeBytes(buf[96:])
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.New(errors.NetworkDropped, "trailing bytes after signed causal")
	}
	sc.Body = body
	return &sc, nil
}
