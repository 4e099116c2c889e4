package sync

import (
	"bytes"
	"testing"

	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/keys"
)

func TestEncodeDecodeContextRoundTrips(t *testing.T) {
	doc := id.DocId{1}
	ctx := clock.New(doc, id.Hash{2})
	ctx.Insert(id.Dot{Peer: id.PeerId{3}, Counter: 1})
	ctx.Insert(id.Dot{Peer: id.PeerId{3}, Counter: 2})
	ctx.Insert(id.Dot{Peer: id.PeerId{3}, Counter: 3})
	ctx.Insert(id.Dot{Peer: id.PeerId{4}, Counter: 7})

	buf := EncodeContext(ctx)
	got, rest, err := DecodeContext(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if !got.Equal(ctx) {
		t.Fatal("decoded context does not equal the original")
	}
}

func TestEncodeDecodeCausalRoundTrips(t *testing.T) {
	doc := id.DocId{5}
	c := crdt.NewCausal(doc, id.Hash{6})
	c.Put([]byte("path-a"), []byte("value-a"))
	c.Put([]byte("path-b"), []byte("value-b"))
	d := id.Dot{Peer: id.PeerId{7}, Counter: 1}
	c.Tombstone(d, []byte("old-a"), []byte("old-b"))
	c.Ctx.Insert(d)

	buf := EncodeCausal(c)
	got, err := DecodeCausal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Store) != 2 || string(got.Store["path-a"]) != "value-a" || string(got.Store["path-b"]) != "value-b" {
		t.Fatalf("store did not round trip: %v", got.Store)
	}
	if len(got.Expired[d]) != 2 {
		t.Fatalf("expired did not round trip: %v", got.Expired)
	}
	if !got.Ctx.Equal(c.Ctx) {
		t.Fatal("context did not round trip")
	}
}

func TestSignedCausalVerifiesAndDetectsTampering(t *testing.T) {
	signer := keys.FromSeed([32]byte{9})
	doc := id.DocId{5}
	c := crdt.NewCausal(doc, id.Hash{})
	c.Put([]byte("p"), []byte("v"))

	sc := SignCausal(signer, c)
	decoded, err := sc.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded.Store["p"]) != "v" {
		t.Fatalf("unexpected decoded store: %v", decoded.Store)
	}

	tampered := &SignedCausal{Signer: sc.Signer, Sig: sc.Sig, Body: append(append([]byte{}, sc.Body...), 0xff)}
	if _, err := tampered.Verify(); err == nil {
		t.Fatal("expected tampered signed causal to fail verification")
	}
}

func TestEncodeDecodeSignedCausalRoundTrips(t *testing.T) {
	signer := keys.FromSeed([32]byte{1})
	c := crdt.NewCausal(id.DocId{2}, id.Hash{})
	c.Put([]byte("p"), []byte("v"))
	sc := SignCausal(signer, c)

	buf := EncodeSignedCausal(sc)
	got, err := DecodeSignedCausal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Signer != sc.Signer || got.Sig != sc.Sig || !bytes.Equal(got.Body, sc.Body) {
		t.Fatal("signed causal did not round trip byte-for-byte")
	}
}
