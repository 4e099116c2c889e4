package crdt

import (
	"crypto/sha256"
	"testing"

	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// fakeSigner is a deterministic stand-in for pkg/keys's ed25519 signer:
// good enough to exercise path framing and dot attribution without pulling
// a crypto dependency into this package's tests.
type fakeSigner struct {
	peer id.PeerId
}

func (f fakeSigner) Peer() id.PeerId { return f.peer }

func (f fakeSigner) Sign(msg []byte) [64]byte {
	h := sha256.Sum256(append(append([]byte{}, f.peer[:]...), msg...))
	var sig [64]byte
	copy(sig[:32], h[:])
	copy(sig[32:], h[:])
	return sig
}

func newPeer(b byte) fakeSigner { return fakeSigner{peer: id.PeerId{b}} }

func testBase() path.Path {
	return path.Of(path.SegDoc(id.DocId{1}), path.SegField("flag"))
}

// scenario (a): two replicas concurrently toggle the same flag; after join
// in both directions the flag converges to the same state on both sides.
func TestScenarioFlagConvergence(t *testing.T) {
	doc, schema := id.DocId{1}, id.Hash{}
	a := NewState(doc, schema)
	b := NewState(doc, schema)
	base := testBase()
	peerA, peerB := newPeer('a'), newPeer('b')

	_, c1 := Enable(a, a.Ctx, peerA, base)
	Join(a, c1)
	if !Enabled(a, base) {
		t.Fatal("a should be enabled after its own Enable")
	}

	// b concurrently disables (observing nothing, since it hasn't seen a's enable yet)
	_, c2 := Disable(b, b.Ctx, peerB, base)
	Join(b, c2)
	if Enabled(b, base) {
		t.Fatal("b should be disabled after its own Disable")
	}

	// exchange: both converge, and enable wins over a concurrent disable
	Join(a, c2)
	Join(b, c1)
	if !Enabled(a, base) || !Enabled(b, base) {
		t.Fatal("enable should win over a concurrent disable after join")
	}
	if Enabled(a, base) != Enabled(b, base) {
		t.Fatal("both replicas must converge to the same flag state")
	}
}

// scenario (b): concurrent register assigns from two replicas both survive
// as a conflict set until a later write resolves them.
func TestScenarioRegisterConcurrentAssign(t *testing.T) {
	doc, schema := id.DocId{2}, id.Hash{}
	a := NewState(doc, schema)
	b := NewState(doc, schema)
	base := path.Of(path.SegDoc(doc), path.SegField("title"))
	peerA, peerB := newPeer('a'), newPeer('b')

	_, ca := Assign(a, a.Ctx, peerA, base, []byte("from-a"))
	Join(a, ca)
	_, cb := Assign(b, b.Ctx, peerB, base, []byte("from-b"))
	Join(b, cb)

	Join(a, cb)
	Join(b, ca)

	va := Values(a, base)
	vb := Values(b, base)
	if len(va) != 2 || len(vb) != 2 {
		t.Fatalf("expected both concurrent values to survive, got a=%d b=%d", len(va), len(vb))
	}

	// a later, causally-dependent assign resolves the conflict down to one value
	_, resolve := Assign(a, a.Ctx, peerA, base, []byte("resolved"))
	Join(a, resolve)
	if vs := Values(a, base); len(vs) != 1 || string(vs[0]) != "resolved" {
		t.Fatalf("resolving assign should leave exactly one value, got %v", vs)
	}
}

// scenario (c): removing then reinstating a map entry leaves the entry
// present, not haunted by the old tombstone (distinct nonces prevent
// resurrection collisions).
func TestScenarioMapRemoveThenReinstate(t *testing.T) {
	doc, schema := id.DocId{3}, id.Hash{}
	s := NewState(doc, schema)
	base := path.Of(path.SegDoc(doc), path.SegField("todos"))
	peer := newPeer('a')
	k := path.U64(1)

	_, c1 := Assign(s, s.Ctx, peer, Entry(base, k), []byte("buy milk"))
	Join(s, c1)
	if len(Keys(s, base)) != 1 {
		t.Fatal("expected one key after assign")
	}

	_, c2 := Remove(s, s.Ctx, peer, base, k)
	Join(s, c2)
	if len(Keys(s, base)) != 0 {
		t.Fatal("expected no keys after remove")
	}

	_, c3 := Assign(s, s.Ctx, peer, Entry(base, k), []byte("buy bread"))
	Join(s, c3)
	keys := Keys(s, base)
	if len(keys) != 1 {
		t.Fatalf("expected key reinstated, got %d", len(keys))
	}
	vs := Values(s, Entry(base, k))
	if len(vs) != 1 || string(vs[0]) != "buy bread" {
		t.Fatalf("expected reinstated value, got %v", vs)
	}
}

// scenario (f): Unjoin returns exactly the new dots' authored paths plus
// whatever they tombstoned, nothing more.
func TestScenarioUnjoinMinimal(t *testing.T) {
	doc, schema := id.DocId{4}, id.Hash{}
	s := NewState(doc, schema)
	base := path.Of(path.SegDoc(doc), path.SegField("flag"))
	peer := newPeer('a')

	d1, c1 := Enable(s, s.Ctx, peer, base)
	Join(s, c1)
	remoteCtx := s.Ctx.Clone() // a remote that has caught up to exactly c1

	d2, c2 := Enable(s, s.Ctx, peer, base) // re-enable: tombstones c1's witness, writes a new one
	Join(s, c2)

	delta := Unjoin(s, remoteCtx)

	if !delta.Ctx.Contains(d2) || delta.Ctx.Contains(d1) {
		t.Fatalf("unjoin ctx should carry exactly the new dot %v, got store=%v expired=%v", d2, delta.Store, delta.Expired)
	}
	if len(delta.Store) != 1 {
		t.Fatalf("expected exactly one fresh path, got %d", len(delta.Store))
	}
	if len(delta.Expired) != 1 || len(delta.Expired[d2]) != 1 {
		t.Fatalf("expected dot %v to have tombstoned exactly one path, got %v", d2, delta.Expired)
	}

	// applying the unjoin delta to a fresh replica that already has c1
	// reaches the same live state as s.
	remote := NewState(doc, schema)
	Join(remote, c1)
	Join(remote, delta)
	if !Enabled(remote, base) {
		t.Fatal("remote should converge to enabled")
	}
	if len(s.Live) != len(remote.Live) {
		t.Fatalf("remote live set should match source after unjoin catch-up: %d vs %d", len(remote.Live), len(s.Live))
	}
}
