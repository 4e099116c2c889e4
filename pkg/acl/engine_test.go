package acl

import (
	"testing"

	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

func docN(i byte) id.DocId {
	var d id.DocId
	for j := range d {
		d[j] = i
	}
	return d
}

func peerC(c byte) id.PeerId {
	var p id.PeerId
	for j := range p {
		p[j] = c
	}
	return p
}

func dotAt(p id.PeerId, ctr uint64) id.Dot {
	return id.Dot{Peer: p, Counter: ctr}
}

func rootLabel(i byte) path.Path {
	return path.Of(path.SegDoc(docN(i)))
}

func fieldLabel(root path.Path, k string) path.Path {
	return root.Append(path.SegField(k))
}

func canOf(peerChar byte, perm Permission, label path.Path) Can {
	return Can{Actor: PeerActor(peerC(peerChar)), Perm: perm, Label: label}
}

func TestLocalAuthoritySays(t *testing.T) {
	e := New()
	root9 := rootLabel(9)
	e.Says(dotAt(docN(9).AsPeer(), 1), DocActor(docN(9)), canOf('a', PermWrite, root9))
	e.Says(dotAt(docN(9).AsPeer(), 2), DocActor(docN(9)), canOf('a', PermRead, rootLabel(42)))

	if e.Can(canOf('b', PermRead, root9)) {
		t.Fatal("b should not have access")
	}
	if !e.Can(canOf('a', PermWrite, root9)) {
		t.Fatal("a should have write at root9")
	}
	if !e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("write implies read")
	}
	if e.Can(canOf('a', PermOwn, root9)) {
		t.Fatal("write should not imply own")
	}
	if !e.Can(canOf('a', PermWrite, fieldLabel(root9, "contacts"))) {
		t.Fatal("root grant should cover descendant field")
	}
	if e.Can(canOf('a', PermRead, rootLabel(42))) {
		t.Fatal("grant at a different doc must not apply")
	}
}

func TestSaysIfResolvesOnceConditionSatisfied(t *testing.T) {
	e := New()
	root9 := rootLabel(9)
	root42 := rootLabel(42)
	e.SaysIf(
		dotAt(docN(9).AsPeer(), 1),
		DocActor(docN(9)),
		canOf('a', PermWrite, root9),
		canOf('a', PermRead, fieldLabel(root42, "contacts")),
	)
	if e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("conditional claim should not fire before its condition is authorized")
	}

	e.Says(dotAt(docN(42).AsPeer(), 1), DocActor(docN(42)), canOf('a', PermWrite, root42))
	if !e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("conditional claim should fire once the condition is satisfied")
	}
}

func TestSaysIfUnboundBindsToSatisfyingPeer(t *testing.T) {
	e := New()
	root9 := rootLabel(9)
	root42 := rootLabel(42)
	e.SaysIf(
		dotAt(docN(9).AsPeer(), 1),
		DocActor(docN(9)),
		Can{Actor: Unbound(), Perm: PermWrite, Label: root9},
		Can{Actor: Unbound(), Perm: PermRead, Label: fieldLabel(root42, "contacts")},
	)
	if e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("unbound claim must not fire before any peer satisfies the condition")
	}

	e.Says(dotAt(docN(42).AsPeer(), 1), DocActor(docN(42)), canOf('a', PermWrite, root42))
	if !e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("unbound claim should bind to whichever peer satisfied the condition")
	}
}

func TestOwnAndControlPropagation(t *testing.T) {
	e := New()
	root0 := rootLabel(0)
	contacts := fieldLabel(root0, "contacts")

	e.Says(dotAt(docN(0).AsPeer(), 1), DocActor(docN(0)), canOf('a', PermOwn, root0))
	e.Says(dotAt(peerC('a'), 1), PeerActor(peerC('a')), canOf('b', PermControl, root0))
	e.Says(dotAt(peerC('b'), 1), PeerActor(peerC('b')), canOf('c', PermOwn, contacts))

	if e.Can(canOf('c', PermRead, contacts)) {
		t.Fatal("own grant under a controlled subtree should not itself be authorized by control alone")
	}

	e.Says(dotAt(peerC('b'), 3), PeerActor(peerC('b')), canOf('c', PermRead, contacts))
	if !e.Can(canOf('c', PermRead, contacts)) {
		t.Fatal("b's control should authorize a read grant to c")
	}
}

func TestRevokeDirect(t *testing.T) {
	e := New()
	root0 := rootLabel(0)
	grant := dotAt(docN(0).AsPeer(), 1)
	e.Says(grant, DocActor(docN(0)), canOf('a', PermOwn, root0))
	if !e.Can(canOf('a', PermOwn, root0)) {
		t.Fatal("expected initial grant to be authorized")
	}
	e.Revokes(dotAt(docN(0).AsPeer(), 2), DocActor(docN(0)), grant)
	if e.Can(canOf('a', PermOwn, root0)) {
		t.Fatal("expected grant to be revoked by local authority")
	}
}

func TestRevokeTransitive(t *testing.T) {
	e := New()
	root0 := rootLabel(0)
	e.Says(dotAt(docN(0).AsPeer(), 1), DocActor(docN(0)), canOf('a', PermOwn, root0))
	grantB := dotAt(peerC('a'), 1)
	e.Says(grantB, PeerActor(peerC('a')), canOf('b', PermOwn, root0))
	if !e.Can(canOf('b', PermOwn, root0)) {
		t.Fatal("expected b's delegated ownership to be authorized")
	}
	e.Revokes(dotAt(docN(0).AsPeer(), 2), DocActor(docN(0)), grantB)
	if e.Can(canOf('b', PermOwn, root0)) {
		t.Fatal("expected local authority to revoke a's delegated grant to b")
	}
}

func TestCannotRevokeInvalidly(t *testing.T) {
	e := New()
	root0 := rootLabel(0)
	grantA := dotAt(docN(0).AsPeer(), 1)
	e.Says(grantA, DocActor(docN(0)), canOf('a', PermOwn, root0))
	grantB := dotAt(peerC('a'), 1)
	e.Says(grantB, PeerActor(peerC('a')), canOf('b', PermOwn, root0))
	if !e.Can(canOf('b', PermOwn, root0)) {
		t.Fatal("expected b's delegated ownership to be authorized")
	}
	e.Revokes(dotAt(peerC('b'), 1), PeerActor(peerC('b')), grantA)
	if !e.Can(canOf('a', PermOwn, root0)) {
		t.Fatal("b should not be able to revoke a's grant, which outranks b")
	}
}

func TestAnonymousGrant(t *testing.T) {
	e := New()
	root9 := rootLabel(9)
	if e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("no grant yet")
	}
	e.Says(dotAt(docN(9).AsPeer(), 1), DocActor(docN(9)), Can{Actor: Anonymous(), Perm: PermRead, Label: root9})
	if !e.Can(canOf('a', PermRead, root9)) {
		t.Fatal("anonymous grant should cover any requesting peer")
	}
}
