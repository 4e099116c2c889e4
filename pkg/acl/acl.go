// Package acl implements the access-control engine of spec.md §4.2: a
// small fixed-point evaluator over three signed claim forms (Can, CanIf,
// Revokes) resolving to a set of non-revoked authorizations.
//
// Grounded on _examples/original_source/acl/src/engine.rs, whose `crepe!`
// Datalog program is ported here as a hand-rolled naive fixed-point loop —
// the rule set is five fixed derivations over three claim shapes, not an
// open-ended query language, so iterating passes to quiescence reproduces
// the same result set as the semi-naive crepe evaluator without pulling in
// a general Datalog engine.
package acl

import (
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// Permission is the total order Sync < Read < Write < Control < Own
// (spec.md §4.2).
type Permission uint8

const (
	PermSync Permission = iota
	PermRead
	PermWrite
	PermControl
	PermOwn
)

func (p Permission) String() string {
	switch p {
	case PermSync:
		return "sync"
	case PermRead:
		return "read"
	case PermWrite:
		return "write"
	case PermControl:
		return "control"
	case PermOwn:
		return "own"
	default:
		return "unknown"
	}
}

// Controllable reports whether a grant of this permission falls under the
// "controllable subset" a Control claim (rather than only Own) may delegate.
func (p Permission) Controllable() bool {
	return p == PermSync || p == PermRead || p == PermWrite
}

// ActorTag discriminates the Actor union.
type ActorTag uint8

const (
	ActorDoc ActorTag = iota
	ActorPeer
	ActorAnonymous
	ActorUnbound
)

// Actor is `Peer(p) | Anonymous | Unbound` from spec.md §4.2, extended with
// a Doc variant identifying a document's local authority (the peer whose
// identity equals the document's own id).
type Actor struct {
	Tag  ActorTag
	Doc  id.DocId
	Peer id.PeerId
}

func DocActor(d id.DocId) Actor   { return Actor{Tag: ActorDoc, Doc: d} }
func PeerActor(p id.PeerId) Actor { return Actor{Tag: ActorPeer, Peer: p} }
func Anonymous() Actor            { return Actor{Tag: ActorAnonymous} }
func Unbound() Actor              { return Actor{Tag: ActorUnbound} }

func (a Actor) isLocalAuthority() bool { return a.Tag == ActorDoc }

func (a Actor) key() string {
	buf := make([]byte, 0, 65)
	buf = append(buf, byte(a.Tag))
	buf = append(buf, a.Doc[:]...)
	buf = append(buf, a.Peer[:]...)
	return string(buf)
}

// Can is one authorization claim: actor may exercise perm at or below path
// (spec.md §4.2's Can(actor, perm, path)).
type Can struct {
	Actor Actor
	Perm  Permission
	Label path.Path
}

// root returns the document the claim's label is rooted at; the label's
// first segment is always a Doc segment (spec.md §3).
func (c Can) root() id.DocId {
	seg, ok := c.Label.First()
	if !ok {
		return id.DocId{}
	}
	return seg.Doc
}

// Implies reports whether authorization c covers requirement o: o's actor
// must match (or be bound/anonymous-compatible), c's permission must be at
// least o's, and c's label must be an ancestor of (or equal to) o's.
func (c Can) Implies(o Can) bool {
	if !actorCompatible(c.Actor, o.Actor) {
		return false
	}
	return o.Perm <= c.Perm && c.Label.IsAncestor(o.Label)
}

func actorCompatible(auth, req Actor) bool {
	if req.Tag == ActorUnbound {
		return true
	}
	if auth.Tag == ActorAnonymous {
		return true
	}
	return auth == req
}

// bind rebinds c's actor to auth's, keeping c's own permission and label —
// how a CanIf's conditional claim resolves once some authorization implies
// its condition (spec.md §4.2 rule 4).
func (c Can) bind(auth Can) Can {
	return Can{Actor: auth.Actor, Perm: c.Perm, Label: c.Label}
}

func (c Can) key() string {
	return c.Actor.key() + "|" + string([]byte{byte(c.Perm)}) + "|" + string(c.Label)
}

func (c Can) equalLabel(o Can) bool { return c.Label.Equal(o.Label) }
