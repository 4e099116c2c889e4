package acl

import (
	"encoding/binary"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

// EncodeSays serializes a direct grant claim to the payload of a policy
// leaf's Policy segment (pkg/crdt.SayPolicy carries the dot/signature; this
// payload is everything a policy leaf needs beyond that).
func EncodeSays(can Can) []byte {
	buf := []byte{byte(claimCan)}
	return appendCan(buf, can)
}

// EncodeSaysIf serializes a conditional grant claim.
func EncodeSaysIf(can, cond Can) []byte {
	buf := []byte{byte(claimCanIf)}
	buf = appendCan(buf, can)
	return appendCan(buf, cond)
}

// EncodeRevokes serializes a revocation claim naming the dot of the
// authorization it cancels.
func EncodeRevokes(target id.Dot) []byte {
	buf := make([]byte, 1, 41)
	buf[0] = byte(claimRevokes)
	buf = append(buf, target.Peer[:]...)
	var cbuf [8]byte
	binary.BigEndian.PutUint64(cbuf[:], target.Counter)
	return append(buf, cbuf[:]...)
}

func appendCan(buf []byte, c Can) []byte {
	buf = append(buf, byte(c.Actor.Tag))
	switch c.Actor.Tag {
	case ActorDoc:
		buf = append(buf, c.Actor.Doc[:]...)
	case ActorPeer:
		buf = append(buf, c.Actor.Peer[:]...)
	}
	buf = append(buf, byte(c.Perm))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.Label)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, c.Label...)
}

func decodeCan(b []byte) (Can, []byte, error) {
	if len(b) < 1 {
		return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: missing actor tag")
	}
	tag := ActorTag(b[0])
	b = b[1:]

	var actor Actor
	switch tag {
	case ActorDoc:
		if len(b) < 32 {
			return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: doc actor")
		}
		var d id.DocId
		copy(d[:], b[:32])
		actor, b = DocActor(d), b[32:]
	case ActorPeer:
		if len(b) < 32 {
			return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: peer actor")
		}
		var p id.PeerId
		copy(p[:], b[:32])
		actor, b = PeerActor(p), b[32:]
	case ActorAnonymous:
		actor = Anonymous()
	case ActorUnbound:
		actor = Unbound()
	default:
		return Can{}, nil, errors.New(errors.InvalidPath, "unknown actor tag %d", tag)
	}

	if len(b) < 1 {
		return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: missing permission")
	}
	perm := Permission(b[0])
	b = b[1:]

	if len(b) < 4 {
		return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: missing label length")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return Can{}, nil, errors.New(errors.InvalidPath, "truncated claim: label shorter than declared")
	}
	label := path.Path(append([]byte(nil), b[:n]...))
	b = b[n:]

	return Can{Actor: actor, Perm: perm, Label: label}, b, nil
}

// ClaimKind discriminates the three forms DecodeClaim can return, letting a
// caller outside this package (doc's subscription fan-out) react to an ACL
// change without re-parsing the payload itself.
type ClaimKind uint8

const (
	ClaimGranted ClaimKind = iota
	ClaimConditionallyGranted
	ClaimRevoked
)

// DecodedClaim summarizes what DecodeClaim just loaded into the engine,
// mirroring _examples/original_source/crdt/src/subscriber.rs's
// Event::Granted/Event::Revoked.
type DecodedClaim struct {
	Kind   ClaimKind
	Can    Can    // ClaimGranted, ClaimConditionallyGranted
	Target id.Dot // ClaimRevoked
}

// DecodeClaim parses a policy leaf's payload and loads it into e under dot
// and actor — both recovered by the caller from the leaf's own Dot/Peer
// path segments, since the payload carries only the claim's content.
func (e *Engine) DecodeClaim(dot id.Dot, actor Actor, payload []byte) (DecodedClaim, error) {
	if len(payload) < 1 {
		return DecodedClaim{}, errors.New(errors.InvalidPath, "empty policy payload")
	}
	kind := claimKind(payload[0])
	rest := payload[1:]

	switch kind {
	case claimCan:
		can, _, err := decodeCan(rest)
		if err != nil {
			return DecodedClaim{}, err
		}
		e.Says(dot, actor, can)
		return DecodedClaim{Kind: ClaimGranted, Can: can}, nil
	case claimCanIf:
		can, rest2, err := decodeCan(rest)
		if err != nil {
			return DecodedClaim{}, err
		}
		cond, _, err := decodeCan(rest2)
		if err != nil {
			return DecodedClaim{}, err
		}
		e.SaysIf(dot, actor, can, cond)
		return DecodedClaim{Kind: ClaimConditionallyGranted, Can: can}, nil
	case claimRevokes:
		if len(rest) != 40 {
			return DecodedClaim{}, errors.New(errors.InvalidPath, "bad revoke payload length %d", len(rest))
		}
		var target id.Dot
		copy(target.Peer[:], rest[:32])
		target.Counter = binary.BigEndian.Uint64(rest[32:])
		e.Revokes(dot, actor, target)
		return DecodedClaim{Kind: ClaimRevoked, Target: target}, nil
	default:
		return DecodedClaim{}, errors.New(errors.InvalidPath, "unknown claim kind %d", kind)
	}
}
