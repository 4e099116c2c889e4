package acl

import (
	"testing"

	"github.com/localfirst/ldb/pkg/id"
)

func TestEncodeDecodeSays(t *testing.T) {
	can := canOf('a', PermWrite, rootLabel(9))
	payload := EncodeSays(can)

	e := New()
	dot := dotAt(docN(9).AsPeer(), 1)
	if _, err := e.DecodeClaim(dot, DocActor(docN(9)), payload); err != nil {
		t.Fatal(err)
	}
	if !e.Can(can) {
		t.Fatal("expected decoded Says claim to authorize the original grant")
	}
}

func TestEncodeDecodeSaysIf(t *testing.T) {
	can := canOf('a', PermWrite, rootLabel(9))
	cond := canOf('a', PermRead, rootLabel(42))
	payload := EncodeSaysIf(can, cond)

	e := New()
	dot := dotAt(docN(9).AsPeer(), 1)
	if _, err := e.DecodeClaim(dot, DocActor(docN(9)), payload); err != nil {
		t.Fatal(err)
	}
	if e.Can(can) {
		t.Fatal("conditional claim should not fire before its condition is authorized")
	}
	e.Says(dotAt(docN(42).AsPeer(), 1), DocActor(docN(42)), cond)
	if !e.Can(can) {
		t.Fatal("conditional claim should fire once its condition is satisfied")
	}
}

func TestEncodeDecodeRevokes(t *testing.T) {
	target := dotAt(docN(0).AsPeer(), 1)
	payload := EncodeRevokes(target)

	e := New()
	root0 := rootLabel(0)
	e.Says(target, DocActor(docN(0)), canOf('a', PermOwn, root0))
	if !e.Can(canOf('a', PermOwn, root0)) {
		t.Fatal("expected initial grant to be authorized")
	}

	if _, err := e.DecodeClaim(dotAt(docN(0).AsPeer(), 2), DocActor(docN(0)), payload); err != nil {
		t.Fatal(err)
	}
	if e.Can(canOf('a', PermOwn, root0)) {
		t.Fatal("expected revoked grant to no longer be authorized")
	}
}

func TestDecodeClaimRejectsTruncatedPayload(t *testing.T) {
	e := New()
	if _, err := e.DecodeClaim(id.Dot{}, Anonymous(), []byte{byte(claimCan)}); err == nil {
		t.Fatal("expected truncated claim payload to error")
	}
}
