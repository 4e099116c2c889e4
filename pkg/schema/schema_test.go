package schema

import (
	"testing"

	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
)

type fakeSigner struct{ peer id.PeerId }

func (f fakeSigner) Peer() id.PeerId { return f.peer }
func (f fakeSigner) Sign(msg []byte) [64]byte {
	var sig [64]byte
	copy(sig[:], msg)
	return sig
}

func TestValidateStructAndTable(t *testing.T) {
	doc := id.DocId{1}
	sch := Struct(map[string]*Schema{
		"todos": Table(path.PrimU64, Struct(map[string]*Schema{
			"title": Reg(path.PrimString),
			"done":  Flag(),
		})),
	})

	s := crdt.NewState(doc, id.Hash{})
	peer := fakeSigner{peer: id.PeerId{9}}
	base := path.Of(path.SegDoc(doc))
	todos := base.Append(path.SegField("todos"))
	entry := crdt.Entry(todos, path.U64(1))
	title := entry.Append(path.SegField("title"))
	done := entry.Append(path.SegField("done"))

	_, c1 := crdt.Assign(s, s.Ctx, peer, title, path.Str("buy milk").Encode())
	crdt.Join(s, c1)
	_, c2 := crdt.Enable(s, s.Ctx, peer, done)
	crdt.Join(s, c2)

	if err := Validate(s, base, sch); err != nil {
		t.Fatalf("expected valid store, got %v", err)
	}

	bad := Struct(map[string]*Schema{
		"todos": Table(path.PrimU64, Struct(map[string]*Schema{
			"title": Reg(path.PrimBool), // mismatched kind
			"done":  Flag(),
		})),
	})
	if err := Validate(s, base, bad); err == nil {
		t.Fatal("expected schema mismatch error")
	}
}

func TestSchemaEqualAndClone(t *testing.T) {
	a := Struct(map[string]*Schema{"x": Reg(path.PrimU64)})
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone should be equal to original")
	}
	b.Fields["x"] = Reg(path.PrimBool)
	if a.Equal(b) {
		t.Fatal("mutating clone should not affect original")
	}
}
