package lens

import (
	"testing"

	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
	"github.com/localfirst/ldb/pkg/schema"
)

func todosLenses() Lenses {
	return Lenses{
		Make(KindStruct()),
		AddProperty("todos"),
		LensIn("todos", Make(KindTable(path.PrimU64))),
		LensIn("todos", LensMapValue(Make(KindStruct()))),
		LensIn("todos", LensMapValue(AddProperty("title"))),
		LensIn("todos", LensMapValue(LensIn("title", Make(KindReg(path.PrimString))))),
		LensIn("todos", LensMapValue(AddProperty("done"))),
		LensIn("todos", LensMapValue(LensIn("done", Make(KindFlag())))),
	}
}

func TestLensesToSchema(t *testing.T) {
	s, err := todosLenses().ToSchema()
	if err != nil {
		t.Fatalf("ToSchema: %v", err)
	}
	if s.Kind != schema.KindStruct {
		t.Fatalf("expected struct root, got %v", s.Kind)
	}
	todos, err := s.Field("todos")
	if err != nil {
		t.Fatalf("field todos: %v", err)
	}
	if todos.Kind != schema.KindTable || todos.Prim != path.PrimU64 {
		t.Fatalf("unexpected todos schema: %+v", todos)
	}
	if todos.Inner.Kind != schema.KindStruct {
		t.Fatalf("expected struct value schema, got %v", todos.Inner.Kind)
	}
}

func TestLensReversibility(t *testing.T) {
	base := todosLenses()
	s0, err := base.ToSchema()
	if err != nil {
		t.Fatalf("ToSchema: %v", err)
	}

	forward := AddProperty("archived")
	s1 := s0.Clone()
	if err := forward.TransformSchema(s1); err != nil {
		t.Fatalf("forward transform: %v", err)
	}
	if _, err := s1.Field("archived"); err != nil {
		t.Fatalf("expected archived field, got %v", err)
	}

	back := forward.Reverse()
	if err := back.TransformSchema(s1); err != nil {
		t.Fatalf("reverse transform: %v", err)
	}
	if !s1.Equal(s0) {
		t.Fatalf("reverse(forward(s)) != s: got %+v want %+v", s1, s0)
	}
}

func TestLensRenamePropertyPathTransform(t *testing.T) {
	from := todosLenses()
	to := append(append(Lenses{}, from...), LensIn("todos", LensMapValue(RenameProperty("title", "task"))))

	doc := id.DocId{1}
	p := path.Of(path.SegDoc(doc))
	p = p.Append(path.SegField("todos")).Append(path.SegKey(path.U64(1))).Append(path.SegField("title"))

	rewritten, ok := from.TransformPath(p, to)
	if !ok {
		t.Fatal("expected rewritten path to survive rename")
	}
	segs := rewritten.Segments()
	last := segs[len(segs)-1]
	if last.Kind != path.KindField || last.Field != "task" {
		t.Fatalf("expected trailing field 'task', got %+v", last)
	}
}

func TestLensHoistPlungeAreInverse(t *testing.T) {
	l := HoistProperty("address", "city")
	r := l.Reverse()
	if r.Op != OpPlungeProperty || r.From != "address" || r.To != "city" {
		t.Fatalf("unexpected reverse: %+v", r)
	}
	r2 := r.Reverse()
	if r2.Op != OpHoistProperty || r2.From != "address" || r2.To != "city" {
		t.Fatalf("unexpected double reverse: %+v", r2)
	}
}

func TestLensesHash(t *testing.T) {
	a := todosLenses()
	b := todosLenses()
	if a.Hash() != b.Hash() {
		t.Fatal("identical sequences must hash identically")
	}
	c := append(append(Lenses{}, a...), AddProperty("extra"))
	if a.Hash() == c.Hash() {
		t.Fatal("different sequences must not collide")
	}
}

func TestLensesTransformLongestCommonPrefix(t *testing.T) {
	shared := todosLenses()
	a := append(append(Lenses{}, shared...), AddProperty("x"))
	b := append(append(Lenses{}, shared...), AddProperty("y"))

	ops := a.Transform(b)
	// Expect exactly one reversal (undo AddProperty(x)) followed by one
	// forward op (AddProperty(y)); the shared prefix contributes nothing.
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops past the common prefix, got %d: %+v", len(ops), ops)
	}
	if ops[0].Op != OpRemoveProperty || ops[0].Prop != "x" {
		t.Fatalf("expected first op to undo x, got %+v", ops[0])
	}
	if ops[1].Op != OpAddProperty || ops[1].Prop != "y" {
		t.Fatalf("expected second op to add y, got %+v", ops[1])
	}
}
