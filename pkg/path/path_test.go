package path

import (
	"testing"

	"github.com/localfirst/ldb/pkg/id"
)

func TestAppendAndNavigate(t *testing.T) {
	doc := id.DocId{1, 2, 3}
	peer := id.PeerId{4, 5, 6}

	p := Of(SegDoc(doc), SegField("todos"), SegKey(U64(42)), SegField("title"))

	first, ok := p.First()
	if !ok || first.Kind != KindDoc || first.Doc != doc {
		t.Fatalf("First() = %+v, %v", first, ok)
	}

	last, ok := p.Last()
	if !ok || last.Kind != KindField || last.Field != "title" {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}

	parent, ok := p.Parent()
	if !ok {
		t.Fatal("Parent() failed")
	}
	lastOfParent, ok := parent.Last()
	if !ok || lastOfParent.Kind != KindKey || !lastOfParent.Key.Equal(U64(42)) {
		t.Fatalf("Parent().Last() = %+v", lastOfParent)
	}

	child, ok := p.Child()
	if !ok {
		t.Fatal("Child() failed")
	}
	firstOfChild, ok := child.First()
	if !ok || firstOfChild.Field != "todos" {
		t.Fatalf("Child().First() = %+v", firstOfChild)
	}

	segs := p.Segments()
	if len(segs) != 4 {
		t.Fatalf("Segments() len = %d, want 4", len(segs))
	}
	if segs[0].Kind != KindDoc || segs[3].Field != "title" {
		t.Fatalf("Segments() = %+v", segs)
	}

	_ = peer
}

func TestIsAncestor(t *testing.T) {
	doc := id.DocId{9}
	root := Of(SegDoc(doc))
	child := root.Append(SegField("todos"))
	grandchild := child.Append(SegKey(U64(1)))

	if !root.IsAncestor(child) {
		t.Error("root should be ancestor of child")
	}
	if !root.IsAncestor(root) {
		t.Error("a path is its own ancestor")
	}
	if !child.IsAncestor(grandchild) {
		t.Error("child should be ancestor of grandchild")
	}
	if grandchild.IsAncestor(child) {
		t.Error("grandchild should not be ancestor of child")
	}

	other := Of(SegDoc(id.DocId{1}))
	if other.IsAncestor(child) {
		t.Error("unrelated doc root should not be ancestor")
	}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	cases := []Primitive{Bool(true), Bool(false), U64(1 << 40), I64(-7), Str("hello")}
	for _, c := range cases {
		p := Of(SegKey(c))
		seg, ok := p.Last()
		if !ok {
			t.Fatalf("no last segment for %v", c)
		}
		if !seg.Key.Equal(c) {
			t.Errorf("round trip %v -> %v", c, seg.Key)
		}
	}
}

func TestDotSegment(t *testing.T) {
	d := id.Dot{Peer: id.PeerId{1, 2}, Counter: 77}
	p := Of(SegDot(d))
	seg, ok := p.Last()
	if !ok || seg.Dot != d {
		t.Fatalf("dot round trip = %+v", seg)
	}
}

func TestEmptyPath(t *testing.T) {
	var p Path
	if !p.IsEmpty() {
		t.Error("zero path should be empty")
	}
	if _, ok := p.First(); ok {
		t.Error("empty path should have no First()")
	}
	if _, ok := p.Parent(); ok {
		t.Error("empty path should have no Parent()")
	}
}
