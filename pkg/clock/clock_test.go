package clock

import (
	"testing"

	"github.com/localfirst/ldb/pkg/id"
)

func mkDot(peer byte, counter uint64) id.Dot {
	return id.Dot{Peer: id.PeerId{peer}, Counter: counter}
}

func TestInsertAndContains(t *testing.T) {
	c := New(id.DocId{1}, id.Hash{})
	c.Insert(mkDot('a', 1))
	c.Insert(mkDot('a', 2))
	c.Insert(mkDot('a', 3))
	c.Insert(mkDot('b', 1))

	if !c.Contains(mkDot('a', 2)) {
		t.Error("expected a:2 to be contained")
	}
	if c.Contains(mkDot('a', 4)) {
		t.Error("a:4 should not be contained")
	}
	if c.Max(id.PeerId{'a'}) != 3 {
		t.Errorf("Max(a) = %d, want 3", c.Max(id.PeerId{'a'}))
	}
	next := c.Next(id.PeerId{'a'})
	if next.Counter != 4 {
		t.Errorf("Next(a).Counter = %d, want 4", next.Counter)
	}
}

func TestUnionIntersectDiff(t *testing.T) {
	a := New(id.DocId{1}, id.Hash{})
	a.Insert(mkDot('a', 1))
	a.Insert(mkDot('a', 2))
	a.Insert(mkDot('b', 1))

	b := New(id.DocId{1}, id.Hash{})
	b.Insert(mkDot('a', 2))
	b.Insert(mkDot('a', 3))
	b.Insert(mkDot('c', 1))

	u := a.Union(b)
	for _, d := range []id.Dot{mkDot('a', 1), mkDot('a', 2), mkDot('a', 3), mkDot('b', 1), mkDot('c', 1)} {
		if !u.Contains(d) {
			t.Errorf("union missing %v", d)
		}
	}

	i := a.Intersect(b)
	if !i.Contains(mkDot('a', 2)) {
		t.Error("intersection should contain a:2")
	}
	if i.Contains(mkDot('a', 1)) || i.Contains(mkDot('b', 1)) || i.Contains(mkDot('c', 1)) {
		t.Error("intersection should not contain disjoint dots")
	}

	d := a.Diff(b)
	if !d.Contains(mkDot('a', 1)) || !d.Contains(mkDot('b', 1)) {
		t.Error("diff should retain a:1 and b:1")
	}
	if d.Contains(mkDot('a', 2)) {
		t.Error("diff should drop a:2 (present in b)")
	}
}

func TestJoinIdempotentCommutativeAssociative(t *testing.T) {
	a := New(id.DocId{1}, id.Hash{})
	a.Insert(mkDot('a', 1))
	b := New(id.DocId{1}, id.Hash{})
	b.Insert(mkDot('b', 1))
	c := New(id.DocId{1}, id.Hash{})
	c.Insert(mkDot('c', 1))

	if !a.Union(a).Equal(a) {
		t.Error("union should be idempotent")
	}
	if !a.Union(b).Equal(b.Union(a)) {
		t.Error("union should be commutative")
	}
	left := a.Union(b).Union(c)
	right := a.Union(b.Union(c))
	if !left.Equal(right) {
		t.Error("union should be associative")
	}
}

func TestContainsContext(t *testing.T) {
	sup := New(id.DocId{1}, id.Hash{})
	sup.Insert(mkDot('a', 1))
	sup.Insert(mkDot('a', 2))
	sub := New(id.DocId{1}, id.Hash{})
	sub.Insert(mkDot('a', 1))

	if !sup.ContainsContext(sub) {
		t.Error("sup should contain sub")
	}
	if sub.ContainsContext(sup) {
		t.Error("sub should not contain sup")
	}
}
