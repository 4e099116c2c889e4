package disk

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/storage"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestDiskSetGetCommit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	w, err := s.Begin(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Set(storage.TreeDocs, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r, err := s.Begin(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Discard()
	v, err := r.Get(storage.TreeDocs, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q want 1", v)
	}
}

func TestDiskGetMissingReturnsNotFound(t *testing.T) {
	s := openTest(t)
	r, _ := s.Begin(context.Background(), false)
	defer r.Discard()
	_, err := r.Get(storage.TreeDocs, []byte("nope"))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.NotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestDiskTreesAreIsolated(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	w, _ := s.Begin(ctx, true)
	if err := w.Set(storage.TreeCRDT, []byte("k"), []byte("crdt-value")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	if _, err := r.Get(storage.TreeACL, []byte("k")); err == nil {
		t.Fatal("expected key under a different tree to be absent")
	}
	v, err := r.Get(storage.TreeCRDT, []byte("k"))
	if err != nil || string(v) != "crdt-value" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestDiskScanPrefix(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	w, _ := s.Begin(ctx, true)
	for _, k := range []string{"p/1", "p/2", "q/1"} {
		if err := w.Set(storage.TreeLenses, []byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	it, err := r.ScanPrefix(storage.TreeLenses, []byte("p/"))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 keys under prefix p/, got %d", count)
	}
}

func TestDiskDiscardAbandonsWrites(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	w, _ := s.Begin(ctx, true)
	if err := w.Set(storage.TreeDocs, []byte("x"), []byte("y")); err != nil {
		t.Fatal(err)
	}
	w.Discard()

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	if _, err := r.Get(storage.TreeDocs, []byte("x")); err == nil {
		t.Fatal("expected discarded write to be absent")
	}
}
