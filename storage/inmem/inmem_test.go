package inmem

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/storage"
)

func TestSetGetCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	txn, err := s.Begin(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Set(storage.TreeDocs, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
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

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	r, _ := s.Begin(context.Background(), false)
	defer r.Discard()
	_, err := r.Get(storage.TreeDocs, []byte("nope"))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.NotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestDiscardDropsUncommittedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	txn, _ := s.Begin(ctx, true)
	_ = txn.Set(storage.TreeACL, []byte("k"), []byte("v"))
	txn.Discard()

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	if _, err := r.Get(storage.TreeACL, []byte("k")); err == nil {
		t.Fatal("expected discarded write to be absent")
	}
}

func TestScanPrefixOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()

	txn, _ := s.Begin(ctx, true)
	for _, k := range []string{"doc/2", "doc/1", "doc/10", "other/1"} {
		_ = txn.Set(storage.TreeCRDT, []byte(k), []byte(k))
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	it, err := r.ScanPrefix(storage.TreeCRDT, []byte("doc/"))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	want := []string{"doc/1", "doc/10", "doc/2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestReadOnlyTxnRejectsWrite(t *testing.T) {
	s := New()
	r, _ := s.Begin(context.Background(), false)
	defer r.Discard()
	if err := r.Set(storage.TreeDocs, []byte("x"), []byte("y")); err == nil {
		t.Fatal("expected write inside read-only transaction to fail")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	seed, _ := s.Begin(ctx, true)
	_ = seed.Set(storage.TreeDocs, []byte("a"), []byte("1"))
	if err := seed.Commit(); err != nil {
		t.Fatal(err)
	}

	reader, _ := s.Begin(ctx, false)
	defer reader.Discard()

	writer, _ := s.Begin(ctx, true)
	_ = writer.Set(storage.TreeDocs, []byte("a"), []byte("2"))
	if err := writer.Commit(); err != nil {
		t.Fatal(err)
	}

	v, err := reader.Get(storage.TreeDocs, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "1" {
		t.Fatalf("snapshot reader should still see 1, got %q", v)
	}
}

func TestDeleteThenScanExcludesKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	txn, _ := s.Begin(ctx, true)
	_ = txn.Set(storage.TreeLenses, []byte("l1"), []byte("v"))
	_ = txn.Set(storage.TreeLenses, []byte("l2"), []byte("v"))
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	del, _ := s.Begin(ctx, true)
	if err := del.Delete(storage.TreeLenses, []byte("l1")); err != nil {
		t.Fatal(err)
	}
	if err := del.Commit(); err != nil {
		t.Fatal(err)
	}

	r, _ := s.Begin(ctx, false)
	defer r.Discard()
	it, err := r.ScanPrefix(storage.TreeLenses, []byte("l"))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if len(keys) != 1 || keys[0] != "l2" {
		t.Fatalf("expected only l2 to remain, got %v", keys)
	}
}
