// Package inmem is a map-backed storage.Store for tests and ephemeral
// peers: no durability, no compaction, a single RWMutex serializing
// transactions.
package inmem

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/storage"
)

type tree map[string][]byte

// Store holds the four fixed trees in memory, guarded by one RWMutex.
// Read-write transactions hold the write lock for their lifetime; read-only
// transactions take a point-in-time full copy of every tree and release the
// lock immediately, so readers never block writers' commits from landing
// after the snapshot was taken.
type Store struct {
	mu    sync.RWMutex
	trees map[storage.Tree]tree
}

// New returns an empty Store.
func New() *Store {
	s := &Store{trees: map[storage.Tree]tree{}}
	for _, t := range []storage.Tree{storage.TreeLenses, storage.TreeDocs, storage.TreeCRDT, storage.TreeACL} {
		s.trees[t] = tree{}
	}
	return s
}

func (s *Store) Begin(ctx context.Context, update bool) (storage.Txn, error) {
	if update {
		s.mu.Lock()
		return &txn{store: s, update: true, writes: map[storage.Tree]map[string][]byte{}, deletes: map[storage.Tree]map[string]bool{}}, nil
	}

	s.mu.RLock()
	snap := make(map[storage.Tree]tree, len(s.trees))
	for t, m := range s.trees {
		cp := make(tree, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snap[t] = cp
	}
	s.mu.RUnlock()
	return &txn{store: s, update: false, snapshot: snap}, nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

// txn implements storage.Txn. Read-only transactions read from snapshot.
// Read-write transactions buffer writes/deletes and apply them to the
// backing Store on Commit, reading through to the live tree for Get/Scan so
// a transaction observes its own uncommitted writes.
type txn struct {
	store    *Store
	update   bool
	snapshot map[storage.Tree]tree

	writes  map[storage.Tree]map[string][]byte
	deletes map[storage.Tree]map[string]bool
	done    bool
}

func (t *txn) Get(tr storage.Tree, key []byte) ([]byte, error) {
	if t.done {
		return nil, errors.New(errors.Internal, "transaction already closed")
	}
	k := string(key)
	if t.update {
		if t.deletes[tr] != nil && t.deletes[tr][k] {
			return nil, errors.New(errors.NotFound, "no value for key %x in tree %q", key, tr)
		}
		if v, ok := t.writes[tr][k]; ok {
			return v, nil
		}
		if v, ok := t.store.trees[tr][k]; ok {
			return v, nil
		}
		return nil, errors.New(errors.NotFound, "no value for key %x in tree %q", key, tr)
	}
	if v, ok := t.snapshot[tr][k]; ok {
		return v, nil
	}
	return nil, errors.New(errors.NotFound, "no value for key %x in tree %q", key, tr)
}

func (t *txn) Set(tr storage.Tree, key, value []byte) error {
	if !t.update {
		return errors.New(errors.Internal, "write inside read-only transaction")
	}
	k := string(key)
	if t.writes[tr] == nil {
		t.writes[tr] = map[string][]byte{}
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.writes[tr][k] = cp
	if t.deletes[tr] != nil {
		delete(t.deletes[tr], k)
	}
	return nil
}

func (t *txn) Delete(tr storage.Tree, key []byte) error {
	if !t.update {
		return errors.New(errors.Internal, "write inside read-only transaction")
	}
	k := string(key)
	if t.deletes[tr] == nil {
		t.deletes[tr] = map[string]bool{}
	}
	t.deletes[tr][k] = true
	if t.writes[tr] != nil {
		delete(t.writes[tr], k)
	}
	return nil
}

func (t *txn) ScanPrefix(tr storage.Tree, prefix []byte) (storage.Iterator, error) {
	if t.done {
		return nil, errors.New(errors.Internal, "transaction already closed")
	}

	merged := map[string][]byte{}
	if t.update {
		for k, v := range t.store.trees[tr] {
			merged[k] = v
		}
		for k, v := range t.writes[tr] {
			merged[k] = v
		}
		for k := range t.deletes[tr] {
			delete(merged, k)
		}
	} else {
		for k, v := range t.snapshot[tr] {
			merged[k] = v
		}
	}

	var keys []string
	for k := range merged {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return &iterator{keys: keys, values: merged, pos: -1}, nil
}

func (t *txn) Commit() error {
	if !t.update {
		t.done = true
		return nil
	}
	if t.done {
		return errors.New(errors.Internal, "transaction already closed")
	}
	defer t.store.mu.Unlock()
	for tr, kv := range t.writes {
		for k, v := range kv {
			t.store.trees[tr][k] = v
		}
	}
	for tr, keys := range t.deletes {
		for k := range keys {
			delete(t.store.trees[tr], k)
		}
	}
	t.done = true
	return nil
}

func (t *txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	if t.update {
		t.store.mu.Unlock()
	}
}

type iterator struct {
	keys   []string
	values map[string][]byte
	pos    int
}

func (it *iterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *iterator) Key() []byte {
	return []byte(it.keys[it.pos])
}

func (it *iterator) Value() []byte {
	return it.values[it.keys[it.pos]]
}

func (it *iterator) Close() error { return nil }
