// Package disk is a badger-backed storage.Store for durable peers. It
// partitions the four fixed trees within one badger database by prefixing
// every key with a one-byte tree tag, so a single LSM tree and a single
// WAL serve lenses, docs, crdt, and acl alike.
package disk

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/storage"
)

var treeTag = map[storage.Tree]byte{
	storage.TreeLenses: 'l',
	storage.TreeDocs:   'd',
	storage.TreeCRDT:   'c',
	storage.TreeACL:    'a',
}

func prefixKey(tree storage.Tree, key []byte) []byte {
	tag, ok := treeTag[tree]
	if !ok {
		tag = '?'
	}
	out := make([]byte, 0, len(key)+1)
	out = append(out, tag)
	out = append(out, key...)
	return out
}

// Options configures a disk Store.
type Options struct {
	// Dir is the badger data directory. ValueDir defaults to Dir.
	Dir string
	// InMemory runs badger without touching disk, for integration tests
	// that still want the real transaction semantics.
	InMemory bool
}

// Store is a storage.Store backed by a single badger.DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a badger database at opts.Dir.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(errors.StorageIo, err, "opening badger store at %s", opts.Dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Begin(ctx context.Context, update bool) (storage.Txn, error) {
	return &txn{btxn: s.db.NewTransaction(update), update: update}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.StorageIo, err, "closing badger store")
	}
	return nil
}

type txn struct {
	btxn   *badger.Txn
	update bool
	closed bool
}

func (t *txn) Get(tree storage.Tree, key []byte) ([]byte, error) {
	item, err := t.btxn.Get(prefixKey(tree, key))
	if err == badger.ErrKeyNotFound {
		return nil, errors.New(errors.NotFound, "no value for key %x in tree %q", key, tree)
	}
	if err != nil {
		return nil, errors.Wrap(errors.StorageIo, err, "getting key %x in tree %q", key, tree)
	}
	var val []byte
	err = item.Value(func(v []byte) error {
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.StorageIo, err, "reading value for key %x in tree %q", key, tree)
	}
	return val, nil
}

func (t *txn) Set(tree storage.Tree, key, value []byte) error {
	if err := t.btxn.Set(prefixKey(tree, key), value); err != nil {
		return errors.Wrap(errors.StorageIo, err, "setting key %x in tree %q", key, tree)
	}
	return nil
}

func (t *txn) Delete(tree storage.Tree, key []byte) error {
	if err := t.btxn.Delete(prefixKey(tree, key)); err != nil {
		return errors.Wrap(errors.StorageIo, err, "deleting key %x in tree %q", key, tree)
	}
	return nil
}

func (t *txn) ScanPrefix(tree storage.Tree, prefix []byte) (storage.Iterator, error) {
	full := prefixKey(tree, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full
	it := t.btxn.NewIterator(opts)
	it.Seek(full)
	return &iterator{it: it, prefix: full, started: false}, nil
}

func (t *txn) Commit() error {
	if t.closed {
		return errors.New(errors.Internal, "transaction already closed")
	}
	t.closed = true
	if err := t.btxn.Commit(); err != nil {
		return errors.Wrap(errors.StorageIo, err, "committing transaction")
	}
	return nil
}

func (t *txn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.btxn.Discard()
}

type iterator struct {
	it      *badger.Iterator
	prefix  []byte
	started bool
}

func (i *iterator) Next() bool {
	if !i.started {
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *iterator) Key() []byte {
	k := i.it.Item().KeyCopy(nil)
	return bytes.TrimPrefix(k, i.prefix[:1])
}

func (i *iterator) Value() []byte {
	v, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		return nil
	}
	return v
}

func (i *iterator) Close() error {
	i.it.Close()
	return nil
}
