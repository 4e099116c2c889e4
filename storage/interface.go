// Package storage is the persistence façade: one embedded KV store holding
// four fixed trees (spec.md §6): lenses, docs, crdt, acl. Every tree is a
// flat sorted byte-key map supporting point reads/writes and prefix scans
// inside atomic transactions.
//
// Grounded on storage/interface.go and storage/disk/disk.go's Store/
// Transaction shape, generalized from OPA's path-indexed document store to
// this system's flat tree-plus-prefix model.
package storage

import "context"

// Tree names one of the four fixed key spaces spec.md §6 defines.
type Tree string

const (
	TreeLenses Tree = "lenses"
	TreeDocs   Tree = "docs"
	TreeCRDT   Tree = "crdt"
	TreeACL    Tree = "acl"
)

// Store is the storage backend. Implementations: inmem (tests, ephemeral
// peers) and disk (badger-backed, durable peers).
type Store interface {
	// Begin opens a new transaction. update selects read-write vs
	// read-only; read-only transactions may be served from a snapshot.
	Begin(ctx context.Context, update bool) (Txn, error)

	// Close releases the backend's resources (file handles, etc).
	Close(ctx context.Context) error
}

// Txn is one atomic unit of work against a Store.
type Txn interface {
	// Get fetches a single value. Returns a *errors.Error with code
	// errors.NotFound if key is absent from tree.
	Get(tree Tree, key []byte) ([]byte, error)

	// Set writes or overwrites a single value.
	Set(tree Tree, key, value []byte) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(tree Tree, key []byte) error

	// ScanPrefix returns every (key, value) pair in tree whose key starts
	// with prefix, in ascending key order.
	ScanPrefix(tree Tree, prefix []byte) (Iterator, error)

	// Commit applies all writes atomically. Txn must not be used after.
	Commit() error

	// Discard abandons the transaction's writes. Always safe to call,
	// including after Commit (a no-op then).
	Discard()
}

// Iterator walks key/value pairs in ascending key order. Callers must call
// Close when done, even after exhausting Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}
