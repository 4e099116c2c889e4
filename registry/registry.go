// Package registry is the content-addressed store of lens sequences and
// their derived schemas (spec.md §4.3): every document references its
// current schema by the blake3 hash of the lens sequence that produced it,
// so two peers that independently reach the same hash agree on the schema
// without exchanging it.
//
// Grounded on _examples/original_source/crdt/src/registry.rs: a content-
// addressed map plus a "transform path between two registered sequences"
// convenience that threads through to pkg/lens.Lenses.Transform.
package registry

import (
	"sync"

	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/lens"
	"github.com/localfirst/ldb/pkg/path"
	"github.com/localfirst/ldb/pkg/schema"
)

// entry pairs a registered lens sequence with its derived schema, computed
// once at registration time so repeated lookups don't re-walk the sequence.
type entry struct {
	lenses Lenses
	schema *schema.Schema
}

// Lenses is a local alias kept for readability in this package's API;
// identical to lens.Lenses.
type Lenses = lens.Lenses

// Registry is a concurrency-safe content-addressed store. The zero value
// is not ready for use; call New.
type Registry struct {
	mu     sync.RWMutex
	byHash map[id.Hash]entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byHash: map[id.Hash]entry{}}
}

// Register computes ls's content hash, derives its schema, and stores both.
// Re-registering an already-known sequence is a no-op (idempotent by
// construction, since the hash is a pure function of the sequence).
func (r *Registry) Register(ls Lenses) (id.Hash, error) {
	h := ls.Hash()
	r.mu.RLock()
	if _, ok := r.byHash[h]; ok {
		r.mu.RUnlock()
		return h, nil
	}
	r.mu.RUnlock()

	s, err := ls.ToSchema()
	if err != nil {
		return id.Hash{}, errors.Wrap(errors.MigrationFailed, err, "registering lens sequence")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[h] = entry{lenses: ls, schema: s}
	return h, nil
}

// Lenses returns the sequence registered under h.
func (r *Registry) Lenses(h id.Hash) (Lenses, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHash[h]
	if !ok {
		return nil, errors.New(errors.NotFound, "no lens sequence registered for hash %s", h)
	}
	return e.lenses, nil
}

// Schema returns the schema derived from the sequence registered under h.
func (r *Registry) Schema(h id.Hash) (*schema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHash[h]
	if !ok {
		return nil, errors.New(errors.NotFound, "no schema registered for hash %s", h)
	}
	return e.schema, nil
}

// TransformPath rewrites a path written under the schema registered at
// from into the equivalent path under the schema registered at to, per
// spec.md §4.3. Returns ok=false if the path has no image under to (the
// lens diff deletes it).
func (r *Registry) TransformPath(from, to id.Hash, p path.Path) (path.Path, bool, error) {
	a, err := r.Lenses(from)
	if err != nil {
		return nil, false, err
	}
	b, err := r.Lenses(to)
	if err != nil {
		return nil, false, err
	}
	out, ok := a.TransformPath(p, b)
	return out, ok, nil
}
