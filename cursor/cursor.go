// Package cursor navigates a document's typed dot store and builds signed
// causal deltas against it. A Cursor never mutates the State it reads from;
// every verb returns a Causal for the caller (package doc) to validate,
// authorize, and join.
//
// Grounded on _examples/original_source/crdt/src/cursor.rs, adapted from a
// direct DotStore-signing implementation to compose with this module's
// pkg/crdt view functions (Enable/Assign/Insert/...), which already own
// nonce allocation, signing, and dot bookkeeping.
package cursor

import (
	"github.com/localfirst/ldb/pkg/acl"
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/path"
	"github.com/localfirst/ldb/pkg/schema"
)

// Cursor points at one location in a document's schema-shaped dot store.
type Cursor struct {
	state  *crdt.State
	ctx    *clock.CausalContext
	engine *acl.Engine
	signer crdt.Signer
	path   path.Path
	schema *schema.Schema

	// Array-element context: set by Index, cleared otherwise. Mutators
	// route through Update/Move/Delete instead of the plain Reg/Flag verbs
	// when inArray is set, since the live dot store at an array element's
	// value path still needs its VALUES/META pair kept in lockstep.
	inArray   bool
	arrayBase path.Path
	arrayUID  id.Dot
}

// New returns a cursor at the root of doc's dot store.
func New(state *crdt.State, ctx *clock.CausalContext, engine *acl.Engine, signer crdt.Signer, doc id.DocId, s *schema.Schema) *Cursor {
	return &Cursor{state: state, ctx: ctx, engine: engine, signer: signer, path: path.Of(path.SegDoc(doc)), schema: s}
}

// Path returns the cursor's current location.
func (c *Cursor) Path() path.Path { return c.path }

// Schema returns the schema governing the cursor's current location.
func (c *Cursor) Schema() *schema.Schema { return c.schema }

func (c *Cursor) clone() *Cursor {
	cp := *c
	return &cp
}

func (c *Cursor) actor() acl.Actor { return acl.PeerActor(c.signer.Peer()) }

func (c *Cursor) canRead() bool {
	return c.engine.Can(acl.Can{Actor: c.actor(), Perm: acl.PermRead, Label: c.path})
}

func (c *Cursor) canWrite() bool {
	return c.engine.Can(acl.Can{Actor: c.actor(), Perm: acl.PermWrite, Label: c.path})
}

func (c *Cursor) requireWrite() error {
	if !c.canWrite() {
		return errors.New(errors.Unauthorized, "peer lacks write permission at %v", c.path)
	}
	return nil
}

// Field navigates into a struct field.
func (c *Cursor) Field(name string) (*Cursor, error) {
	if c.schema.Kind != schema.KindStruct {
		return nil, errors.New(errors.SchemaMismatch, "field %q: cursor is not at a struct", name)
	}
	fs, err := c.schema.Field(name)
	if err != nil {
		return nil, err
	}
	n := c.clone()
	n.path = c.path.Append(path.SegField(name))
	n.schema = fs
	n.inArray, n.arrayBase, n.arrayUID = false, nil, id.Dot{}
	return n, nil
}

// Key navigates into a table (OR-Map) entry.
func (c *Cursor) Key(k path.Primitive) (*Cursor, error) {
	if c.schema.Kind != schema.KindTable {
		return nil, errors.New(errors.SchemaMismatch, "key: cursor is not at a table")
	}
	if k.Kind != c.schema.Prim {
		return nil, errors.New(errors.SchemaMismatch, "key: expected primitive kind %v, got %v", c.schema.Prim, k.Kind)
	}
	n := c.clone()
	n.path = crdt.Entry(c.path, k)
	n.schema = c.schema.Inner
	n.inArray, n.arrayBase, n.arrayUID = false, nil, id.Dot{}
	return n, nil
}

// Keys lists the live keys of a table cursor.
func (c *Cursor) Keys() ([]path.Primitive, error) {
	if c.schema.Kind != schema.KindTable {
		return nil, errors.New(errors.SchemaMismatch, "keys: cursor is not at a table")
	}
	if !c.canRead() {
		return nil, errors.New(errors.Unauthorized, "peer lacks read permission at %v", c.path)
	}
	return crdt.Keys(c.state, c.path), nil
}

// RemoveKey removes a table entry's entire subtree in one step, without
// first navigating a child cursor there.
func (c *Cursor) RemoveKey(k path.Primitive) (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindTable {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "removeKey: cursor is not at a table")
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	dot, causal := crdt.Remove(c.state, c.ctx, c.signer, c.path, k)
	return dot, causal, nil
}

// Index navigates to the ix'th live element of an OR-Array, in position
// order. Returns an error if ix is out of range; use Append/InsertAfter to
// create a new element.
func (c *Cursor) Index(ix int) (*Cursor, error) {
	if c.schema.Kind != schema.KindArray {
		return nil, errors.New(errors.SchemaMismatch, "index: cursor is not at an array")
	}
	elems := crdt.List(c.state, c.path)
	if ix < 0 || ix >= len(elems) {
		return nil, errors.New(errors.InvalidPath, "index %d out of range (length %d)", ix, len(elems))
	}
	e := elems[ix]
	n := c.clone()
	n.inArray = true
	n.arrayBase = c.path
	n.arrayUID = e.UID
	n.path = crdt.ValuePath(c.path, e.UID)
	n.schema = c.schema.Inner
	return n, nil
}

// Len returns the number of live elements of an array cursor.
func (c *Cursor) Len() (int, error) {
	if c.schema.Kind != schema.KindArray {
		return 0, errors.New(errors.SchemaMismatch, "len: cursor is not at an array")
	}
	if !c.canRead() {
		return 0, errors.New(errors.Unauthorized, "peer lacks read permission at %v", c.path)
	}
	return len(crdt.List(c.state, c.path)), nil
}

// InsertAfter inserts value immediately after the element authored by
// dot after (the zero Dot means "at the head") into an array cursor.
func (c *Cursor) InsertAfter(after id.Dot, value []byte) (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindArray {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "insertAfter: cursor is not at an array")
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	dot, causal := crdt.Insert(c.state, c.ctx, c.signer, c.path, after, value)
	return dot, causal, nil
}

// Append inserts value as the array's new last element.
func (c *Cursor) Append(value []byte) (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindArray {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "append: cursor is not at an array")
	}
	elems := crdt.List(c.state, c.path)
	var after id.Dot
	if len(elems) > 0 {
		after = elems[len(elems)-1].UID
	}
	return c.InsertAfter(after, value)
}

// Move relocates the array element this cursor points at to a new position.
func (c *Cursor) Move(newPos path.Position) (id.Dot, *crdt.Causal, error) {
	if !c.inArray {
		return id.Dot{}, nil, errors.New(errors.InvalidPath, "move: cursor is not positioned on an array element")
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	dot, causal := crdt.Move(c.state, c.ctx, c.signer, c.arrayBase, c.arrayUID, newPos)
	return dot, causal, nil
}

// Enabled reports whether the flag this cursor points at is on.
func (c *Cursor) Enabled() (bool, error) {
	if c.schema.Kind != schema.KindFlag {
		return false, errors.New(errors.SchemaMismatch, "enabled: cursor is not at a flag")
	}
	if !c.canRead() {
		return false, errors.New(errors.Unauthorized, "peer lacks read permission at %v", c.path)
	}
	return crdt.Enabled(c.state, c.path), nil
}

// Enable turns the flag this cursor points at on.
func (c *Cursor) Enable() (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindFlag {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "enable: cursor is not at a flag")
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	dot, causal := crdt.Enable(c.state, c.ctx, c.signer, c.path)
	return dot, causal, nil
}

// Disable turns the flag this cursor points at off.
func (c *Cursor) Disable() (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindFlag {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "disable: cursor is not at a flag")
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	dot, causal := crdt.Disable(c.state, c.ctx, c.signer, c.path)
	return dot, causal, nil
}

// Values returns every concurrently-live value of the register this cursor
// points at. More than one entry is an unresolved concurrent assign.
func (c *Cursor) Values() ([]path.Primitive, error) {
	if c.schema.Kind != schema.KindReg {
		return nil, errors.New(errors.SchemaMismatch, "values: cursor is not at a register")
	}
	if !c.canRead() {
		return nil, errors.New(errors.Unauthorized, "peer lacks read permission at %v", c.path)
	}
	raws := crdt.Values(c.state, c.path)
	out := make([]path.Primitive, 0, len(raws))
	for _, r := range raws {
		prim, err := path.DecodePrimitive(r)
		if err != nil {
			return nil, errors.Wrap(errors.InvalidPath, err, "decoding register value at %v", c.path)
		}
		out = append(out, prim)
	}
	return out, nil
}

// Assign writes a new value to the register this cursor points at,
// resolving any concurrently-visible prior values.
func (c *Cursor) Assign(value path.Primitive) (id.Dot, *crdt.Causal, error) {
	if c.schema.Kind != schema.KindReg || c.schema.Prim != value.Kind {
		return id.Dot{}, nil, errors.New(errors.SchemaMismatch, "assign: expected Reg<%v>, got value kind %v", c.schema.Prim, value.Kind)
	}
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	if c.inArray {
		dot, causal := crdt.Update(c.state, c.ctx, c.signer, c.arrayBase, c.arrayUID, value.Encode())
		return dot, causal, nil
	}
	dot, causal := crdt.Assign(c.state, c.ctx, c.signer, c.path, value.Encode())
	return dot, causal, nil
}

// Remove tombstones everything live at this cursor's location: an array
// element (if navigated via Index) or an arbitrary subtree otherwise.
func (c *Cursor) Remove() (id.Dot, *crdt.Causal, error) {
	if err := c.requireWrite(); err != nil {
		return id.Dot{}, nil, err
	}
	if c.inArray {
		dot, causal := crdt.Delete(c.state, c.ctx, c.signer, c.arrayBase, c.arrayUID)
		return dot, causal, nil
	}
	dot, causal := crdt.RemovePath(c.state, c.ctx, c.signer, c.path)
	return dot, causal, nil
}

func (c *Cursor) authorityFor(perm acl.Permission) acl.Permission {
	if perm.Controllable() {
		return acl.PermControl
	}
	return acl.PermOwn
}

func (c *Cursor) canSay(perm acl.Permission) bool {
	return c.engine.Can(acl.Can{Actor: c.actor(), Perm: c.authorityFor(perm), Label: c.path})
}

// SayCan grants perm over this cursor's path to actor. The caller must hold
// Control here to grant a controllable permission (Sync/Read/Write), or Own
// to grant Control/Own.
func (c *Cursor) SayCan(actor acl.Actor, perm acl.Permission) (id.Dot, *crdt.Causal, error) {
	if !c.canSay(perm) {
		return id.Dot{}, nil, errors.New(errors.Unauthorized, "peer lacks authority to grant %v at %v", perm, c.path)
	}
	payload := acl.EncodeSays(acl.Can{Actor: actor, Perm: perm, Label: c.path})
	dot, causal := crdt.SayPolicy(c.ctx, c.signer, c.path, payload)
	return dot, causal, nil
}

// SayCanIf grants perm over this cursor's path to actor, conditional on
// cond being separately authorized.
func (c *Cursor) SayCanIf(actor acl.Actor, perm acl.Permission, cond acl.Can) (id.Dot, *crdt.Causal, error) {
	if !c.canSay(perm) {
		return id.Dot{}, nil, errors.New(errors.Unauthorized, "peer lacks authority to grant %v at %v", perm, c.path)
	}
	payload := acl.EncodeSaysIf(acl.Can{Actor: actor, Perm: perm, Label: c.path}, cond)
	dot, causal := crdt.SayPolicy(c.ctx, c.signer, c.path, payload)
	return dot, causal, nil
}

// Revoke cancels the authorization dotted target. The caller must hold
// Control at this cursor's path.
func (c *Cursor) Revoke(target id.Dot) (id.Dot, *crdt.Causal, error) {
	if !c.engine.Can(acl.Can{Actor: c.actor(), Perm: acl.PermControl, Label: c.path}) {
		return id.Dot{}, nil, errors.New(errors.Unauthorized, "peer lacks control to revoke at %v", c.path)
	}
	payload := acl.EncodeRevokes(target)
	dot, causal := crdt.SayPolicy(c.ctx, c.signer, c.path, payload)
	return dot, causal, nil
}

// Cond builds the Can value this cursor's path implies, for use as a
// SayCanIf condition.
func (c *Cursor) Cond(actor acl.Actor, perm acl.Permission) acl.Can {
	return acl.Can{Actor: actor, Perm: perm, Label: c.path}
}
