// Package doc binds a document's schema, keypair, CRDT state, and ACL view
// into one persisted unit, and is the only thing that ever hands out a
// cursor.Cursor over live data.
//
// Grounded on _examples/original_source/crdt/src/doc.rs's Backend/Docs/Doc
// composition: a document is identified by an id, carries a schema (named by
// a lens-registry hash), a local keypair, and the CRDT/ACL state that
// schema's cursors read and write.
package doc

import (
	"context"

	"github.com/localfirst/ldb/cursor"
	"github.com/localfirst/ldb/log"
	"github.com/localfirst/ldb/pkg/acl"
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/keys"
	"github.com/localfirst/ldb/pkg/lens"
	"github.com/localfirst/ldb/pkg/path"
	"github.com/localfirst/ldb/pkg/schema"
	"github.com/localfirst/ldb/registry"
	"github.com/localfirst/ldb/storage"
)

// Document is one locally-held replica: its CRDT dot store, its ACL
// authorization set, and the schema/lenses governing how a cursor interprets
// both.
type Document struct {
	store    storage.Store
	registry *registry.Registry
	keys     *keys.KeyPair
	log      *log.Entry

	id         id.DocId
	schemaHash id.Hash
	schema     *schema.Schema

	state  *crdt.State
	engine *acl.Engine
	hub    *storage.Hub
}

// Create mints a new document identified by its own public key, registers
// its lens chain, and grants the local keypair Own over the whole document.
func Create(ctx context.Context, store storage.Store, reg *registry.Registry, kp *keys.KeyPair, lenses lens.Lenses, logger *log.Entry) (*Document, error) {
	sch, err := lenses.ToSchema()
	if err != nil {
		return nil, errors.Wrap(errors.MigrationFailed, err, "deriving schema from initial lens chain")
	}
	hash, err := reg.Register(lenses)
	if err != nil {
		return nil, err
	}

	docID := id.DocId(kp.Peer())
	d := &Document{
		store:      store,
		registry:   reg,
		keys:       kp,
		log:        logger,
		id:         docID,
		schemaHash: hash,
		schema:     sch,
		state:      crdt.NewState(docID, hash),
		engine:     acl.New(),
		hub:        storage.NewHub(),
	}

	root := path.Of(path.SegDoc(docID))
	grant := acl.Can{Actor: acl.PeerActor(kp.Peer()), Perm: acl.PermOwn, Label: root}
	_, genesisCausal := crdt.SayPolicy(d.state.Ctx, kp, root, acl.EncodeSays(grant))
	if err := d.Apply(ctx, genesisCausal); err != nil {
		return nil, err
	}

	if err := d.persistMeta(ctx); err != nil {
		return nil, err
	}
	if d.log != nil {
		d.log.WithField("doc", docID).Info("created document")
	}
	return d, nil
}

// Open reloads a previously created document from storage: every live CRDT
// path is replayed into a fresh State, and every policy leaf among them is
// decoded back into a fresh ACL engine via Engine.DecodeClaim.
func Open(ctx context.Context, store storage.Store, reg *registry.Registry, kp *keys.KeyPair, docID id.DocId, logger *log.Entry) (*Document, error) {
	txn, err := store.Begin(ctx, false)
	if err != nil {
		return nil, err
	}
	defer txn.Discard()

	hash, err := loadSchemaHash(txn, docID)
	if err != nil {
		return nil, err
	}
	sch, err := reg.Schema(hash)
	if err != nil {
		return nil, err
	}

	state := crdt.NewState(docID, hash)
	engine := acl.New()

	root := path.Of(path.SegDoc(docID))
	it, err := txn.ScanPrefix(storage.TreeCRDT, []byte(root))
	if err != nil {
		return nil, errors.Wrap(errors.StorageIo, err, "scanning crdt tree for %v", docID)
	}
	defer it.Close()
	for it.Next() {
		p := path.Path(append([]byte(nil), it.Key()...))
		v := append([]byte(nil), it.Value()...)
		state.Live[string(p)] = v
		if d, ok := crdt.DotOf(p); ok {
			state.PathByDot[d] = string(p)
			state.Ctx.Insert(d)
		}
		if _, err := maybeDecodePolicy(engine, nil, docID, p, v); err != nil {
			return nil, err
		}
	}

	d := &Document{
		store: store, registry: reg, keys: kp, log: logger,
		id: docID, schemaHash: hash, schema: sch,
		state: state, engine: engine, hub: storage.NewHub(),
	}
	return d, nil
}

// Id returns the document's identifier.
func (d *Document) Id() id.DocId { return d.id }

// CanRead reports whether peer holds read permission at the document root,
// the gate sync's Key and Unjoin requests check before answering a remote
// peer (spec.md §6).
func (d *Document) CanRead(peer id.PeerId) bool {
	root := path.Of(path.SegDoc(d.id))
	return d.engine.Can(acl.Can{Actor: acl.PeerActor(peer), Perm: acl.PermRead, Label: root})
}

// Can reports whether actor holds perm at the document root, the general
// form of CanRead used by administrative tooling (`acl check`) that needs
// to query an arbitrary permission rather than just Read.
func (d *Document) Can(actor acl.Actor, perm acl.Permission) bool {
	root := path.Of(path.SegDoc(d.id))
	return d.engine.Can(acl.Can{Actor: actor, Perm: perm, Label: root})
}

// SchemaHash names the lens-registry entry governing this document's shape.
func (d *Document) SchemaHash() id.Hash { return d.schemaHash }

// Registry returns the lens registry backing this document, so callers can
// register a new lens sequence before calling Transform to migrate to it.
func (d *Document) Registry() *registry.Registry { return d.registry }

// Cursor returns a navigator rooted at the document, acting as the local
// keypair's peer identity.
func (d *Document) Cursor() *cursor.Cursor {
	return cursor.New(d.state, d.state.Ctx, d.engine, d.keys, d.id, d.schema)
}

// Apply persists a causal produced by a local cursor mutator, authorizing
// it as the local keypair's own identity (see localActor).
func (d *Document) Apply(ctx context.Context, c *crdt.Causal) error {
	return d.apply(ctx, d.localActor(), c)
}

// localActor is the Actor a causal minted by this document's own Cursor()
// authorizes as: the document's local authority (spec.md §4.2's Actor::Doc)
// when this replica's keypair *is* the document, an ordinary peer
// otherwise. Mirrors the signer special-case maybeDecodePolicy already
// applies when decoding a claim leaf.
func (d *Document) localActor() acl.Actor {
	if d.keys.Peer() == d.id.AsPeer() {
		return acl.DocActor(d.id)
	}
	return acl.PeerActor(d.keys.Peer())
}

// apply runs the full inbound pipeline spec.md §1 describes (validate,
// authorize, apply) for a causal already decrypted, signature-checked, and
// lens-transformed to this document's schema: it is rejected, without
// touching storage, if it doesn't match the schema at every path it writes
// or if actor lacks Write (or Control, for a policy claim) at any of them;
// otherwise it is joined into the in-memory state, any freshly-written
// policy leaves are decoded into the ACL engine, and the net effect (new
// paths set, tombstoned paths deleted) is written to the crdt tree in one
// storage transaction.
func (d *Document) apply(ctx context.Context, actor acl.Actor, c *crdt.Causal) error {
	if err := d.validateCausal(c); err != nil {
		return err
	}
	if err := d.authorizeCausal(actor, c); err != nil {
		return err
	}

	crdt.Join(d.state, c)

	events := make([]storage.Event, 0, len(c.Store))
	for f, v := range c.Store {
		isPolicy, err := maybeDecodePolicy(d.engine, d.hub, d.id, path.Path(f), v)
		if err != nil {
			return err
		}
		if !isPolicy {
			events = append(events, storage.Event{Kind: storage.EventInsert, Path: []byte(f)})
		}
	}

	txn, err := d.store.Begin(ctx, true)
	if err != nil {
		return err
	}
	defer txn.Discard()

	for _, paths := range c.Expired {
		for _, p := range paths {
			if err := txn.Delete(storage.TreeCRDT, []byte(p)); err != nil {
				return err
			}
			events = append(events, storage.Event{Kind: storage.EventRemove, Path: []byte(p)})
		}
	}
	for f, v := range c.Store {
		if err := txn.Set(storage.TreeCRDT, []byte(f), v); err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	for _, ev := range events {
		d.hub.Publish(ev)
	}
	return nil
}

// validateCausal checks c against the document's schema without mutating
// d.state: it copies the live set, applies c's effect to the copy, and
// validates that (spec.md §1's "validate" pipeline stage, invariant 4).
// Schema.Validate needs a *crdt.State to scan, so the copy is a throwaway
// State sharing d.state's Ctx/PathByDot/ExpiredByDot (Validate never writes
// to a State, only reads Live via ScanPrefix).
func (d *Document) validateCausal(c *crdt.Causal) error {
	shadow := &crdt.State{
		Ctx:          d.state.Ctx,
		Live:         make(map[string][]byte, len(d.state.Live)+len(c.Store)),
		PathByDot:    d.state.PathByDot,
		ExpiredByDot: d.state.ExpiredByDot,
	}
	for f, v := range d.state.Live {
		shadow.Live[f] = v
	}
	for _, paths := range c.Expired {
		for _, p := range paths {
			delete(shadow.Live, p)
		}
	}
	for f, v := range c.Store {
		shadow.Live[f] = v
	}
	root := path.Of(path.SegDoc(d.id))
	return schema.Validate(shadow, root, d.schema)
}

// authorizeCausal requires actor hold Write (or Control, for a policy
// claim) at every top-level path c.Store/c.Expired touches, the
// "authorize" pipeline stage (spec.md §1): a correctly-signed causal is not
// enough, the signer must actually have been granted write access to the
// paths it's writing. The document's own local authority is exempt,
// mirroring rule 1 of the ACL engine's derivation rules (spec.md §4.2), the
// same rule that lets the genesis causal in Create grant the very first
// Own claim with no prior authorization to point to.
func (d *Document) authorizeCausal(actor acl.Actor, c *crdt.Causal) error {
	if actor.Tag == acl.ActorDoc {
		return nil
	}
	for f := range c.Store {
		if err := d.authorizeWrite(actor, path.Path(f)); err != nil {
			return err
		}
	}
	for _, paths := range c.Expired {
		for _, p := range paths {
			if err := d.authorizeWrite(actor, path.Path(p)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Document) authorizeWrite(actor acl.Actor, leaf path.Path) error {
	label, perm := writeLabel(leaf)
	if !d.engine.Can(acl.Can{Actor: actor, Perm: perm, Label: label}) {
		return errors.New(errors.Unauthorized, "peer lacks %v permission at %v", perm, label)
	}
	return nil
}

// writeLabel recovers the logical field path a leaf's ACL grant is scoped
// to: the cursor.Path a write was minted against, before mutation.go's
// signedLeaf (Nonce·Peer·Sig) or policy.go's SayPolicy (Policy·Dot·Peer·Sig)
// appended its authoring tail. A policy leaf requires Control to write
// (SayCan/SayCanIf/Revoke all require at least Control, spec.md §4.2);
// everything else requires Write.
func writeLabel(leaf path.Path) (path.Path, acl.Permission) {
	segs := leaf.Segments()
	cut, perm := -1, acl.PermWrite
	for i, seg := range segs {
		if seg.Kind == path.KindPolicy {
			cut, perm = i, acl.PermControl
			break
		}
		if seg.Kind == path.KindNonce {
			cut = i
			break
		}
	}
	if cut < 0 {
		return leaf, perm
	}
	label := leaf
	for i := 0; i < len(segs)-cut; i++ {
		parent, ok := label.Parent()
		if !ok {
			break
		}
		label = parent
	}
	return label, perm
}

// Subscribe registers interest in every path under prefix, delivering both
// ordinary CRDT writes and ACL grant/revoke changes under it as they're
// applied (spec.md §5's "watch streams" suspension point).
func (d *Document) Subscribe(prefix path.Path) *storage.Subscriber {
	return d.hub.Subscribe([]byte(prefix))
}

// Unsubscribe stops delivery to s.
func (d *Document) Unsubscribe(s *storage.Subscriber) {
	d.hub.Unsubscribe(s)
}

// Join applies a causal received from peerID: lens-transforms it up to the
// document's own schema if the sender is on an older revision, then runs it
// through the same validate-authorize-apply pipeline Apply does, except
// peerID (rather than the local keypair) is who must hold Write/Control at
// every path it touches.
func (d *Document) Join(ctx context.Context, peerID id.PeerId, remoteSchema id.Hash, c *crdt.Causal) error {
	if remoteSchema != d.schemaHash {
		transformed, err := d.transformCausal(remoteSchema, d.schemaHash, c)
		if err != nil {
			return err
		}
		c = transformed
	}
	return d.apply(ctx, acl.PeerActor(peerID), c)
}

// Unjoin computes the minimal catch-up delta for a peer at remoteCtx.
func (d *Document) Unjoin(remoteCtx *clock.CausalContext) *crdt.Causal {
	return crdt.Unjoin(d.state, remoteCtx)
}

// Transform migrates the document in place to a newer lens-registry entry,
// rewriting every live path and persisting the result under the new schema
// hash. Reversible lenses (spec.md §5) make this safe to run in either
// direction.
func (d *Document) Transform(ctx context.Context, newHash id.Hash) error {
	newSchema, err := d.registry.Schema(newHash)
	if err != nil {
		return err
	}

	newLive := make(map[string][]byte, len(d.state.Live))
	for f, v := range d.state.Live {
		p := path.Path(f)
		np, ok, err := d.registry.TransformPath(d.schemaHash, newHash, p)
		if err != nil {
			return err
		}
		if !ok {
			continue // lens chain dropped this path (e.g. RemoveProperty)
		}
		newLive[string(np)] = v
	}

	txn, err := d.store.Begin(ctx, true)
	if err != nil {
		return err
	}
	defer txn.Discard()
	for f := range d.state.Live {
		if err := txn.Delete(storage.TreeCRDT, []byte(f)); err != nil {
			return err
		}
	}
	for f, v := range newLive {
		if err := txn.Set(storage.TreeCRDT, []byte(f), v); err != nil {
			return err
		}
	}
	if err := txn.Set(storage.TreeDocs, []byte(d.id[:]), newHash[:]); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}

	d.state.Live = newLive
	d.schemaHash = newHash
	d.schema = newSchema
	if d.log != nil {
		d.log.WithFields(log.Fields{"doc": d.id, "schema": newHash}).Info("transformed document")
	}
	return nil
}

// transformCausal rewrites every path a remote causal carries from its own
// schema to ours before joining it, mirroring Transform but over a delta
// instead of the whole live set.
func (d *Document) transformCausal(from, to id.Hash, c *crdt.Causal) (*crdt.Causal, error) {
	out := crdt.NewCausal(d.id, to)
	out.Ctx = c.Ctx
	for f, v := range c.Store {
		np, ok, err := d.registry.TransformPath(from, to, path.Path(f))
		if err != nil {
			return nil, err
		}
		if ok {
			out.Store[string(np)] = v
		}
	}
	for dt, paths := range c.Expired {
		for _, f := range paths {
			np, ok, err := d.registry.TransformPath(from, to, path.Path(f))
			if err != nil {
				return nil, err
			}
			if ok {
				out.Expired[dt] = append(out.Expired[dt], string(np))
			}
		}
	}
	return out, nil
}

func (d *Document) persistMeta(ctx context.Context) error {
	txn, err := d.store.Begin(ctx, true)
	if err != nil {
		return err
	}
	defer txn.Discard()
	if err := txn.Set(storage.TreeDocs, []byte(d.id[:]), d.schemaHash[:]); err != nil {
		return err
	}
	return txn.Commit()
}

func loadSchemaHash(txn storage.Txn, docID id.DocId) (id.Hash, error) {
	v, err := txn.Get(storage.TreeDocs, docID[:])
	if err != nil {
		return id.Hash{}, err
	}
	var h id.Hash
	copy(h[:], v)
	return h, nil
}

// maybeDecodePolicy loads p into engine if it is a policy leaf: base .
// Policy(payload) . Dot(dot) . Peer(peer) . Sig(sig). Ordinary value leaves
// are silently skipped (isPolicy is false). When hub is non-nil, a decoded
// claim is also fanned out as a Granted/Revoked Event.
//
// A claim's signer is normally its own PeerId, except when that peer's id
// equals the document's own id: that peer is the document's local authority
// (spec.md §4.2's Actor::Doc), the only signer rule 1 ("local authority")
// authorizes without tracing an ownership chain back to a prior grant — the
// same identity that bootstraps the document's very first owner grant.
func maybeDecodePolicy(engine *acl.Engine, hub *storage.Hub, docID id.DocId, p path.Path, _ []byte) (bool, error) {
	segs := p.Segments()
	for i, seg := range segs {
		if seg.Kind != path.KindPolicy {
			continue
		}
		if i+1 >= len(segs) || segs[i+1].Kind != path.KindDot {
			return true, errors.New(errors.InvalidPath, "malformed policy leaf at %v: missing dot segment", p)
		}
		dot := segs[i+1].Dot
		actor := acl.PeerActor(dot.Peer)
		if dot.Peer == docID.AsPeer() {
			actor = acl.DocActor(docID)
		}
		decoded, err := engine.DecodeClaim(dot, actor, seg.Raw)
		if err != nil {
			return true, err
		}
		if hub != nil {
			hub.Publish(claimEvent(p, decoded))
		}
		return true, nil
	}
	return false, nil
}

// claimEvent turns a DecodedClaim into the storage.Event a subscriber sees.
func claimEvent(p path.Path, decoded acl.DecodedClaim) storage.Event {
	switch decoded.Kind {
	case acl.ClaimRevoked:
		peer := decoded.Target.Peer
		return storage.Event{Kind: storage.EventRevoked, Path: []byte(p), Peer: &peer}
	default:
		ev := storage.Event{Kind: storage.EventGranted, Path: []byte(p), Perm: int(decoded.Can.Perm)}
		if decoded.Can.Actor.Tag == acl.ActorPeer {
			peer := decoded.Can.Actor.Peer
			ev.Peer = &peer
		}
		return ev
	}
}
