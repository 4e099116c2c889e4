package sync

import (
	"context"

	"github.com/localfirst/ldb/doc"
	"github.com/localfirst/ldb/pkg/clock"
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/registry"
)

// ReqKind discriminates the three unary requests spec.md §6 defines.
type ReqKind uint8

const (
	ReqLenses ReqKind = iota
	ReqKey
	ReqUnjoin
)

// Request is one unary sync request, addressed to a specific peer.
type Request struct {
	Kind ReqKind
	Hash id.Hash              // ReqLenses: which lens sequence
	Doc  id.DocId              // ReqKey: which document
	Peer id.PeerId             // ReqKey: whose key is wanted
	Ctx  *clock.CausalContext // ReqUnjoin: the requester's current context
}

// Response answers a Request. Exactly one of Lenses/Key/Causal is set when
// Err is empty, matching the Request's Kind.
type Response struct {
	Err    string
	Lenses []byte
	Key    DocKey
	Causal *crdt.Causal
}

// Requester sends a unary Request to a peer and awaits its Response, the
// client half of the protocol (mirrors plugins/rest.Client's Do, specialized
// from arbitrary HTTP verbs to this system's three fixed request shapes).
type Requester interface {
	Do(ctx context.Context, to id.PeerId, req Request) (Response, error)
}

// Handler answers unary requests against the documents this peer holds
// locally, gating Key and Unjoin on the requester holding Read (spec.md §6:
// "only if the requester has Read").
type Handler struct {
	lookup   func(id.DocId) (*doc.Document, bool)
	registry *registry.Registry
	keys     *KeyRing
}

// NewHandler returns a Handler. lookup resolves a document id to the local
// replica, if this peer holds one.
func NewHandler(lookup func(id.DocId) (*doc.Document, bool), reg *registry.Registry, keys *KeyRing) *Handler {
	return &Handler{lookup: lookup, registry: reg, keys: keys}
}

// Handle answers req on behalf of requester.
func (h *Handler) Handle(requester id.PeerId, req Request) Response {
	switch req.Kind {
	case ReqLenses:
		return h.handleLenses(req)
	case ReqKey:
		return h.handleKey(requester, req)
	case ReqUnjoin:
		return h.handleUnjoin(requester, req)
	default:
		return Response{Err: "unknown request kind"}
	}
}

func (h *Handler) handleLenses(req Request) Response {
	ls, err := h.registry.Lenses(req.Hash)
	if err != nil {
		return Response{Err: err.Error()}
	}
	return Response{Lenses: ls.Encode()}
}

func (h *Handler) handleKey(requester id.PeerId, req Request) Response {
	d, ok := h.lookup(req.Doc)
	if !ok {
		return Response{Err: errors.New(errors.NotFound, "unknown document %v", req.Doc).Error()}
	}
	if !d.CanRead(requester) {
		return Response{Err: errors.New(errors.Unauthorized, "peer lacks read permission on %v", req.Doc).Error()}
	}
	return Response{Key: h.keys.Current(req.Doc, req.Peer)}
}

func (h *Handler) handleUnjoin(requester id.PeerId, req Request) Response {
	if req.Ctx == nil {
		return Response{Err: errors.New(errors.InvalidPath, "unjoin request missing causal context").Error()}
	}
	d, ok := h.lookup(req.Ctx.Doc)
	if !ok {
		return Response{Err: errors.New(errors.NotFound, "unknown document %v", req.Ctx.Doc).Error()}
	}
	if !d.CanRead(requester) {
		return Response{Err: errors.New(errors.Unauthorized, "peer lacks read permission on %v", req.Ctx.Doc).Error()}
	}
	return Response{Causal: d.Unjoin(req.Ctx)}
}
