package storage

import (
	"sync"

	"github.com/localfirst/ldb/pkg/id"
)

// EventKind discriminates the four shapes of change a Subscriber can see,
// mirroring _examples/original_source/crdt/src/subscriber.rs's Event enum:
// plain CRDT writes (Insert/Remove) and ACL claim changes (Granted/Revoked),
// both driven off the same apply pipeline so a caller watching a prefix sees
// every kind of change without polling.
type EventKind int

const (
	EventInsert EventKind = iota
	EventRemove
	EventGranted
	EventRevoked
)

// Event is one change reported to a Subscriber. Peer and Perm are only
// meaningful for EventGranted (the actor granted Perm) and EventRevoked
// (Peer names whose authorization was cancelled, if bound to a specific
// peer); Peer is nil for Anonymous/Unbound/Doc actors.
type Event struct {
	Kind EventKind
	Path []byte
	Peer *id.PeerId
	Perm int
}

// Subscriber delivers Events under Path's prefix on a buffered channel; a
// reader that falls behind drops events rather than stalling the apply
// pipeline that publishes them.
type Subscriber struct {
	ch     chan Event
	prefix []byte
}

// Events returns the channel Events are delivered on. It is closed once the
// Subscriber is unsubscribed.
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) matches(p []byte) bool {
	if len(p) < len(s.prefix) {
		return false
	}
	for i, b := range s.prefix {
		if p[i] != b {
			return false
		}
	}
	return true
}

// Hub fans out Events to every Subscriber whose prefix matches. Neither the
// inmem nor the disk backend persists subscriptions across a restart; a
// peer resubscribes after reopening a document, the same suspension point
// spec.md §5 calls out for "watch streams".
type Hub struct {
	mu   sync.Mutex
	subs []*Subscriber
}

// NewHub returns an empty Hub.
func NewHub() *Hub { return &Hub{} }

// Subscribe registers interest in every path with the given prefix.
func (h *Hub) Subscribe(prefix []byte) *Subscriber {
	s := &Subscriber{ch: make(chan Event, 64), prefix: append([]byte(nil), prefix...)}
	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s
}

// Unsubscribe stops delivery to s and closes its channel. Safe to call more
// than once; subsequent calls are a no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish fans ev out to every matching subscriber without blocking; a
// subscriber whose buffer is full misses ev.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if !s.matches(ev.Path) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}
