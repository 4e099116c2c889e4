package acl

import "github.com/localfirst/ldb/pkg/id"

type claimKind uint8

const (
	claimCan claimKind = iota
	claimCanIf
	claimRevokes
)

// claim is one signed, dot-addressed policy statement (spec.md §4.2).
type claim struct {
	kind   claimKind
	dot    id.Dot
	actor  Actor // the authoring peer's actor identity
	can    Can   // Can, CanIf
	cond   Can   // CanIf only
	target id.Dot // Revokes only
}

// Engine accumulates claims and evaluates them to a fixed point on demand.
// It holds no cache between calls, and no package in this module keeps a
// materialised per-peer cache of its results: every Rules or Can call
// re-derives all authorizations from the full claim list.
type Engine struct {
	claims []claim
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{}
}

// Says records a direct grant claim authored by actor under dot.
func (e *Engine) Says(dot id.Dot, actor Actor, can Can) {
	e.claims = append(e.claims, claim{kind: claimCan, dot: dot, actor: actor, can: can})
}

// SaysIf records a conditional grant: can fires once some authorization
// implies cond.
func (e *Engine) SaysIf(dot id.Dot, actor Actor, can Can, cond Can) {
	e.claims = append(e.claims, claim{kind: claimCanIf, dot: dot, actor: actor, can: can, cond: cond})
}

// Revokes records a claim by actor cancelling the authorization dotted
// target.
func (e *Engine) Revokes(dot id.Dot, actor Actor, target id.Dot) {
	e.claims = append(e.claims, claim{kind: claimRevokes, dot: dot, actor: actor, target: target})
}

// Authorization is one surviving (non-revoked) grant.
type Authorization struct {
	Dot   id.Dot
	Can   Can
	Actor Actor
}

type derivedRow struct {
	dot   id.Dot
	actor Actor
	can   Can
}

// Rules evaluates all recorded claims to quiescence and returns every
// authorization that was derived and not subsequently revoked.
func (e *Engine) Rules() []Authorization {
	derived := map[id.Dot]map[string]derivedRow{}
	addDerived := func(r derivedRow) bool {
		byKey, ok := derived[r.dot]
		if !ok {
			byKey = map[string]derivedRow{}
			derived[r.dot] = byKey
		}
		k := r.actor.key() + "/" + r.can.key()
		if _, exists := byKey[k]; exists {
			return false
		}
		byKey[k] = r
		return true
	}

	authorized := map[id.Dot]map[string]Authorization{}
	addAuthorized := func(a Authorization) bool {
		byKey, ok := authorized[a.Dot]
		if !ok {
			byKey = map[string]Authorization{}
			authorized[a.Dot] = byKey
		}
		k := a.Actor.key() + "/" + a.Can.key()
		if _, exists := byKey[k]; exists {
			return false
		}
		byKey[k] = a
		return true
	}
	allAuthorized := func() []Authorization {
		var out []Authorization
		for _, byKey := range authorized {
			for _, a := range byKey {
				out = append(out, a)
			}
		}
		return out
	}

	revoked := map[id.Dot]bool{}

	for _, c := range e.claims {
		if c.kind == claimCan {
			addDerived(derivedRow{dot: c.dot, actor: c.actor, can: c.can})
		}
	}

	const maxPasses = 64
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		auths := allAuthorized()

		// Rule 4: conditional resolution.
		for _, c := range e.claims {
			if c.kind != claimCanIf {
				continue
			}
			for _, auth := range auths {
				if auth.Can.Implies(c.cond) {
					if addDerived(derivedRow{dot: c.dot, actor: c.actor, can: c.can.bind(auth.Can)}) {
						changed = true
					}
				}
			}
		}

		var rows []derivedRow
		for _, byKey := range derived {
			for _, r := range byKey {
				rows = append(rows, r)
			}
		}

		// Rule 1: local authority.
		for _, r := range rows {
			if r.actor.Tag == ActorDoc && r.actor.Doc == r.can.root() {
				if addAuthorized(Authorization{Dot: r.dot, Can: r.can, Actor: r.actor}) {
					changed = true
				}
			}
		}

		auths = allAuthorized()

		// Rule 2: ownership propagation. Rule 3: control propagation.
		// The candidate's author must match the *grantee* of the qualifying
		// authorization (auth.Can.Actor), not whoever signed that
		// authorization (auth.Actor) — the grantee is who gets to extend it.
		for _, r := range rows {
			for _, auth := range auths {
				if r.actor != auth.Can.Actor {
					continue
				}
				if !auth.Can.Label.IsAncestor(r.can.Label) {
					continue
				}
				grants := auth.Can.Perm == PermOwn ||
					(auth.Can.Perm == PermControl && r.can.Perm.Controllable())
				if !grants {
					continue
				}
				if addAuthorized(Authorization{Dot: r.dot, Can: r.can, Actor: r.actor}) {
					changed = true
				}
			}
		}

		auths = allAuthorized()

		// Rule 5: revocation.
		for _, c := range e.claims {
			if c.kind != claimRevokes {
				continue
			}
			if revoked[c.target] {
				continue
			}
			targets, ok := authorized[c.target]
			if !ok {
				continue
			}
			for _, target := range targets {
				for _, auth := range auths {
					// Same asymmetry as ownership/control above: the
					// revoker must match the grantee of a qualifying
					// authorization (auth.Can.Actor), not its signer.
					revokerQualifies := (auth.Can.Actor == c.actor && auth.Can.Perm >= PermControl) ||
						c.actor == DocActor(target.Can.root())
					if !revokerQualifies {
						continue
					}
					strictAncestor := auth.Can.Label.IsAncestor(target.Can.Label) && !auth.Can.equalLabel(target.Can) && auth.Can.Perm >= target.Can.Perm
					samePlace := auth.Can.equalLabel(target.Can) &&
						(auth.Can.Perm > target.Can.Perm || c.actor == target.Actor || c.actor.isLocalAuthority())
					if strictAncestor || samePlace {
						if !revoked[c.target] {
							revoked[c.target] = true
							changed = true
						}
					}
				}
			}
		}

		if !changed {
			break
		}
	}

	var out []Authorization
	for dot, byKey := range authorized {
		if revoked[dot] {
			continue
		}
		for _, a := range byKey {
			out = append(out, a)
		}
	}
	return out
}

// Can reports whether some non-revoked authorization implies req — the
// public query `can(peer, perm, path)` of spec.md §4.2.
func (e *Engine) Can(req Can) bool {
	for _, a := range e.Rules() {
		if a.Can.Implies(req) {
			return true
		}
	}
	return false
}
