// Package validate implements spec.md §4.6: the shallow and deep red/green
// checks that decide whether a memoized value can be reused without
// re-executing its query, and the backdating rule that lets an
// equal-valued recomputation avoid invalidating its dependents.
package validate

import (
	"fmt"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/memo"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
)

// Dependency is the slice of ingredient.Ingredient's capability set that
// deep verification actually dispatches to. It is declared here, rather
// than imported from the ingredient package, because ingredient itself
// imports this package for ShallowVerify/DeepVerify/Backdate — every
// concrete ingredient kind (Input, Interned, TrackedStruct, Function)
// satisfies this interface structurally without either package needing to
// import the other.
type Dependency interface {
	MaybeChangedAfter(key id.ID, after revision.Revision) (depkey.ChangeResult, error)
	MarkValidatedOutput(executor, output id.ID)
	RemoveStaleOutput(executor, output id.ID)
	IsProvisionalCycleHead(key id.ID) bool
}

// Resolver looks up the ingredient owning a given index. Implemented by
// db.Database's ingredient registry; kept as a function type here so this
// package never imports db (db imports validate, not the reverse).
type Resolver func(depkey.IngredientIndex) (Dependency, bool)

// ShallowVerify is spec.md §4.6's O(1) tier: succeeds if the memo was
// already verified this revision, or if no input of sufficient durability
// has changed since it was last verified. A memo whose Value has been
// nulled out by LRU eviction can never shallow-verify: value=None
// uniformly encodes "must re-execute" regardless of what the durability
// clock says (spec.md §4.5).
func ShallowVerify(clock *revision.Clock, m *memo.Memo, now revision.Revision) bool {
	if m.Value == nil {
		return false
	}
	if m.VerifiedAt == now {
		return true
	}
	return clock.LastChanged(m.Revisions.Durability) <= m.VerifiedAt
}

// MayBePromoted implements spec.md §4.8's validate_may_be_provisional: a
// memo that isn't provisional needs no promotion and trivially passes. A
// provisional memo is promoted to final, in place, once every cycle head
// it was produced under has itself stopped being provisional — at which
// point the whole cycle has settled and the memo's value is safe to treat
// as final rather than iteration-scoped. Promotion is withheld (false) if
// any head is still mid-iteration or its owning ingredient is unknown.
func MayBePromoted(resolve Resolver, m *memo.Memo) bool {
	if !m.IsProvisional() {
		return true
	}
	for _, head := range m.Revisions.CycleHeads {
		dep, ok := resolve(head.Key.Ingredient)
		if !ok || dep.IsProvisionalCycleHead(head.Key.Key) {
			return false
		}
	}
	m.Revisions.VerifiedFinal = true
	return true
}

// SameIteration implements spec.md §4.8's validate_same_iteration: a
// provisional memo that could not be promoted may still be reused, but
// only by a caller executing within the exact iteration of the exact
// cycle that produced it — otherwise a stale round's provisional value
// would leak into a later round and the fixpoint would never converge
// correctly. A memo with no recorded cycle heads (not provisional) always
// passes.
func SameIteration(handle *qstack.Handle, m *memo.Memo) bool {
	if len(m.Revisions.CycleHeads) == 0 {
		return true
	}
	if handle == nil {
		return false
	}
	for _, head := range m.Revisions.CycleHeads {
		iter, found := handle.Contains(head.Key)
		if !found || iter != head.Iteration {
			return false
		}
	}
	return true
}

// Result is DeepVerify's answer: whether the memo remains usable, and the
// (possibly non-empty) set of cycle heads still blocking a final verdict.
type Result struct {
	Unchanged  bool
	CycleHeads []depkey.CycleHead
}

// DeepVerify implements spec.md §4.6 steps 1-6. self identifies the key
// that owns m. resolve dispatches Input-edge MaybeChangedAfter calls and
// Output-edge MarkValidatedOutput calls to the right ingredient.
func DeepVerify(resolve Resolver, self depkey.DatabaseKeyIndex, m *memo.Memo, now revision.Revision) (Result, error) {
	switch m.Revisions.Origin.Kind {
	case depkey.Assigned, depkey.DerivedUntracked:
		// Step 1: must re-execute.
		return Result{Unchanged: false}, nil
	case depkey.BaseInput, depkey.FixpointInitial:
		// Step 2: always valid (a provisional FixpointInitial is filtered
		// out by the caller before deep verification is attempted).
		return Result{Unchanged: true}, nil
	}

	// Step 3: walk edges in execution order.
	var heads []depkey.CycleHead
	for _, edge := range m.Revisions.Origin.Edges {
		switch edge.Kind {
		case depkey.Input:
			ing, ok := resolve(edge.Key.Ingredient)
			if !ok {
				return Result{}, fmt.Errorf("validate: no ingredient registered for index %d", edge.Key.Ingredient)
			}
			cr, err := ing.MaybeChangedAfter(edge.Key.Key, m.VerifiedAt)
			if err != nil {
				return Result{}, fmt.Errorf("validate: maybe_changed_after %s: %w", edge.Key, err)
			}
			if cr.Changed {
				return Result{Unchanged: false}, nil
			}
			heads = append(heads, cr.CycleHeads...)
		case depkey.Output:
			// Eager, in-loop: a later Input edge may re-execute a function
			// that reads this output, which must see it as validated.
			if ing, ok := resolve(edge.Key.Ingredient); ok {
				ing.MarkValidatedOutput(self.Key, edge.Key.Key)
			}
		}
	}

	if len(heads) == 0 {
		// Step 4.
		m.VerifiedAt = now
		return Result{Unchanged: true}, nil
	}
	if len(heads) == 1 && heads[0].Key == self {
		// Step 5: the only cycle head is us; promote and re-walk, which
		// this time will not re-encounter our own cycle.
		m.Revisions.VerifiedFinal = true
		return DeepVerify(resolve, self, m, now)
	}
	// Step 6: defer to the outer cycle head(s).
	return Result{Unchanged: true, CycleHeads: heads}, nil
}

// Backdate implements spec.md §4.6's backdating rule: if a recomputed
// value is equal (by the ingredient's equality predicate) to the value it
// replaces, and its durability did not decrease, the new changed_at is the
// old one instead of "now" — this is how a no-op edit avoids invalidating
// everything downstream.
func Backdate(old *memo.Memo, newDurability revision.Durability, newChangedAt revision.Revision, valuesEqual bool) revision.Revision {
	if old == nil || !valuesEqual {
		return newChangedAt
	}
	if newDurability < old.Revisions.Durability {
		return newChangedAt
	}
	return old.Revisions.ChangedAt
}
