// Package ingredient defines the capability set every per-function or
// per-struct component of the engine implements (spec.md §6), plus the
// concrete ingredient kinds: input, interned, tracked-struct, and
// function.
package ingredient

import (
	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
)

// ChangeResult is MaybeChangedAfter's answer: either the dependency
// changed, or it is unchanged and carries forward any cycle heads still
// outstanding. Defined in depkey so validate can use it without importing
// this package (see depkey.ChangeResult).
type ChangeResult = depkey.ChangeResult

// Ingredient is the capability interface from spec.md §6. The engine and
// validate package store/dispatch through this interface; concrete
// ingredient kinds (Input, Interned, TrackedStruct, Function) implement it
// over their own generic key/value types and are type-erased behind it for
// storage in a Database's ordered ingredient slice (spec.md §9 "Dynamic
// dispatch").
type Ingredient interface {
	// MaybeChangedAfter reports whether key's value may have changed since
	// the given revision, per spec.md §4.6.
	MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error)
	// Origin returns key's recorded QueryOrigin, if any.
	Origin(key id.ID) (depkey.QueryOrigin, bool)
	// MarkValidatedOutput records that output was validated as a
	// side-effect of validating executor (spec.md §4.6 step 3).
	MarkValidatedOutput(executor, output id.ID)
	// RemoveStaleOutput discards output because executor no longer
	// produces it on re-execution (spec.md §4.7 step g).
	RemoveStaleOutput(executor, output id.ID)
	// StructDeleted notifies a tracked-struct ingredient that key's owning
	// struct was deleted outright (spec.md §6 salsa_struct_deleted).
	StructDeleted(key id.ID)
	// CycleRecoveryStrategy is this ingredient's declared policy for
	// handling dependency cycles through its keys.
	CycleRecoveryStrategy() cycle.Strategy
	// RequiresResetForNewRevision reports whether ResetForNewRevision
	// should be called when the database's mutable handle bumps the
	// revision (spec.md §4.9: "ingredients that requested it are given a
	// 'new revision' callback").
	RequiresResetForNewRevision() bool
	// ResetForNewRevision drains deleted-entries queues / LRU bookkeeping
	// that can only run with exclusive access.
	ResetForNewRevision()
	// IsProvisionalCycleHead reports whether key currently names a memo
	// that is a cycle head still awaiting a final (non-provisional)
	// verdict (spec.md §4.8 validate_may_be_provisional). Ingredient kinds
	// that never iterate a fixpoint (Input, Interned, TrackedStruct,
	// Accumulator) always answer false.
	IsProvisionalCycleHead(key id.ID) bool
}
