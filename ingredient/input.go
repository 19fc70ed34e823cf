package ingredient

import (
	"fmt"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
)

// inputSlot is one cell of an Input ingredient: a value plus the stamp it
// was last written with.
type inputSlot[V any] struct {
	value V
	stamp revision.Stamp
}

// Input is the C10 input store of spec.md §4.10: a plain mapping from Id
// to (value, stamp), written only through the database's mutable handle
// and read by queries that record the read into their active frame.
type Input[V any] struct {
	Index depkey.IngredientIndex

	clock *revision.Clock
	table *id.Table[inputSlot[V]]
}

// NewInput returns an empty input ingredient at the given ingredient
// index, sharing clock with the rest of the database.
func NewInput[V any](index depkey.IngredientIndex, clock *revision.Clock) *Input[V] {
	return &Input[V]{Index: index, clock: clock, table: id.NewTable[inputSlot[V]]()}
}

// New allocates a fresh input cell with the given initial value and
// durability. Inputs are "always valid" (spec.md §4.10): their
// changed_at is simply the revision they were written at.
func (in *Input[V]) New(value V, durability revision.Durability) id.ID {
	cell := in.table.Alloc(inputSlot[V]{
		value: value,
		stamp: revision.Stamp{Durability: durability, ChangedAt: in.clock.Current()},
	})
	in.clock.ReportWrite(durability)
	return cell
}

// Set overwrites an existing cell's value, bumping its changed_at to the
// current revision and reporting the write to the clock (spec.md §4.10:
// "Writes occur only through &mut and call report_write(durability)").
func (in *Input[V]) Set(key id.ID, value V, durability revision.Durability) error {
	slot, ok := in.table.Get(key)
	if !ok {
		return fmt.Errorf("ingredient: input: unknown or stale key %s", key)
	}
	slot.value = value
	slot.stamp = revision.Stamp{Durability: durability, ChangedAt: in.clock.Current()}
	in.table.Set(key, slot)
	in.clock.ReportWrite(durability)
	return nil
}

// Get reads the cell's value and, if handle is non-nil, reports its stamp
// to the caller's active frame.
func (in *Input[V]) Get(key id.ID, handle *qstack.Handle) (V, error) {
	var zero V
	slot, ok := in.table.Get(key)
	if !ok {
		return zero, fmt.Errorf("ingredient: input: unknown or stale key %s", key)
	}
	if handle != nil {
		handle.ReportRead(depkey.DatabaseKeyIndex{Ingredient: in.Index, Key: key}, slot.stamp, nil)
	}
	return slot.value, nil
}

// MaybeChangedAfter implements Ingredient: a trivial comparison of
// changed_at to the queried revision, since inputs carry no dependency
// edges of their own.
func (in *Input[V]) MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error) {
	slot, ok := in.table.Get(key)
	if !ok {
		return ChangeResult{Changed: true}, nil
	}
	return ChangeResult{Changed: slot.stamp.ChangedAt > after}, nil
}

// Origin implements Ingredient: every live input cell has BaseInput origin.
func (in *Input[V]) Origin(key id.ID) (depkey.QueryOrigin, bool) {
	if _, ok := in.table.Get(key); !ok {
		return depkey.QueryOrigin{}, false
	}
	return depkey.NewBaseInput(), true
}

// MarkValidatedOutput is a no-op: inputs are never anyone's output.
func (in *Input[V]) MarkValidatedOutput(executor, output id.ID) {}

// RemoveStaleOutput is a no-op: inputs are never pruned as stale outputs.
func (in *Input[V]) RemoveStaleOutput(executor, output id.ID) {}

// StructDeleted frees the input cell outright.
func (in *Input[V]) StructDeleted(key id.ID) {
	in.table.Free(key)
}

// CycleRecoveryStrategy: inputs never participate in a cycle as a
// dependency that re-executes, so Panic is a safe, never-exercised
// default.
func (in *Input[V]) CycleRecoveryStrategy() cycle.Strategy { return cycle.Panic }

// RequiresResetForNewRevision: inputs hold no per-revision bookkeeping.
func (in *Input[V]) RequiresResetForNewRevision() bool { return false }

// ResetForNewRevision is a no-op for inputs.
func (in *Input[V]) ResetForNewRevision() {}

// IsProvisionalCycleHead: inputs never iterate a fixpoint, so a key is
// never a cycle head.
func (in *Input[V]) IsProvisionalCycleHead(key id.ID) bool { return false }
