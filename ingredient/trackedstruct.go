package ingredient

import (
	"reflect"
	"sync"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
)

// trackedIdentity is the hash-consing key for a tracked struct: the
// BLAKE2b digest of its `#[id]` fields, disambiguated against siblings
// that hash identically within one owning query (id.Disambiguator).
type trackedIdentity struct {
	hash  [16]byte
	disambiguator uint32
}

type trackedSlot struct {
	owner      depkey.DatabaseKeyIndex
	fields     map[string]any
	fieldAt    map[string]revision.Revision
	changedAt  revision.Revision
	durability revision.Durability
	producedAt revision.Revision
}

// TrackedStruct implements the tracked-struct ingredient kind of spec.md
// §6, plus SPEC_FULL.md §8's finer-grained backdating
// (original_source/src/update.rs): when a struct with the same #[id]
// fields is re-specified, each non-id field is compared independently and
// keeps its own prior changed_at if unchanged, instead of the whole
// struct being invalidated by any single field's churn.
type TrackedStruct struct {
	Index depkey.IngredientIndex

	clock *revision.Clock

	mu      sync.RWMutex
	forward map[trackedIdentity]id.ID
	table   *id.Table[trackedSlot]
}

// NewTrackedStruct returns an empty tracked-struct ingredient.
func NewTrackedStruct(index depkey.IngredientIndex, clock *revision.Clock) *TrackedStruct {
	return &TrackedStruct{
		Index:   index,
		clock:   clock,
		forward: make(map[trackedIdentity]id.ID),
		table:   id.NewTable[trackedSlot](),
	}
}

// Specify creates or updates the tracked struct identified by (idHash,
// disambiguator), owned by owner, with the given named fields and
// durability. Re-specifying with the same identity backdates each field
// whose new value is reflect.DeepEqual to its previous value.
func (ts *TrackedStruct) Specify(owner depkey.DatabaseKeyIndex, idHash [16]byte, disambiguator uint32, fields map[string]any, durability revision.Durability) id.ID {
	identity := trackedIdentity{hash: idHash, disambiguator: disambiguator}
	now := ts.clock.Current()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if existing, ok := ts.forward[identity]; ok {
		prev, _ := ts.table.Get(existing)
		fieldAt := make(map[string]revision.Revision, len(fields))
		var maxChanged revision.Revision
		for name, val := range fields {
			at := now
			if old, had := prev.fields[name]; had && reflect.DeepEqual(old, val) {
				at = prev.fieldAt[name]
			}
			fieldAt[name] = at
			if at > maxChanged {
				maxChanged = at
			}
		}
		slot := trackedSlot{
			owner:      owner,
			fields:     fields,
			fieldAt:    fieldAt,
			changedAt:  maxChanged,
			durability: durability,
			producedAt: now,
		}
		ts.table.Set(existing, slot)
		return existing
	}

	fieldAt := make(map[string]revision.Revision, len(fields))
	for name := range fields {
		fieldAt[name] = now
	}
	slot := trackedSlot{
		owner:      owner,
		fields:     fields,
		fieldAt:    fieldAt,
		changedAt:  now,
		durability: durability,
		producedAt: now,
	}
	newID := ts.table.Alloc(slot)
	ts.forward[identity] = newID
	return newID
}

// Field reads one named field's current value.
func (ts *TrackedStruct) Field(key id.ID, name string) (any, bool) {
	slot, ok := ts.table.Get(key)
	if !ok {
		return nil, false
	}
	v, ok := slot.fields[name]
	return v, ok
}

// MaybeChangedAfter implements Ingredient.
func (ts *TrackedStruct) MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error) {
	slot, ok := ts.table.Get(key)
	if !ok {
		return ChangeResult{Changed: true}, nil
	}
	return ChangeResult{Changed: slot.changedAt > after}, nil
}

// Origin implements Ingredient: tracked structs are Assigned by their
// owning query.
func (ts *TrackedStruct) Origin(key id.ID) (depkey.QueryOrigin, bool) {
	slot, ok := ts.table.Get(key)
	if !ok {
		return depkey.QueryOrigin{}, false
	}
	return depkey.NewAssigned(slot.owner), true
}

// MarkValidatedOutput records that output remains live because executor
// was validated without re-executing this revision.
func (ts *TrackedStruct) MarkValidatedOutput(executor, output id.ID) {
	slot, ok := ts.table.Get(output)
	if !ok {
		return
	}
	slot.producedAt = ts.clock.Current()
	ts.table.Set(output, slot)
}

// RemoveStaleOutput discards output: executor re-executed and no longer
// produces it (spec.md §4.7 step g).
func (ts *TrackedStruct) RemoveStaleOutput(executor, output id.ID) {
	ts.StructDeleted(output)
}

// StructDeleted frees the struct's identity and slot outright.
func (ts *TrackedStruct) StructDeleted(key id.ID) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for k, v := range ts.forward {
		if v == key {
			delete(ts.forward, k)
			break
		}
	}
	ts.table.Free(key)
}

func (ts *TrackedStruct) CycleRecoveryStrategy() cycle.Strategy { return cycle.Panic }
func (ts *TrackedStruct) RequiresResetForNewRevision() bool     { return false }
func (ts *TrackedStruct) ResetForNewRevision()                  {}

// IsProvisionalCycleHead: tracked structs are Assigned by their owning
// query, never the product of fixpoint iteration themselves.
func (ts *TrackedStruct) IsProvisionalCycleHead(key id.ID) bool { return false }
