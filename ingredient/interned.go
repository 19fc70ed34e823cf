package ingredient

import (
	"sync"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
)

type internedSlot[V any] struct {
	value     V
	changedAt revision.Revision
}

// Interned implements spec.md's SPEC_FULL.md §8 "hash-consing of struct
// values to stable Ids so that two equal inputs produce the same
// identity" (original_source/src/interned.rs). Once created, an interned
// value never changes: MaybeChangedAfter reports a live key as changed
// only if it was created after the queried revision. No durability is
// recorded for interned values.
type Interned[K comparable, V any] struct {
	Index depkey.IngredientIndex

	mu      sync.RWMutex
	forward map[K]id.ID
	table   *id.Table[internedSlot[V]]
	clock   *revision.Clock
}

// NewInterned returns an empty interning table.
func NewInterned[K comparable, V any](index depkey.IngredientIndex, clock *revision.Clock) *Interned[K, V] {
	return &Interned[K, V]{
		Index:   index,
		forward: make(map[K]id.ID),
		table:   id.NewTable[internedSlot[V]](),
		clock:   clock,
	}
}

// Intern returns the stable Id for key, allocating one (and recording
// value) on first use. Subsequent calls with an equal key return the same
// Id without re-allocating.
func (in *Interned[K, V]) Intern(key K, value V) id.ID {
	in.mu.RLock()
	if existing, ok := in.forward[key]; ok {
		in.mu.RUnlock()
		return existing
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.forward[key]; ok {
		return existing
	}
	slot := in.table.Alloc(internedSlot[V]{value: value, changedAt: in.clock.Current()})
	in.forward[key] = slot
	return slot
}

// Lookup resolves an interned Id back to its value.
func (in *Interned[K, V]) Lookup(key id.ID) (V, bool) {
	slot, ok := in.table.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return slot.value, true
}

// MaybeChangedAfter implements Ingredient: interned values are immutable
// once created, so this only checks liveness and compares creation time.
func (in *Interned[K, V]) MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error) {
	slot, ok := in.table.Get(key)
	if !ok {
		return ChangeResult{Changed: true}, nil
	}
	return ChangeResult{Changed: slot.changedAt > after}, nil
}

// Origin implements Ingredient: interned values behave like base inputs
// for validation purposes — they are set once and never recomputed.
func (in *Interned[K, V]) Origin(key id.ID) (depkey.QueryOrigin, bool) {
	if _, ok := in.table.Get(key); !ok {
		return depkey.QueryOrigin{}, false
	}
	return depkey.NewBaseInput(), true
}

func (in *Interned[K, V]) MarkValidatedOutput(executor, output id.ID) {}
func (in *Interned[K, V]) RemoveStaleOutput(executor, output id.ID)   {}

// StructDeleted removes the interned entry, freeing its Id for reuse and
// clearing the forward map so a future Intern of the same key allocates
// fresh.
func (in *Interned[K, V]) StructDeleted(key id.ID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for k, v := range in.forward {
		if v == key {
			delete(in.forward, k)
			break
		}
	}
	in.table.Free(key)
}

func (in *Interned[K, V]) CycleRecoveryStrategy() cycle.Strategy     { return cycle.Panic }
func (in *Interned[K, V]) RequiresResetForNewRevision() bool         { return false }
func (in *Interned[K, V]) ResetForNewRevision()                      {}

// IsProvisionalCycleHead: interned values never iterate a fixpoint.
func (in *Interned[K, V]) IsProvisionalCycleHead(key id.ID) bool { return false }
