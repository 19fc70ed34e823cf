package ingredient

import (
	"sync"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
)

// OriginOf looks up an arbitrary key's recorded QueryOrigin, composed by
// the caller from its ingredient registry (db.Database) plus each
// ingredient's Origin method. Accumulated uses it to walk a query's
// dependency subgraph without importing db or validate.
type OriginOf func(depkey.DatabaseKeyIndex) (depkey.QueryOrigin, bool)

// Accumulator implements the SPEC_FULL.md §8 "Accumulators" supplement
// (original_source/src/accumulator.rs): a write-only side channel that a
// query pushes values into while it runs, and that a reader later collects
// across a query and everything it transitively depends on. Reading is
// itself tracked: Accumulated records a dependency on the accumulator's
// contents as a whole, so a later push invalidates the reader.
type Accumulator[V any] struct {
	Index depkey.IngredientIndex

	clock *revision.Clock

	mu        sync.Mutex
	byOwner   map[depkey.DatabaseKeyIndex][]V
	changedAt revision.Revision
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator[V any](index depkey.IngredientIndex, clock *revision.Clock) *Accumulator[V] {
	return &Accumulator[V]{
		Index:   index,
		clock:   clock,
		byOwner: make(map[depkey.DatabaseKeyIndex][]V),
	}
}

// Push records value as a contribution of the query currently active on
// handle (a no-op outside any tracked query — there is no owner to
// attribute the value to).
func (a *Accumulator[V]) Push(handle *qstack.Handle, value V) {
	if handle == nil {
		return
	}
	frame := handle.Current()
	if frame == nil {
		return
	}
	owner := frame.Key
	a.mu.Lock()
	a.byOwner[owner] = append(a.byOwner[owner], value)
	a.changedAt = a.clock.Current()
	a.mu.Unlock()
}

// Reset clears owner's prior contributions. Callers re-executing a query
// that accumulates must call this before the run so pushes from a stale
// revision don't linger alongside the fresh ones.
func (a *Accumulator[V]) Reset(owner depkey.DatabaseKeyIndex) {
	a.mu.Lock()
	delete(a.byOwner, owner)
	a.mu.Unlock()
}

// Accumulated collects every value pushed by root or any query root
// transitively reads from, walking Input edges of each query's recorded
// origin. If handle is non-nil, the read is recorded as a dependency on
// the accumulator's contents as a whole.
func (a *Accumulator[V]) Accumulated(handle *qstack.Handle, root depkey.DatabaseKeyIndex, originOf OriginOf) []V {
	seen := map[depkey.DatabaseKeyIndex]bool{}
	var out []V
	var walk func(depkey.DatabaseKeyIndex)
	walk = func(k depkey.DatabaseKeyIndex) {
		if seen[k] {
			return
		}
		seen[k] = true
		a.mu.Lock()
		out = append(out, a.byOwner[k]...)
		a.mu.Unlock()
		origin, ok := originOf(k)
		if !ok {
			return
		}
		for _, edge := range origin.Edges {
			if edge.Kind == depkey.Input {
				walk(edge.Key)
			}
		}
	}
	walk(root)

	if handle != nil {
		a.mu.Lock()
		changedAt := a.changedAt
		a.mu.Unlock()
		stamp := revision.Stamp{Durability: revision.Low, ChangedAt: changedAt}
		handle.ReportRead(depkey.DatabaseKeyIndex{Ingredient: a.Index}, stamp, nil)
	}
	return out
}

// MaybeChangedAfter implements Ingredient. The only dependency on an
// accumulator is the one Accumulated records on its contents as a whole,
// so key is ignored: the contents count as changed if any Push happened
// after the given revision.
func (a *Accumulator[V]) MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error) {
	a.mu.Lock()
	changed := a.changedAt > after
	a.mu.Unlock()
	return ChangeResult{Changed: changed}, nil
}

// Origin implements Ingredient: accumulators record contributions by
// owner, not a per-key QueryOrigin.
func (a *Accumulator[V]) Origin(key id.ID) (depkey.QueryOrigin, bool) {
	return depkey.QueryOrigin{}, false
}

// MarkValidatedOutput implements Ingredient. Push never reports an Output
// edge pointing at the accumulator, so this is never exercised in
// practice; it is a no-op rather than a panic to keep the interface total.
func (a *Accumulator[V]) MarkValidatedOutput(executor, output id.ID) {}

// RemoveStaleOutput implements Ingredient, for the same reason as
// MarkValidatedOutput.
func (a *Accumulator[V]) RemoveStaleOutput(executor, output id.ID) {}

// StructDeleted implements Ingredient: an accumulator is never registered
// as a tracked struct's owning ingredient.
func (a *Accumulator[V]) StructDeleted(key id.ID) {}

// CycleRecoveryStrategy implements Ingredient: accumulating is a
// side-effect-only write and never itself participates in cycle recovery.
func (a *Accumulator[V]) CycleRecoveryStrategy() cycle.Strategy { return cycle.Panic }

// RequiresResetForNewRevision implements Ingredient: contributions are
// owner-scoped and cleared explicitly via Reset before a re-execution,
// not on every revision boundary.
func (a *Accumulator[V]) RequiresResetForNewRevision() bool { return false }

// ResetForNewRevision implements Ingredient.
func (a *Accumulator[V]) ResetForNewRevision() {}

// IsProvisionalCycleHead implements Ingredient: accumulators never
// iterate a fixpoint.
func (a *Accumulator[V]) IsProvisionalCycleHead(key id.ID) bool { return false }
