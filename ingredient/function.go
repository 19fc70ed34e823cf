package ingredient

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/memo"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/evalgo/cascade/synctable"
	"github.com/evalgo/cascade/validate"
)

// Execute is a memoized query body: given the active-query handle to
// report reads/outputs through, and the argument it was called with, it
// computes and returns a value.
type Execute[K any, V any] func(handle *qstack.Handle, input K) V

// Equal decides whether two computed values are interchangeable for the
// purpose of backdating (spec.md §4.6).
type Equal[V any] func(a, b V) bool

// Recover is recover_from_cycle (spec.md §4.8, §6): called once per
// non-converging fixpoint iteration with the value just computed, the
// iteration count, and the original argument. Returning cycle.Continue()
// lets the loop keep iterating normally; returning cycle.FallbackTo(v)
// forces the round's value to v before the loop iterates once more so the
// rest of the cycle settles around the forced value.
type Recover[K any, V any] func(value V, count uint32, input K) cycle.Outcome

// Function is the C7 memoized-computation ingredient of spec.md §4.7: the
// `fetch(K)` state machine that claims a key, consults and validates the
// memo cache, re-executes on a cache miss or failed validation, and
// installs the freshly computed (possibly backdated) memo.
type Function[K comparable, V any] struct {
	Index depkey.IngredientIndex

	clock  *revision.Clock
	store  *memo.Store
	claims *synctable.Table
	sink   event.Sink
	flag   *synctable.Flag

	mu      sync.RWMutex
	forward map[K]id.ID
	keys    *id.Table[K]

	resolve       validate.Resolver
	execute       Execute[K, V]
	equal         Equal[V]
	strategy      cycle.Strategy
	cycleInitial  func(K) V
	recover       Recover[K, V]
	maxIterations int
}

// NewFunction returns a Function ingredient. execute is the query body;
// the backdating predicate defaults to reflect.DeepEqual (see SetEqual).
func NewFunction[K comparable, V any](index depkey.IngredientIndex, clock *revision.Clock, capacity int, execute Execute[K, V]) *Function[K, V] {
	if execute == nil {
		panic("ingredient: NewFunction requires a non-nil execute body")
	}
	return &Function[K, V]{
		Index:         index,
		clock:         clock,
		store:         memo.NewStore(capacity),
		claims:        synctable.NewTable(),
		sink:          event.Nop,
		flag:          &synctable.Flag{},
		forward:       make(map[K]id.ID),
		keys:          id.NewTable[K](),
		execute:       execute,
		equal:         func(a, b V) bool { return reflect.DeepEqual(a, b) },
		strategy:      cycle.Panic,
		maxIterations: cycle.DefaultMaxIterations,
	}
}

// SetResolver wires the cross-ingredient lookup used by deep verification.
// Called once after every ingredient in the database has been constructed.
func (f *Function[K, V]) SetResolver(r validate.Resolver) { f.resolve = r }

// SetSink installs the event sink notified at fetch/validate/cycle
// checkpoints.
func (f *Function[K, V]) SetSink(s event.Sink) {
	if s == nil {
		s = event.Nop
	}
	f.sink = s
}

// SetCancellationFlag shares the database-wide cancellation flag.
func (f *Function[K, V]) SetCancellationFlag(flag *synctable.Flag) { f.flag = flag }

// SetEqual overrides the default reflect.DeepEqual backdating predicate.
func (f *Function[K, V]) SetEqual(eq Equal[V]) { f.equal = eq }

// SetCycleRecovery declares this function's cycle-handling policy. initial
// supplies the seed/fallback value used for FallbackImmediate and Fixpoint.
func (f *Function[K, V]) SetCycleRecovery(strategy cycle.Strategy, initial func(K) V) {
	f.strategy = strategy
	f.cycleInitial = initial
}

// SetMaxIterations overrides cycle.DefaultMaxIterations for this function.
func (f *Function[K, V]) SetMaxIterations(n int) { f.maxIterations = n }

// SetRecoverFromCycle installs recover_from_cycle for this function's
// Fixpoint strategy (spec.md §4.8, §6). Optional: a Fixpoint function with
// no recover hook iterates to convergence or the iteration ceiling exactly
// as before.
func (f *Function[K, V]) SetRecoverFromCycle(recover Recover[K, V]) { f.recover = recover }

// keyFor returns the stable Id for a query argument, interning it on first
// use (spec.md §4.2: "two equal arguments are the same Id").
func (f *Function[K, V]) keyFor(input K) id.ID {
	f.mu.RLock()
	if existing, ok := f.forward[input]; ok {
		f.mu.RUnlock()
		return existing
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.forward[input]; ok {
		return existing
	}
	newID := f.keys.Alloc(input)
	f.forward[input] = newID
	return newID
}

// Fetch implements spec.md §4.7 steps 1-h: the full claimed, validated,
// possibly-re-executed read of a memoized query.
func (f *Function[K, V]) Fetch(handle *qstack.Handle, input K) (V, error) {
	var zero V
	if err := synctable.CheckCancellation(f.flag); err != nil {
		return zero, err
	}

	key := f.keyFor(input)
	self := depkey.DatabaseKeyIndex{Ingredient: f.Index, Key: key}

	if handle != nil {
		if iter, found := handle.Contains(self); found {
			return f.resolveReentrant(handle, self, iter, input)
		}
	}

	callerID := fmt.Sprintf("%p", handle)
	raw, err, cycleDetected := f.claims.Claim(callerID, self.String(), func() (v any, provisionalErr error) {
		// singleflight re-panics a recovered panic wrapped in its own type;
		// carry a *cycle.Detected out as an error so it can be re-raised
		// unwrapped below.
		defer func() {
			if r := recover(); r != nil {
				detected, ok := r.(*cycle.Detected)
				if !ok {
					panic(r)
				}
				provisionalErr = detected
			}
		}()
		return f.fetchLocked(handle, self, key, input)
	})
	if cycleDetected {
		return f.resolveReentrant(handle, self, 0, input)
	}
	if detected, ok := err.(*cycle.Detected); ok {
		panic(detected)
	}
	if err != nil {
		return zero, err
	}
	return raw.(V), nil
}

// resolveReentrant handles a cycle discovered either on this goroutine's
// own active-query stack, or (cycleDetected) across the claim table's
// cross-goroutine wait-for graph (spec.md §4.8, §4.9).
func (f *Function[K, V]) resolveReentrant(handle *qstack.Handle, self depkey.DatabaseKeyIndex, iter uint32, input K) (V, error) {
	var zero V
	switch f.strategy {
	case cycle.FallbackImmediate, cycle.Fixpoint:
		if f.cycleInitial == nil {
			return zero, fmt.Errorf("ingredient: function %s declared %s but has no cycle-initial value", self, f.strategy)
		}
		v := f.cycleInitial(input)
		if f.strategy == cycle.Fixpoint {
			// Later rounds read the provisional seed the previous round left.
			if m, ok := f.store.Get(self.Key); ok && m.IsProvisional() && m.Value != nil {
				v = m.Value.(V)
			}
		}
		if handle != nil {
			stamp := revision.Stamp{Durability: revision.Low, ChangedAt: f.clock.Current()}
			handle.ReportRead(self, stamp, []depkey.CycleHead{{Key: self, Iteration: iter}})
		}
		return v, nil
	default:
		// A real user function has no way to return an error from inside
		// Execute[K, V] (it only returns V, matching how ordinary memoized
		// queries are written). Per spec.md §7, an unrecovered cycle
		// surfaces as a panic carrying the typed *cycle.Detected value; the
		// outermost caller (engine.Fetch) recovers it and converts it back
		// into a returned error.
		panic(&cycle.Detected{Participants: []depkey.DatabaseKeyIndex{self}})
	}
}

// fetchLocked runs with this key's claim held: check the existing memo,
// validate it, or re-execute and install a fresh one.
func (f *Function[K, V]) fetchLocked(handle *qstack.Handle, self depkey.DatabaseKeyIndex, key id.ID, input K) (V, error) {
	var zero V
	now := f.clock.Current()

	if m, ok := f.store.Get(key); ok && m.Value != nil {
		if m.IsProvisional() {
			// A provisional memo from an earlier iteration may only be
			// reused by the exact iteration of the exact cycle that
			// produced it (validate_same_iteration), unless every one of
			// its cycle heads has itself converged, in which case it is
			// promoted to final in place (validate_may_be_provisional) and
			// falls through to ordinary verification below.
			if validate.MayBePromoted(f.resolve, m) {
				// promoted: treat as a normal, final memo from here on.
			} else if validate.SameIteration(handle, m) {
				f.sink.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: self, At: time.Now()})
				f.reportSelf(handle, self, m)
				return m.Value.(V), nil
			} else {
				// Stale provisional from a different iteration: must
				// re-execute rather than leak a mid-cycle value across
				// iteration boundaries.
				return f.execAndStore(handle, self, key, input, m, now)
			}
		}

		if validate.ShallowVerify(f.clock, m, now) {
			f.sink.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: self, At: time.Now()})
			f.reportSelf(handle, self, m)
			return m.Value.(V), nil
		}
		result, err := validate.DeepVerify(f.resolve, self, m, now)
		if err != nil {
			return zero, fmt.Errorf("ingredient: function: deep verify %s: %w", self, err)
		}
		if result.Unchanged {
			m.Revisions.CycleHeads = result.CycleHeads
			f.sink.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: self, At: time.Now()})
			f.reportSelf(handle, self, m)
			return m.Value.(V), nil
		}
	}

	// Either no memo exists yet, or its Value was nulled out by LRU
	// eviction (spec.md §4.5: "value=None encodes must re-execute"
	// unconditionally, regardless of what shallow/deep verification would
	// otherwise conclude about its dependency metadata).
	old, _ := f.store.Get(key)
	return f.execAndStore(handle, self, key, input, old, now)
}

// execAndStore runs execute (iterating to a fixpoint if this function's
// strategy is cycle.Fixpoint and it discovers itself as the sole cycle
// head) and installs the resulting memo, applying backdating.
func (f *Function[K, V]) execAndStore(handle *qstack.Handle, self depkey.DatabaseKeyIndex, key id.ID, input K, old *memo.Memo, now revision.Revision) (V, error) {
	var value V
	var completed qstack.CompletedQuery

	for iteration := uint32(0); ; iteration++ {
		if iteration > uint32(f.maxIterations) {
			panic(fmt.Sprintf("cascade: fixpoint iteration exceeded %d rounds for %s", f.maxIterations, self))
		}

		childHandle := handle
		if childHandle == nil {
			childHandle = qstack.NewHandle()
		}
		childHandle.Push(self, iteration)
		f.sink.Emit(event.Event{Kind: event.WillExecute, Key: self, Iteration: iteration, At: time.Now()})
		value = f.execute(childHandle, input)
		completed = childHandle.Pop()

		soleSelfHead := len(completed.CycleHeads) == 1 && completed.CycleHeads[0].Key == self
		if !soleSelfHead || f.strategy != cycle.Fixpoint {
			break
		}

		if old != nil && old.Value != nil && f.equal(old.Value.(V), value) {
			break // converged
		}

		if f.recover != nil {
			outcome := f.recover(value, iteration, input)
			if outcome.HasValue {
				// Force convergence to the supplied fallback: install it as
				// this round's value and let the loop run one more
				// iteration so the rest of the cycle settles around it
				// before the memo is finalized below.
				value = outcome.Fallback.(V)
			}
		}

		seed := f.provisionalMemo(self, value, completed, now, iteration)
		f.store.Set(key, seed)
		old = seed
		f.sink.Emit(event.Event{Kind: event.WillIterateCycle, Key: self, Iteration: iteration + 1, At: time.Now()})
	}

	if len(completed.Edges) == 0 {
		completed.ChangedAt = now
	}

	if old != nil {
		f.pruneStaleOutputs(self, old.Revisions.Origin.Edges.Outputs(), completed.Edges.Outputs())
	}

	var origin depkey.QueryOrigin
	if completed.Untracked {
		origin = depkey.NewDerivedUntracked(completed.Edges)
	} else {
		origin = depkey.NewDerived(completed.Edges)
	}

	valuesEqual := old != nil && old.Value != nil && f.equal(old.Value.(V), value)
	changedAt := validate.Backdate(old, completed.Durability, completed.ChangedAt, valuesEqual)

	verifiedFinal := true
	var heads []depkey.CycleHead
	if len(completed.CycleHeads) > 0 {
		soleSelfHead := len(completed.CycleHeads) == 1 && completed.CycleHeads[0].Key == self
		if !soleSelfHead && f.strategy == cycle.Fixpoint {
			verifiedFinal = false
			heads = completed.CycleHeads
		}
	}

	m := &memo.Memo{
		Value:      value,
		VerifiedAt: now,
		Revisions: depkey.QueryRevisions{
			ChangedAt:     changedAt,
			Durability:    completed.Durability,
			Origin:        origin,
			VerifiedFinal: verifiedFinal,
			CycleHeads:    heads,
			Iteration:     completed.Iteration,
		},
	}
	f.store.Set(key, m)
	f.reportSelf(handle, self, m)
	return value, nil
}

// pruneStaleOutputs implements spec.md §4.7 step g: an output this query
// produced last time but did not reproduce this time (e.g. a tracked
// struct a conditional branch stopped creating) is discarded from the
// ingredient that owns it, rather than left to dangle forever.
func (f *Function[K, V]) pruneStaleOutputs(self depkey.DatabaseKeyIndex, previous, current []depkey.DatabaseKeyIndex) {
	if len(previous) == 0 {
		return
	}
	still := make(map[depkey.DatabaseKeyIndex]bool, len(current))
	for _, out := range current {
		still[out] = true
	}
	for _, out := range previous {
		if still[out] {
			continue
		}
		f.sink.Emit(event.Event{Kind: event.WillDiscardStaleOutput, Key: out, At: time.Now()})
		if ing, ok := f.resolve(out.Ingredient); ok {
			ing.RemoveStaleOutput(self.Key, out.Key)
		}
		f.sink.Emit(event.Event{Kind: event.DidDiscard, Key: out, At: time.Now()})
	}
}

func (f *Function[K, V]) provisionalMemo(self depkey.DatabaseKeyIndex, value V, completed qstack.CompletedQuery, now revision.Revision, iteration uint32) *memo.Memo {
	return &memo.Memo{
		Value:      value,
		VerifiedAt: now,
		Revisions: depkey.QueryRevisions{
			ChangedAt:     now,
			Durability:    completed.Durability,
			Origin:        depkey.NewDerived(completed.Edges),
			VerifiedFinal: false,
			CycleHeads:    completed.CycleHeads,
			Iteration:     iteration,
		},
	}
}

// reportSelf records this query's stamp and outstanding cycle heads into
// the caller's active frame, if any.
func (f *Function[K, V]) reportSelf(handle *qstack.Handle, self depkey.DatabaseKeyIndex, m *memo.Memo) {
	if handle == nil {
		return
	}
	stamp := revision.Stamp{Durability: m.Revisions.Durability, ChangedAt: m.Revisions.ChangedAt}
	handle.ReportRead(self, stamp, m.Revisions.CycleHeads)
}

// MaybeChangedAfter implements Ingredient.
func (f *Function[K, V]) MaybeChangedAfter(key id.ID, after revision.Revision) (ChangeResult, error) {
	m, ok := f.store.Get(key)
	if !ok {
		return ChangeResult{Changed: true}, nil
	}
	now := f.clock.Current()
	if validate.ShallowVerify(f.clock, m, now) {
		return ChangeResult{Changed: m.Revisions.ChangedAt > after}, nil
	}
	result, err := validate.DeepVerify(f.resolve, depkey.DatabaseKeyIndex{Ingredient: f.Index, Key: key}, m, now)
	if err != nil {
		return ChangeResult{}, err
	}
	if !result.Unchanged {
		return ChangeResult{Changed: true}, nil
	}
	return ChangeResult{Changed: m.Revisions.ChangedAt > after, CycleHeads: result.CycleHeads}, nil
}

// Origin implements Ingredient.
func (f *Function[K, V]) Origin(key id.ID) (depkey.QueryOrigin, bool) {
	m, ok := f.store.Get(key)
	if !ok {
		return depkey.QueryOrigin{}, false
	}
	return m.Revisions.Origin, true
}

func (f *Function[K, V]) MarkValidatedOutput(executor, output id.ID) {}
func (f *Function[K, V]) RemoveStaleOutput(executor, output id.ID)   {}
func (f *Function[K, V]) StructDeleted(key id.ID)                    { f.store.Delete(key) }

// IsProvisionalCycleHead implements Ingredient (spec.md §4.8
// validate_may_be_provisional): true while key's memo is a cycle head that
// hasn't yet been promoted to a final verdict.
func (f *Function[K, V]) IsProvisionalCycleHead(key id.ID) bool {
	m, ok := f.store.Get(key)
	return ok && m.IsProvisional()
}

func (f *Function[K, V]) CycleRecoveryStrategy() cycle.Strategy { return f.strategy }

// RequiresResetForNewRevision: function ingredients must drain their memo
// store's deleted-entries queue at every revision boundary.
func (f *Function[K, V]) RequiresResetForNewRevision() bool { return true }

// ResetForNewRevision drains the memo store's deleted-entries queue.
func (f *Function[K, V]) ResetForNewRevision() { f.store.DrainDeleted() }

// Len reports how many distinct arguments have been memoized.
func (f *Function[K, V]) Len() int { return f.store.Len() }

// Peek returns the current memo for input without validating or
// re-executing it, for diagnostics/debug surfaces.
func (f *Function[K, V]) Peek(input K) (*memo.Memo, bool) {
	f.mu.RLock()
	key, ok := f.forward[input]
	f.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f.store.Get(key)
}
