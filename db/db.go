// Package db is the engine's composition root (spec.md §9
// "Database/Storage"): an ordered ingredient registry, a views table
// mapping a Go type to its ingredient index, the shared revision clock and
// cancellation flag every ingredient is wired against, and the revision
// boundary ("the mutable handle") that bumps the clock and resets
// per-revision ingredient bookkeeping.
package db

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/evalgo/cascade/ingredient"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/evalgo/cascade/synctable"
	"github.com/evalgo/cascade/validate"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Database owns every ingredient, the shared clock, and the cancellation
// flag. It corresponds to original_source/src/database.rs's `Zalsa`: the
// single struct every ingredient is constructed against and every query
// handle ultimately reads through.
type Database struct {
	mu          sync.RWMutex
	ingredients []ingredient.Ingredient
	views       map[reflect.Type]depkey.IngredientIndex

	clock *revision.Clock
	flag  *synctable.Flag
	sink  event.Sink

	// nonce distinguishes one Database instance's Ids from another's: Ids
	// minted by ingredient X in database generation A must never be
	// compared against X's Ids in generation B (original_source/src/id.rs's
	// generation-tagged identity, one level up). A full per-Id nonce check
	// would require threading this value through id.ID itself; instead it
	// is exposed for callers (diagnostics, cascadehttp) to tag logged state
	// with, a deliberate simplification.
	nonce uuid.UUID

	group *errgroup.Group
}

// New returns an empty Database. sink may be nil (defaults to event.Nop).
func New(sink event.Sink) *Database {
	if sink == nil {
		sink = event.Nop
	}
	return &Database{
		views:  make(map[reflect.Type]depkey.IngredientIndex),
		clock:  revision.NewClock(),
		flag:   &synctable.Flag{},
		sink:   sink,
		nonce:  uuid.New(),
		group:  &errgroup.Group{},
	}
}

// Clock returns the database's shared revision clock.
func (db *Database) Clock() *revision.Clock { return db.clock }

// Flag returns the database's shared cancellation flag.
func (db *Database) Flag() *synctable.Flag { return db.flag }

// Sink returns the database's configured event sink.
func (db *Database) Sink() event.Sink { return db.sink }

// Nonce identifies this Database instance, distinct across process
// restarts and across concurrently constructed databases in the same
// process (e.g. in tests).
func (db *Database) Nonce() uuid.UUID { return db.nonce }

// NewHandle allocates a fresh active-query stack for a goroutine about to
// call into this database (spec.md §4.3, §5).
func (db *Database) NewHandle() *qstack.Handle { return qstack.NewHandle() }

// register appends ing to the ordered ingredient slice and, if t is
// non-nil, records it in the views table, returning its assigned index.
func (db *Database) register(ing ingredient.Ingredient, t reflect.Type) depkey.IngredientIndex {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx := depkey.IngredientIndex(len(db.ingredients))
	db.ingredients = append(db.ingredients, ing)
	if t != nil {
		db.views[t] = idx
	}
	return idx
}

// Resolve looks up the ingredient owning idx. RegisterFunction adapts it
// to validate.Resolver with a one-line closure, since Resolver returns a
// validate.Dependency rather than an ingredient.Ingredient.
func (db *Database) Resolve(idx depkey.IngredientIndex) (ingredient.Ingredient, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if int(idx) >= len(db.ingredients) {
		return nil, false
	}
	return db.ingredients[idx], true
}

// ViewIndex returns the ingredient index registered against Go type t, if
// any (original_source/src/views.rs's TypeId -> ingredient lookup).
func (db *Database) ViewIndex(t reflect.Type) (depkey.IngredientIndex, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	idx, ok := db.views[t]
	return idx, ok
}

// NewRevision is the database's mutable-handle boundary (spec.md §4.1,
// §4.9): it bumps the shared clock, resets every ingredient that asked for
// a per-revision callback, and clears the cancellation flag for the fresh
// revision. Callers must hold exclusive access to the database while this
// runs — no Fetch/Set call may be in flight.
func (db *Database) NewRevision() revision.Revision {
	db.mu.RLock()
	ingredients := make([]ingredient.Ingredient, len(db.ingredients))
	copy(ingredients, db.ingredients)
	db.mu.RUnlock()

	next := db.clock.Bump()
	for _, ing := range ingredients {
		if ing.RequiresResetForNewRevision() {
			ing.ResetForNewRevision()
		}
	}
	db.flag.Reset()
	return next
}

// Cancel sets the cancellation flag, causing every in-flight fetch to
// unwind at its next checkpoint with synctable.Cancelled (spec.md §4.9).
func (db *Database) Cancel() { db.flag.Cancel() }

// Go schedules fn to run on the database's background group, returning
// immediately. Errors are collected and surfaced by Shutdown
// (worker/pool.go's Worker goroutine loop, generalized with
// golang.org/x/sync/errgroup instead of a hand-rolled WaitGroup + error
// channel).
func (db *Database) Go(fn func() error) {
	db.group.Go(fn)
}

// Shutdown waits for every function scheduled via Go to complete, and
// returns the first error any of them returned.
func (db *Database) Shutdown() error {
	return db.group.Wait()
}

// typeOf returns the reflect.Type of K, used as the views key for a
// registered ingredient kind.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// RegisterInput constructs and registers a new Input[V] ingredient.
func RegisterInput[V any](db *Database) *ingredient.Input[V] {
	in := ingredient.NewInput[V](0, db.clock)
	in.Index = db.register(in, typeOf[V]())
	return in
}

// RegisterInterned constructs and registers a new Interned[K, V]
// ingredient.
func RegisterInterned[K comparable, V any](db *Database) *ingredient.Interned[K, V] {
	in := ingredient.NewInterned[K, V](0, db.clock)
	idx := db.register(in, typeOf[V]())
	in.Index = idx
	return in
}

// RegisterTrackedStruct constructs and registers a new TrackedStruct
// ingredient for the Go type T (used only as the views key — fields are
// supplied dynamically to Specify).
func RegisterTrackedStruct[T any](db *Database) *ingredient.TrackedStruct {
	ts := ingredient.NewTrackedStruct(0, db.clock)
	idx := db.register(ts, typeOf[T]())
	ts.Index = idx
	return ts
}

// RegisterAccumulator constructs and registers a new Accumulator[V].
func RegisterAccumulator[V any](db *Database) *ingredient.Accumulator[V] {
	acc := ingredient.NewAccumulator[V](0, db.clock)
	idx := db.register(acc, typeOf[V]())
	acc.Index = idx
	return acc
}

// RegisterFunction constructs and registers a new Function[K, V]
// ingredient, wiring it against this database's resolver, event sink, and
// cancellation flag.
func RegisterFunction[K comparable, V any](db *Database, capacity int, execute ingredient.Execute[K, V]) *ingredient.Function[K, V] {
	fn := ingredient.NewFunction[K, V](0, db.clock, capacity, execute)
	idx := db.register(fn, typeOf[V]())
	fn.Index = idx
	fn.SetResolver(func(idx depkey.IngredientIndex) (validate.Dependency, bool) { return db.Resolve(idx) })
	fn.SetSink(db.sink)
	fn.SetCancellationFlag(db.flag)
	return fn
}

func (db *Database) String() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fmt.Sprintf("Database(nonce=%s, ingredients=%d, revision=%s)", db.nonce, len(db.ingredients), db.clock.Current())
}
