// Package synctable implements spec.md §4.9: per-key exclusion so that at
// most one goroutine computes a given key at a time, a cross-goroutine
// "who blocks on whom" graph used to detect deadlock-shaped cycles before
// they happen, and the database-wide cancellation flag checkpoints poll.
package synctable

import (
	"sync"

	"github.com/evalgo/cascade/cycle"
	"golang.org/x/sync/singleflight"
)

// Flag is the database-wide cancellation flag (spec.md §4.9, §5). A
// writer obtaining the mutable handle sets it; readers poll it at
// well-defined checkpoints via CheckCancellation.
type Flag struct {
	cancelled atomicBool
}

// Cancel sets the flag. Idempotent.
func (f *Flag) Cancel() { f.cancelled.set(true) }

// Reset clears the flag once the writer has finished and released &mut.
func (f *Flag) Reset() { f.cancelled.set(false) }

// IsCancelled reports the flag's current state.
func (f *Flag) IsCancelled() bool { return f.cancelled.get() }

// Cancelled is the typed value every checkpoint unwinds with once the
// flag is set (spec.md §7).
type Cancelled struct{}

func (Cancelled) Error() string { return "cascade: operation cancelled" }

// CheckCancellation is the unwind_if_cancelled checkpoint of spec.md §4.7
// step 1 / §5. Callers invoke this at every safe point and propagate a
// non-nil error immediately.
func CheckCancellation(flag *Flag) error {
	if flag.IsCancelled() {
		return Cancelled{}
	}
	return nil
}

// Table is the per-ingredient claim table: a singleflight.Group collapses
// concurrent fetches of the same key onto one execution (spec.md §8
// property 6), while a small owner/wait-for map layered on top detects
// cross-goroutine cycles before a caller would block forever.
type Table struct {
	sf singleflight.Group

	mu      sync.Mutex
	owner   map[string]string
	waitFor map[string]string
}

// NewTable returns an empty claim table.
func NewTable() *Table {
	return &Table{
		owner:   make(map[string]string),
		waitFor: make(map[string]string),
	}
}

// edgesLocked returns node's single out-edge (who it's waiting on), if
// any. Must only be called while t.mu is held.
func (t *Table) edgesLocked(node string) []string {
	if o, ok := t.waitFor[node]; ok {
		return []string{o}
	}
	return nil
}

// Claim executes fn with exclusive ownership of key on behalf of
// callerID, or waits for and reuses an in-flight execution by another
// caller. If granting the claim to callerID would require it to wait on a
// caller that is (transitively) already waiting on callerID, Claim
// returns immediately with cycleDetected=true instead of blocking
// (spec.md §4.9: "the engine checks whether adding (T -> U) would create a
// cycle in this graph; if so it triggers cycle resolution... rather than
// deadlocking").
func (t *Table) Claim(callerID, key string, fn func() (any, error)) (value any, err error, cycleDetected bool) {
	t.mu.Lock()
	if owner, busy := t.owner[key]; busy && owner != callerID {
		if cycle.HasCycle(cycle.Edges[string](t.edgesLocked), callerID, owner) {
			t.mu.Unlock()
			return nil, nil, true
		}
		t.waitFor[callerID] = owner
	} else {
		t.owner[key] = callerID
	}
	t.mu.Unlock()

	v, doErr, _ := t.sf.Do(key, fn)

	t.mu.Lock()
	delete(t.waitFor, callerID)
	if t.owner[key] == callerID {
		delete(t.owner, key)
	}
	t.mu.Unlock()

	return v, doErr, false
}

// atomicBool is a tiny bool wrapper kept local to this package so Flag's
// zero value is immediately usable without construction, matching the
// revision clock's atomic-field style.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) set(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *atomicBool) get() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}
