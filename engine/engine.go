// Package engine is the outermost entry point of spec.md §4.7: it wraps a
// Function ingredient's fetch state machine with the panic/error boundary
// an unrecovered cycle (spec.md §7, §4.8 Panic strategy) crosses. The
// cancellation checkpoint itself runs inside ingredient.Function.Fetch.
package engine

import (
	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/ingredient"
	"github.com/evalgo/cascade/qstack"
)

// Fetch runs fn's fetch state machine for key on behalf of handle, and
// recovers a Panic-strategy cycle into a returned error instead of letting
// it unwind into caller code that didn't ask for it.
//
// ingredient.Function.Fetch panics with *cycle.Detected when a
// Panic-strategy ingredient discovers itself already active on the
// current goroutine's stack — real memoized query bodies have no way to
// return an error of their own (Execute[K, V] only returns V), so the
// cycle has to cross that boundary as a panic. This is the one place in
// the engine that recovers it.
func Fetch[K comparable, V any](fn *ingredient.Function[K, V], handle *qstack.Handle, key K) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			if detected, ok := r.(*cycle.Detected); ok {
				err = detected
				return
			}
			panic(r)
		}
	}()
	return fn.Fetch(handle, key)
}
