// Package event implements the engine's event-hook side channel
// (spec.md §6): a typed notification delivered to a user-supplied sink at
// well-defined points in the fetch/validate/cycle lifecycle, so logging,
// metrics, and diagnostics stay external collaborators rather than baked
// into the core.
package event

import (
	"time"

	"github.com/evalgo/cascade/depkey"
	"golang.org/x/time/rate"
)

// Kind tags the variant of Event, matching spec.md §6's hook list.
type Kind uint8

const (
	WillCheckCancellation Kind = iota
	WillExecute
	DidValidateMemoizedValue
	WillIterateCycle
	WillDiscardStaleOutput
	DidDiscard
)

func (k Kind) String() string {
	switch k {
	case WillCheckCancellation:
		return "WillCheckCancellation"
	case WillExecute:
		return "WillExecute"
	case DidValidateMemoizedValue:
		return "DidValidateMemoizedValue"
	case WillIterateCycle:
		return "WillIterateCycle"
	case WillDiscardStaleOutput:
		return "WillDiscardStaleOutput"
	case DidDiscard:
		return "DidDiscard"
	default:
		return "Unknown"
	}
}

// Event is a single notification delivered to a Sink. Key identifies the
// query the event concerns; Iteration is only meaningful for
// WillIterateCycle. At is the wall-clock time the event was raised, for
// sinks that record a timeline (diagnostics.Recorder).
type Event struct {
	Kind      Kind
	Key       depkey.DatabaseKeyIndex
	Iteration uint32
	At        time.Time
}

// Sink receives events. Implementations must not block the caller for long
// — Emit is called from the engine's hot path (WillExecute fires every
// time a query body runs) and must never call back into the database.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Nop is a Sink that discards every event. It is the default when no sink
// is configured, so the core never incurs sink overhead unless asked to.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans one event out to several sinks, in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Throttled wraps a Sink and rate-limits delivery of high-frequency kinds
// (WillExecute fires every time a query body runs). Kinds not in the limited set
// always pass through, since cycle/cancellation events are rare and worth
// seeing in full.
type Throttled struct {
	inner   Sink
	limiter *rate.Limiter
	limited map[Kind]bool
}

// NewThrottled returns a Sink that forwards every event to inner, except
// that events whose Kind is in limitedKinds are dropped once the rate
// limiter's budget (r events/sec, burst b) is exhausted.
func NewThrottled(inner Sink, r rate.Limit, burst int, limitedKinds ...Kind) *Throttled {
	set := make(map[Kind]bool, len(limitedKinds))
	for _, k := range limitedKinds {
		set[k] = true
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(r, burst),
		limited: set,
	}
}

// Emit implements Sink.
func (t *Throttled) Emit(e Event) {
	if t.limited[e.Kind] && !t.limiter.Allow() {
		return
	}
	t.inner.Emit(e)
}
