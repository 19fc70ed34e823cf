// Package depkey defines the dependency-record data model shared by the
// rest of the engine: the fully-qualified key of a memoized computation,
// the tagged origin describing how a memo's value was produced, and the
// ordered edge list recorded while a query runs (spec.md §3–4.4).
package depkey

import (
	"fmt"

	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
)

// IngredientIndex selects which ingredient (function/struct/input/etc.) a
// key belongs to, within one Database's ordered ingredient slice.
type IngredientIndex uint16

// DatabaseKeyIndex is the fully-qualified identity of a memoized
// computation: which ingredient, and which slot within it. It is
// comparable and usable directly as a map key — per spec.md §9, memos are
// never referred to by owning pointer, only by this index pair.
type DatabaseKeyIndex struct {
	Ingredient IngredientIndex
	Key        id.ID
}

func (k DatabaseKeyIndex) String() string {
	return fmt.Sprintf("Key(ingredient=%d, %s)", k.Ingredient, k.Key)
}

// OriginKind tags the variant of QueryOrigin.
type OriginKind uint8

const (
	// BaseInput means the value was set externally via an input setter.
	BaseInput OriginKind = iota
	// Assigned means the value was specified imperatively by another query.
	Assigned
	// Derived means the value was computed by a function whose inputs were
	// all tracked (edges is populated and trustworthy).
	Derived
	// DerivedUntracked means the function read something opaque to the
	// engine; treated as always-dirty.
	DerivedUntracked
	// FixpointInitial marks the provisional seed memo installed at the
	// start of a Fixpoint cycle iteration (spec.md §4.6 step 2).
	FixpointInitial
)

func (k OriginKind) String() string {
	switch k {
	case BaseInput:
		return "BaseInput"
	case Assigned:
		return "Assigned"
	case Derived:
		return "Derived"
	case DerivedUntracked:
		return "DerivedUntracked"
	case FixpointInitial:
		return "FixpointInitial"
	default:
		return fmt.Sprintf("OriginKind(%d)", uint8(k))
	}
}

// QueryOrigin describes how a memoized value came to be. It is a small
// tagged struct rather than an interface so it stays comparable and
// allocation-free for the common BaseInput/Derived cases (SPEC_FULL.md §3).
type QueryOrigin struct {
	Kind OriginKind
	// AssignedBy is populated only when Kind == Assigned.
	AssignedBy DatabaseKeyIndex
	// Edges is populated only when Kind == Derived or DerivedUntracked.
	Edges QueryEdges
}

// NewBaseInput returns a BaseInput origin.
func NewBaseInput() QueryOrigin { return QueryOrigin{Kind: BaseInput} }

// NewAssigned returns an Assigned origin pointing at its assigning key.
func NewAssigned(by DatabaseKeyIndex) QueryOrigin {
	return QueryOrigin{Kind: Assigned, AssignedBy: by}
}

// NewDerived returns a Derived origin carrying the query's recorded edges.
func NewDerived(edges QueryEdges) QueryOrigin {
	return QueryOrigin{Kind: Derived, Edges: edges}
}

// NewDerivedUntracked returns a DerivedUntracked origin.
func NewDerivedUntracked(edges QueryEdges) QueryOrigin {
	return QueryOrigin{Kind: DerivedUntracked, Edges: edges}
}

// NewFixpointInitial returns the origin stamped on a cycle's provisional
// seed memo.
func NewFixpointInitial() QueryOrigin { return QueryOrigin{Kind: FixpointInitial} }

// EdgeKind distinguishes a dependency read (Input) from a tracked-struct
// creation (Output) within one query's recorded edges.
type EdgeKind uint8

const (
	Input EdgeKind = iota
	Output
)

func (k EdgeKind) String() string {
	if k == Output {
		return "Output"
	}
	return "Input"
}

// Edge is one entry of a QueryEdges list.
type Edge struct {
	Kind EdgeKind
	Key  DatabaseKeyIndex
}

// QueryEdges is the ordered sequence of edges observed while a query ran.
// Execution order is preserved; §4.6's deep verification depends on it.
// A QueryEdges is immutable once stored in a memo — re-execution builds a
// fresh slice rather than mutating the old one (SPEC_FULL.md §4, spec.md §4.4).
type QueryEdges []Edge

// Inputs returns the Input-kind edges, in recorded order.
func (e QueryEdges) Inputs() []DatabaseKeyIndex {
	out := make([]DatabaseKeyIndex, 0, len(e))
	for _, edge := range e {
		if edge.Kind == Input {
			out = append(out, edge.Key)
		}
	}
	return out
}

// Outputs returns the Output-kind edges, in recorded order.
func (e QueryEdges) Outputs() []DatabaseKeyIndex {
	out := make([]DatabaseKeyIndex, 0, len(e))
	for _, edge := range e {
		if edge.Kind == Output {
			out = append(out, edge.Key)
		}
	}
	return out
}

// ChangeResult is an ingredient's answer to "did this key change after a
// given revision": either it changed outright, or it is unchanged and
// carries forward any cycle heads still outstanding (spec.md §4.6). It
// lives here, rather than alongside the Ingredient interface it answers
// for, so that validate can name it without importing ingredient (which
// itself imports validate for ShallowVerify/DeepVerify/Backdate).
type ChangeResult struct {
	Changed    bool
	CycleHeads []CycleHead
}

// CycleHead points at a key currently iterating toward a fixpoint, paired
// with the iteration count it was observed at (spec.md §3).
type CycleHead struct {
	Key       DatabaseKeyIndex
	Iteration uint32
}

// QueryRevisions is the immutable summary stored alongside a memoized
// value (spec.md §3's Memo.revisions field).
type QueryRevisions struct {
	ChangedAt    revision.Revision
	Durability   revision.Durability
	Origin       QueryOrigin
	VerifiedFinal bool
	CycleHeads   []CycleHead
	Iteration    uint32
	// TrackedStructIDs is reserved for the ids of tracked structs this
	// query produced. The engine does not populate it: stale-output
	// pruning reads Origin.Edges.Outputs() instead.
	TrackedStructIDs []id.ID
	// AccumulatedInputs is reserved for accumulator contributions observed
	// while this query ran. The engine does not populate it.
	AccumulatedInputs []DatabaseKeyIndex
}

// IsProvisional reports whether this revision record belongs to a memo
// that must not be consumed outside the cycle it belongs to (spec.md §3:
// "A memo is provisional iff cycle_heads is non-empty AND verified_final
// is false").
func (r QueryRevisions) IsProvisional() bool {
	return len(r.CycleHeads) > 0 && !r.VerifiedFinal
}
