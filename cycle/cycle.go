// Package cycle implements spec.md §4.8: the strategies an ingredient can
// declare for handling a dependency cycle discovered while pushing a new
// active-query frame, and the types a Fixpoint cycle head's iteration
// loop (run by ingredient.Function) uses.
//
// HasCycle, the wait-for-graph cycle check synctable uses, is grounded in
// graph/dag.go's checkCycleRecursive: the same depth-first,
// recursion-stack-marked walk, generalized here from string action ids to
// any comparable node type.
package cycle

import (
	"fmt"

	"github.com/evalgo/cascade/depkey"
)

// Strategy is the cycle-recovery policy an ingredient declares via
// ingredient.Ingredient.CycleRecoveryStrategy.
type Strategy uint8

const (
	// Panic propagates a typed Detected value up the stack.
	Panic Strategy = iota
	// FallbackImmediate installs the user's cycle_initial value as the
	// memo and stops iterating.
	FallbackImmediate
	// Fixpoint iterates cycle_initial to convergence (see Iterate).
	Fixpoint
)

func (s Strategy) String() string {
	switch s {
	case Panic:
		return "Panic"
	case FallbackImmediate:
		return "FallbackImmediate"
	case Fixpoint:
		return "Fixpoint"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Detected is the typed value that a Panic-strategy cycle propagates, per
// spec.md §7 ("surfaces as a typed value containing the participant
// list").
type Detected struct {
	Participants []depkey.DatabaseKeyIndex
}

func (d *Detected) Error() string {
	return fmt.Sprintf("cascade: dependency cycle detected: %v", d.Participants)
}

// DefaultMaxIterations is the hard ceiling on fixpoint iteration count
// before the engine panics, per spec.md §4.8 ("a hard ceiling on iteration
// count exists; exceeding it panics").
const DefaultMaxIterations = 200

// Outcome is what recover_from_cycle returns: either keep iterating, or
// force convergence to a supplied value.
type Outcome struct {
	Iterate  bool
	Fallback any
	HasValue bool
}

// Continue requests another iteration.
func Continue() Outcome { return Outcome{Iterate: true} }

// FallbackTo forces convergence to v.
func FallbackTo(v any) Outcome { return Outcome{Fallback: v, HasValue: true} }

// Graph is an empty marker type; the DFS cycle detector itself is
// HasCycle below, which synctable uses for the cross-thread wait-for
// graph (spec.md §4.9). The thread-local active-query stack is checked
// with qstack's Contains instead.
type Graph struct{}

// Edges resolves the out-neighbors of a node; callers supply this rather
// than Graph owning storage, so the same algorithm serves both the
// key-dependency graph and the thread-blocks-on-thread graph.
type Edges[T comparable] func(node T) []T

// HasCycle reports whether adding the edge from->to would create a cycle
// reachable from "to", using depth-first search with recursion-stack
// detection (graph/dag.go's checkCycleRecursive, generalized to any
// comparable node type).
func HasCycle[T comparable](edges Edges[T], from, to T) bool {
	if from == to {
		return true
	}
	visited := make(map[T]bool)
	recStack := make(map[T]bool)
	return walk(edges, to, from, visited, recStack)
}

func walk[T comparable](edges Edges[T], node, target T, visited, recStack map[T]bool) bool {
	visited[node] = true
	recStack[node] = true

	for _, next := range edges(node) {
		if next == target {
			return true
		}
		if !visited[next] {
			if walk(edges, next, target, visited, recStack) {
				return true
			}
		} else if recStack[next] {
			return true
		}
	}

	recStack[node] = false
	return false
}
