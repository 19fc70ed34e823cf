// Package qstack implements the active-query stack of spec.md §4.3: the
// per-goroutine record of which query is currently executing, the edges
// it has observed so far, and the running durability/changed_at merge
// used to compute its own stamp once it completes.
//
// Go has no thread-local storage. Per DESIGN.md, each goroutine that calls
// into a Database acquires its own *Handle once (at the point it starts
// talking to the engine) and passes it through its own call chain; the
// Handle is never shared across goroutines, which is what makes the stack
// "thread-local" here — it is simply never contended (spec.md §5).
package qstack

import (
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
)

// Frame is one entry of the active-query stack: the key currently
// executing, plus everything accumulated while it runs.
type Frame struct {
	Key       depkey.DatabaseKeyIndex
	Iteration uint32

	durability revision.Durability
	changedAt  revision.Revision
	edges      []depkey.Edge
	cycleHeads map[depkey.DatabaseKeyIndex]uint32
	untracked  bool

	disambiguator *id.Disambiguator
}

func (f *Frame) reset(key depkey.DatabaseKeyIndex, iteration uint32) {
	f.Key = key
	f.Iteration = iteration
	f.durability = revision.Immutable
	f.changedAt = 0
	f.edges = f.edges[:0]
	if f.cycleHeads == nil {
		f.cycleHeads = make(map[depkey.DatabaseKeyIndex]uint32)
	} else {
		for k := range f.cycleHeads {
			delete(f.cycleHeads, k)
		}
	}
	f.untracked = false
	f.disambiguator = id.NewDisambiguator()
}

// CompletedQuery is what Stack.Pop drains a frame into: everything needed
// to build the popped query's QueryRevisions. The caller (engine) decides
// the QueryOrigin kind from Untracked and len(Edges).
type CompletedQuery struct {
	Key        depkey.DatabaseKeyIndex
	Durability revision.Durability
	ChangedAt  revision.Revision
	Edges      depkey.QueryEdges
	CycleHeads []depkey.CycleHead
	Iteration  uint32
	Untracked  bool
}

// Stack is a per-goroutine vector of frames. len is a cursor that can be
// less than len(frames): popping only decrements the cursor, so the next
// push recycles the popped frame's backing slices instead of reallocating
// them — spec.md §4.3 calls this out as a measured hot path.
type Stack struct {
	frames []*Frame
	len    int
}

// NewStack returns an empty active-query stack.
func NewStack() *Stack {
	return &Stack{}
}

// Handle is the goroutine-private reference to an active-query stack.
// Acquire one per goroutine via NewHandle and thread it through every call
// that goroutine makes into the engine.
type Handle struct {
	*Stack
}

// NewHandle allocates a fresh, empty stack for the calling goroutine.
func NewHandle() *Handle {
	return &Handle{Stack: NewStack()}
}

// Depth returns the number of frames currently pushed.
func (s *Stack) Depth() int {
	return s.len
}

// Contains reports whether key is already active on this stack — the
// thread-local half of cycle detection (spec.md §4.8: "the key is already
// on the current thread's stack"). It returns the iteration the existing
// frame was pushed with.
func (s *Stack) Contains(key depkey.DatabaseKeyIndex) (iteration uint32, found bool) {
	for i := 0; i < s.len; i++ {
		if s.frames[i].Key == key {
			return s.frames[i].Iteration, true
		}
	}
	return 0, false
}

// Push starts a new frame for key at the given iteration (0 for a normal
// query, >0 for a cycle head re-iterating toward fixpoint) and returns it.
func (s *Stack) Push(key depkey.DatabaseKeyIndex, iteration uint32) *Frame {
	if s.len < len(s.frames) {
		f := s.frames[s.len]
		f.reset(key, iteration)
		s.len++
		return f
	}
	f := &Frame{}
	f.reset(key, iteration)
	s.frames = append(s.frames, f)
	s.len++
	return f
}

// Current returns the innermost active frame, or nil if the stack is
// empty.
func (s *Stack) Current() *Frame {
	if s.len == 0 {
		return nil
	}
	return s.frames[s.len-1]
}

// Pop drains and removes the innermost frame, returning its contents as a
// CompletedQuery. It panics if the stack is empty — an unbalanced
// push/pop is an assertion failure per spec.md §7.
func (s *Stack) Pop() CompletedQuery {
	if s.len == 0 {
		panic("qstack: Pop on empty stack (unbalanced push/pop)")
	}
	f := s.frames[s.len-1]
	s.len--

	heads := make([]depkey.CycleHead, 0, len(f.cycleHeads))
	for k, iter := range f.cycleHeads {
		heads = append(heads, depkey.CycleHead{Key: k, Iteration: iter})
	}
	edges := make(depkey.QueryEdges, len(f.edges))
	copy(edges, f.edges)

	return CompletedQuery{
		Key:        f.Key,
		Durability: f.durability,
		ChangedAt:  f.changedAt,
		Edges:      edges,
		CycleHeads: heads,
		Iteration:  f.Iteration,
		Untracked:  f.untracked,
	}
}

// ReportRead records a dependency read into the current frame: the dep's
// stamp is merged into the frame's running stamp, an Input edge is
// appended, and any cycle heads the dep itself depends on are folded into
// this frame's own cycle-head set (so a cycle head propagates transitively
// to every caller up the stack, per spec.md §4.8).
func (s *Stack) ReportRead(dep depkey.DatabaseKeyIndex, stamp revision.Stamp, heads []depkey.CycleHead) {
	f := s.Current()
	if f == nil {
		return // a top-level fetch with no enclosing query; nothing to record into.
	}
	f.durability = revision.Min(f.durability, stamp.Durability)
	if stamp.ChangedAt > f.changedAt {
		f.changedAt = stamp.ChangedAt
	}
	f.edges = append(f.edges, depkey.Edge{Kind: depkey.Input, Key: dep})
	for _, h := range heads {
		if existing, ok := f.cycleHeads[h.Key]; !ok || h.Iteration > existing {
			f.cycleHeads[h.Key] = h.Iteration
		}
	}
}

// ReportOutput records that the current frame produced dep (e.g. a
// tracked struct), appending an Output edge.
func (s *Stack) ReportOutput(dep depkey.DatabaseKeyIndex) {
	f := s.Current()
	if f == nil {
		return
	}
	f.edges = append(f.edges, depkey.Edge{Kind: depkey.Output, Key: dep})
}

// ReportUntrackedRead forces the current frame's eventual origin to
// DerivedUntracked and resets its stamp to (Low, current) — an untracked
// read makes the whole query always-dirty, per spec.md §4.3.
func (s *Stack) ReportUntrackedRead(current revision.Revision) {
	f := s.Current()
	if f == nil {
		return
	}
	f.untracked = true
	f.durability = revision.Low
	f.changedAt = current
}

// Disambiguate returns the next counter for hash within the current
// frame, for assigning distinct identities to tracked structs whose
// `#[id]` fields collide within one query invocation.
func (s *Stack) Disambiguate(hash [16]byte) uint32 {
	f := s.Current()
	if f == nil {
		panic("qstack: Disambiguate called with no active frame")
	}
	return f.disambiguator.Disambiguate(hash)
}
