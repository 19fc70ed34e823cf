package qstack

import (
	"testing"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(n uint32) depkey.DatabaseKeyIndex {
	return depkey.DatabaseKeyIndex{Ingredient: 0, Key: id.NewID(n, 1)}
}

func TestPushPopBalancesAndRecyclesFrames(t *testing.T) {
	s := NewStack()
	require.Equal(t, 0, s.Depth())

	s.Push(key(1), 0)
	require.Equal(t, 1, s.Depth())
	assert.Equal(t, key(1), s.Current().Key)

	cq := s.Pop()
	assert.Equal(t, key(1), cq.Key)
	assert.Equal(t, 0, s.Depth())

	// Recycled frame should start clean for the next push.
	s.Push(key(2), 0)
	cq2 := s.Pop()
	assert.Empty(t, cq2.Edges)
	assert.Empty(t, cq2.CycleHeads)
}

func TestReportReadMergesStampAndRecordsEdge(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)

	s.ReportRead(key(2), revision.Stamp{Durability: revision.High, ChangedAt: 3}, nil)
	s.ReportRead(key(3), revision.Stamp{Durability: revision.Low, ChangedAt: 7}, nil)

	cq := s.Pop()
	require.Len(t, cq.Edges, 2)
	assert.Equal(t, depkey.Input, cq.Edges[0].Kind)
	assert.Equal(t, key(2), cq.Edges[0].Key)
	assert.Equal(t, key(3), cq.Edges[1].Key)

	// durability := min(...), changed_at := max(...)
	assert.Equal(t, revision.Low, cq.Durability)
	assert.Equal(t, revision.Revision(7), cq.ChangedAt)
}

func TestReportOutputAppendsOutputEdge(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)
	s.ReportOutput(key(9))
	cq := s.Pop()
	require.Len(t, cq.Edges, 1)
	assert.Equal(t, depkey.Output, cq.Edges[0].Kind)
}

func TestReportUntrackedReadForcesLowAndCurrent(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)
	s.ReportRead(key(2), revision.Stamp{Durability: revision.High, ChangedAt: 2}, nil)
	s.ReportUntrackedRead(42)

	cq := s.Pop()
	assert.True(t, cq.Untracked)
	assert.Equal(t, revision.Low, cq.Durability)
	assert.Equal(t, revision.Revision(42), cq.ChangedAt)
}

func TestContainsDetectsReentrancy(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)
	s.Push(key(2), 0)

	iter, found := s.Contains(key(1))
	assert.True(t, found)
	assert.Equal(t, uint32(0), iter)

	_, found = s.Contains(key(99))
	assert.False(t, found)
}

func TestCycleHeadsPropagateUpTheStack(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)
	head := depkey.CycleHead{Key: key(5), Iteration: 2}
	s.ReportRead(key(2), revision.Stamp{}, []depkey.CycleHead{head})

	cq := s.Pop()
	require.Len(t, cq.CycleHeads, 1)
	assert.Equal(t, head, cq.CycleHeads[0])
}

func TestDisambiguateCountsWithinFrame(t *testing.T) {
	s := NewStack()
	s.Push(key(1), 0)
	h := id.Hash([]byte("same"))
	assert.Equal(t, uint32(0), s.Disambiguate(h))
	assert.Equal(t, uint32(1), s.Disambiguate(h))
}

func TestPopOnEmptyStackPanics(t *testing.T) {
	s := NewStack()
	assert.Panics(t, func() { s.Pop() })
}

func TestNewHandleIsIndependentPerGoroutine(t *testing.T) {
	h1 := NewHandle()
	h2 := NewHandle()
	h1.Push(key(1), 0)
	assert.Equal(t, 1, h1.Depth())
	assert.Equal(t, 0, h2.Depth())
}
