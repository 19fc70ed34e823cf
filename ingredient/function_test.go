package ingredient

import (
	"testing"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/evalgo/cascade/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionFetchMemoizesExecution(t *testing.T) {
	clock := revision.NewClock()
	executions := 0
	fn := NewFunction[int, int](1, clock, 0, func(_ *qstack.Handle, in int) int {
		executions++
		return in * 2
	})
	handle := qstack.NewHandle()

	v1, err := fn.Fetch(handle, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, v1)

	v2, err := fn.Fetch(handle, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, v2)
	assert.Equal(t, 1, executions)
}

func TestFunctionFetchDistinctArgumentsExecuteIndependently(t *testing.T) {
	clock := revision.NewClock()
	fn := NewFunction[int, int](1, clock, 0, func(_ *qstack.Handle, in int) int {
		return in + 1
	})
	handle := qstack.NewHandle()

	v1, err := fn.Fetch(handle, 1)
	require.NoError(t, err)
	v2, err := fn.Fetch(handle, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, v1)
	assert.Equal(t, 3, v2)
}

func TestFunctionFetchBackdatesEqualRecomputation(t *testing.T) {
	clock := revision.NewClock()
	in := NewInput[int](0, clock)
	cell := in.New(10, revision.Low)

	executions := 0
	fn := NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, _ int) int {
		executions++
		v, _ := in.Get(cell, h)
		return v * 2
	})
	registry := map[depkey.IngredientIndex]Ingredient{0: in, 1: fn}
	fn.SetResolver(func(idx depkey.IngredientIndex) (validate.Dependency, bool) {
		ing, ok := registry[idx]
		return ing, ok
	})

	handle := qstack.NewHandle()
	_, err := fn.Fetch(handle, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, executions)

	m1, ok := fn.Peek(0)
	require.True(t, ok)
	firstChangedAt := m1.Revisions.ChangedAt

	clock.Bump()
	require.NoError(t, in.Set(cell, 10, revision.Low)) // same value, still bumps the write clock

	_, err = fn.Fetch(handle, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, executions, "shallow verify must fail and force a re-execution")

	m2, ok := fn.Peek(0)
	require.True(t, ok)
	assert.Equal(t, firstChangedAt, m2.Revisions.ChangedAt, "equal recomputed value should backdate changed_at")
}

func TestFunctionFetchPropagatesChangeWhenInputDiffers(t *testing.T) {
	clock := revision.NewClock()
	in := NewInput[int](0, clock)
	cell := in.New(10, revision.Low)

	fn := NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, _ int) int {
		v, _ := in.Get(cell, h)
		return v * 2
	})
	registry := map[depkey.IngredientIndex]Ingredient{0: in, 1: fn}
	fn.SetResolver(func(idx depkey.IngredientIndex) (validate.Dependency, bool) {
		ing, ok := registry[idx]
		return ing, ok
	})

	handle := qstack.NewHandle()
	v1, err := fn.Fetch(handle, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, v1)

	clock.Bump()
	require.NoError(t, in.Set(cell, 11, revision.Low))

	v2, err := fn.Fetch(handle, 0)
	require.NoError(t, err)
	assert.Equal(t, 22, v2)
}

func TestFunctionFetchPrunesStaleOutputOnReExecution(t *testing.T) {
	clock := revision.NewClock()
	in := NewInput[int](0, clock)
	cell := in.New(1, revision.Low)
	ts := NewTrackedStruct(2, clock)

	fn := NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, _ int) int {
		v, _ := in.Get(cell, h)
		if v > 0 {
			owner := h.Current().Key
			key := ts.Specify(owner, [16]byte{9}, 0, map[string]any{"v": v}, revision.Low)
			h.ReportOutput(depkey.DatabaseKeyIndex{Ingredient: 2, Key: key})
		}
		return v
	})
	registry := map[depkey.IngredientIndex]Ingredient{0: in, 1: fn, 2: ts}
	fn.SetResolver(func(idx depkey.IngredientIndex) (validate.Dependency, bool) {
		ing, ok := registry[idx]
		return ing, ok
	})

	handle := qstack.NewHandle()
	_, err := fn.Fetch(handle, 0)
	require.NoError(t, err)

	m1, ok := fn.Peek(0)
	require.True(t, ok)
	outputs := m1.Revisions.Origin.Edges.Outputs()
	require.Len(t, outputs, 1)
	structKey := outputs[0].Key

	_, ok = ts.Field(structKey, "v")
	assert.True(t, ok, "struct must exist while still produced")

	clock.Bump()
	require.NoError(t, in.Set(cell, 0, revision.Low))

	_, err = fn.Fetch(handle, 0)
	require.NoError(t, err)

	_, ok = ts.Field(structKey, "v")
	assert.False(t, ok, "struct no longer produced this revision must be pruned")

	m2, ok := fn.Peek(0)
	require.True(t, ok)
	assert.Empty(t, m2.Revisions.Origin.Edges.Outputs())
}

func TestFunctionFetchPanicsStrategyDetectsSelfCycle(t *testing.T) {
	clock := revision.NewClock()
	var fn *Function[int, int]
	fn = NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, in int) int {
		v, _ := fn.Fetch(h, in)
		return v + 1
	})
	fn.SetCycleRecovery(cycle.Panic, nil)

	handle := qstack.NewHandle()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		detected, ok := r.(*cycle.Detected)
		require.True(t, ok)
		assert.Contains(t, detected.Error(), "dependency cycle detected")
	}()
	_, _ = fn.Fetch(handle, 10)
	t.Fatal("expected a panic carrying *cycle.Detected")
}

func TestFunctionFetchFallbackImmediateResolvesSelfCycle(t *testing.T) {
	clock := revision.NewClock()
	var fn *Function[int, int]
	fn = NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, in int) int {
		v, _ := fn.Fetch(h, in)
		return v + 100
	})
	fn.SetCycleRecovery(cycle.FallbackImmediate, func(int) int { return -1 })

	handle := qstack.NewHandle()
	v, err := fn.Fetch(handle, 10)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}
