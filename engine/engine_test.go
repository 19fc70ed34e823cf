package engine

import (
	"testing"

	"github.com/evalgo/cascade/cycle"
	"github.com/evalgo/cascade/ingredient"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsValueOnSuccess(t *testing.T) {
	clock := revision.NewClock()
	fn := ingredient.NewFunction[int, int](1, clock, 0, func(_ *qstack.Handle, in int) int {
		return in * 2
	})
	v, err := Fetch(fn, qstack.NewHandle(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFetchRecoversPanicStrategyCycle(t *testing.T) {
	clock := revision.NewClock()
	var fn *ingredient.Function[int, int]
	fn = ingredient.NewFunction[int, int](1, clock, 0, func(h *qstack.Handle, in int) int {
		// The recursive re-entry happens through the raw ingredient call, not
		// engine.Fetch: the cycle panic must cross this query body's frame
		// unrecovered and only be caught at the outermost engine.Fetch.
		v, _ := fn.Fetch(h, in)
		return v + 1
	})
	fn.SetCycleRecovery(cycle.Panic, nil)

	_, err := Fetch(fn, qstack.NewHandle(), 10)
	require.Error(t, err)
	var detected *cycle.Detected
	assert.ErrorAs(t, err, &detected)
}

func TestFetchRepanicsUnrelatedPanics(t *testing.T) {
	clock := revision.NewClock()
	fn := ingredient.NewFunction[int, int](1, clock, 0, func(_ *qstack.Handle, _ int) int {
		panic("boom")
	})
	assert.Panics(t, func() {
		_, _ = Fetch(fn, qstack.NewHandle(), 1)
	})
}
