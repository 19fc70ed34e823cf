package ingredient

import (
	"testing"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/stretchr/testify/assert"
)

func TestAccumulatorPushUnderActiveFrame(t *testing.T) {
	clock := revision.NewClock()
	acc := NewAccumulator[string](9, clock)
	handle := qstack.NewHandle()
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}

	handle.Push(owner, 0)
	acc.Push(handle, "warn: slow path")
	handle.Pop()

	out := acc.Accumulated(nil, owner, func(depkey.DatabaseKeyIndex) (depkey.QueryOrigin, bool) {
		return depkey.QueryOrigin{}, false
	})
	assert.Equal(t, []string{"warn: slow path"}, out)
}

func TestAccumulatorPushOutsideFrameIsNoop(t *testing.T) {
	clock := revision.NewClock()
	acc := NewAccumulator[string](9, clock)
	acc.Push(nil, "ignored")
	acc.Push(qstack.NewHandle(), "also ignored")

	out := acc.Accumulated(nil, depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}, func(depkey.DatabaseKeyIndex) (depkey.QueryOrigin, bool) {
		return depkey.QueryOrigin{}, false
	})
	assert.Empty(t, out)
}

func TestAccumulatorAccumulatedWalksDependencies(t *testing.T) {
	clock := revision.NewClock()
	acc := NewAccumulator[string](9, clock)
	root := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}
	dep := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 2}

	handle := qstack.NewHandle()
	handle.Push(dep, 0)
	acc.Push(handle, "from dep")
	handle.Pop()
	handle.Push(root, 0)
	acc.Push(handle, "from root")
	handle.Pop()

	origins := map[depkey.DatabaseKeyIndex]depkey.QueryOrigin{
		root: depkey.NewDerived(depkey.QueryEdges{{Kind: depkey.Input, Key: dep}}),
	}
	out := acc.Accumulated(nil, root, func(k depkey.DatabaseKeyIndex) (depkey.QueryOrigin, bool) {
		o, ok := origins[k]
		return o, ok
	})
	assert.ElementsMatch(t, []string{"from root", "from dep"}, out)
}

func TestAccumulatorResetClearsOwnerContributions(t *testing.T) {
	clock := revision.NewClock()
	acc := NewAccumulator[string](9, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}

	handle := qstack.NewHandle()
	handle.Push(owner, 0)
	acc.Push(handle, "stale")
	handle.Pop()

	acc.Reset(owner)

	out := acc.Accumulated(nil, owner, func(depkey.DatabaseKeyIndex) (depkey.QueryOrigin, bool) {
		return depkey.QueryOrigin{}, false
	})
	assert.Empty(t, out)
}
