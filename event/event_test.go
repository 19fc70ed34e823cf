package event

import (
	"testing"
	"time"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testKey() depkey.DatabaseKeyIndex {
	return depkey.DatabaseKeyIndex{Ingredient: 0, Key: id.NewID(1, 1)}
}

func TestMultiFansOutInOrder(t *testing.T) {
	var order []int
	m := Multi{
		SinkFunc(func(Event) { order = append(order, 1) }),
		SinkFunc(func(Event) { order = append(order, 2) }),
	}
	m.Emit(Event{Kind: WillExecute, Key: testKey()})
	assert.Equal(t, []int{1, 2}, order)
}

func TestNopDiscardsEverything(t *testing.T) {
	assert.NotPanics(t, func() { Nop.Emit(Event{Kind: WillExecute}) })
}

func TestThrottledDropsOverBudgetForLimitedKindsOnly(t *testing.T) {
	var delivered int
	inner := SinkFunc(func(Event) { delivered++ })
	th := NewThrottled(inner, rate.Limit(0), 1, WillExecute)

	th.Emit(Event{Kind: WillExecute, Key: testKey()}) // consumes the single burst token
	th.Emit(Event{Kind: WillExecute, Key: testKey()}) // rate is 0/sec, so this is dropped
	assert.Equal(t, 1, delivered)

	// Kinds not in the limited set always pass through.
	th.Emit(Event{Kind: WillIterateCycle, Key: testKey(), Iteration: 1})
	assert.Equal(t, 2, delivered)
}

func TestEventCarriesTimestamp(t *testing.T) {
	now := time.Now()
	e := Event{Kind: DidDiscard, Key: testKey(), At: now}
	require.Equal(t, now, e.At)
}
