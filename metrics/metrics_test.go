package metrics

import (
	"testing"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, label string) float64 {
	t.Helper()
	return testutil.ToFloat64(cv.WithLabelValues(label))
}

func TestNewUsesPrivateRegistryNotGlobalDefault(t *testing.T) {
	a := New("one")
	b := New("two")
	assert.NotSame(t, a.Registry, b.Registry)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEmitDispatchesByKind(t *testing.T) {
	m := New("cascade_test")
	key := depkey.DatabaseKeyIndex{Ingredient: 3}

	m.Emit(event.Event{Kind: event.WillExecute, Key: key})
	m.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: key})
	m.Emit(event.Event{Kind: event.WillIterateCycle, Key: key})
	m.Emit(event.Event{Kind: event.WillDiscardStaleOutput, Key: key})
	m.Emit(event.Event{Kind: event.DidDiscard, Key: key})
	m.Emit(event.Event{Kind: event.WillCheckCancellation, Key: key})

	label := "3"
	assert.Equal(t, float64(1), counterValue(t, m.Executions, label))
	assert.Equal(t, float64(1), counterValue(t, m.Validations, label))
	assert.Equal(t, float64(1), counterValue(t, m.CycleIterations, label))
	assert.Equal(t, float64(1), counterValue(t, m.StaleOutputs, label))
	assert.Equal(t, float64(1), counterValue(t, m.Discards, label))
	assert.Equal(t, float64(1), counterValue(t, m.CancellationChecks, label))
}

func TestEmitAccumulatesAcrossCalls(t *testing.T) {
	m := New("cascade_test2")
	key := depkey.DatabaseKeyIndex{Ingredient: 7}

	for i := 0; i < 3; i++ {
		m.Emit(event.Event{Kind: event.WillExecute, Key: key})
	}
	assert.Equal(t, float64(3), counterValue(t, m.Executions, "7"))
}

func TestEmitIgnoresUnknownKind(t *testing.T) {
	m := New("cascade_test3")
	key := depkey.DatabaseKeyIndex{Ingredient: 1}
	assert.NotPanics(t, func() {
		m.Emit(event.Event{Kind: event.Kind(255), Key: key})
	})
}
