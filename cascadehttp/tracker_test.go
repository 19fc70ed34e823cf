package cascadehttp

import (
	"testing"
	"time"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitRecordsFirstAndLastSeen(t *testing.T) {
	tr := NewTracker(10)
	key := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}

	tr.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(1, 0)})
	tr.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: key, At: time.Unix(2, 0)})

	a, ok := tr.Get(key)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1, 0), a.FirstSeen)
	assert.Equal(t, time.Unix(2, 0), a.LastSeen)
	assert.Equal(t, event.DidValidateMemoizedValue.String(), a.LastKind)
	assert.Equal(t, 1, a.Counts[event.WillExecute.String()])
	assert.Equal(t, 1, a.Counts[event.DidValidateMemoizedValue.String()])
}

func TestEmitEvictsOldestWhenAtCapacity(t *testing.T) {
	tr := NewTracker(2)
	k1 := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}
	k2 := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 2}
	k3 := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 3}

	tr.Emit(event.Event{Kind: event.WillExecute, Key: k1, At: time.Unix(1, 0)})
	tr.Emit(event.Event{Kind: event.WillExecute, Key: k2, At: time.Unix(2, 0)})
	tr.Emit(event.Event{Kind: event.WillExecute, Key: k3, At: time.Unix(3, 0)})

	_, ok := tr.Get(k1)
	assert.False(t, ok, "oldest key should have been evicted")
	_, ok = tr.Get(k2)
	assert.True(t, ok)
	_, ok = tr.Get(k3)
	assert.True(t, ok)
}

func TestStatsAggregatesAcrossKeys(t *testing.T) {
	tr := NewTracker(10)
	k1 := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}
	k2 := depkey.DatabaseKeyIndex{Ingredient: 2, Key: 2}

	tr.Emit(event.Event{Kind: event.WillExecute, Key: k1, At: time.Unix(1, 0)})
	tr.Emit(event.Event{Kind: event.WillExecute, Key: k2, At: time.Unix(2, 0)})
	tr.Emit(event.Event{Kind: event.DidDiscard, Key: k1, At: time.Unix(3, 0)})

	stats := tr.Stats()
	assert.Equal(t, 2, stats.TrackedKeys)
	assert.Equal(t, 2, stats.ByKind[event.WillExecute.String()])
	assert.Equal(t, 1, stats.ByKind[event.DidDiscard.String()])
}

func TestListReturnsIndependentCopies(t *testing.T) {
	tr := NewTracker(10)
	key := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1}
	tr.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(1, 0)})

	list := tr.List()
	require.Len(t, list, 1)
	list[0].Counts["tampered"] = 99

	a, ok := tr.Get(key)
	require.True(t, ok)
	_, tampered := a.Counts["tampered"]
	assert.False(t, tampered)
}
