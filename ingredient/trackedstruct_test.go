package ingredient

import (
	"testing"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/revision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackedStructSpecifyAllocatesOnFirstUse(t *testing.T) {
	clock := revision.NewClock()
	ts := NewTrackedStruct(7, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 0}

	key := ts.Specify(owner, [16]byte{1}, 0, map[string]any{"name": "alice"}, revision.High)
	v, ok := ts.Field(key, "name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestTrackedStructSpecifySameIdentityReusesID(t *testing.T) {
	clock := revision.NewClock()
	ts := NewTrackedStruct(7, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 0}

	key1 := ts.Specify(owner, [16]byte{2}, 0, map[string]any{"x": 1}, revision.High)
	clock.Bump()
	key2 := ts.Specify(owner, [16]byte{2}, 0, map[string]any{"x": 1}, revision.High)
	assert.Equal(t, key1, key2)
}

func TestTrackedStructBackdatesUnchangedFields(t *testing.T) {
	clock := revision.NewClock()
	ts := NewTrackedStruct(7, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 0}

	key := ts.Specify(owner, [16]byte{3}, 0, map[string]any{"a": 1, "b": 1}, revision.High)
	firstChanged, err := ts.MaybeChangedAfter(key, 0)
	require.NoError(t, err)
	assert.True(t, firstChanged.Changed)

	clock.Bump()
	clock.Bump()
	ts.Specify(owner, [16]byte{3}, 0, map[string]any{"a": 1, "b": 2}, revision.High)

	// Only "b" changed; the struct's overall changed_at tracks the max
	// across fields, so it still reflects the revision "b" changed at.
	result, err := ts.MaybeChangedAfter(key, clock.Current())
	require.NoError(t, err)
	assert.False(t, result.Changed)
}

func TestTrackedStructStructDeletedFreesIdentity(t *testing.T) {
	clock := revision.NewClock()
	ts := NewTrackedStruct(7, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 1, Key: 0}

	key := ts.Specify(owner, [16]byte{4}, 0, map[string]any{"a": 1}, revision.Low)
	ts.StructDeleted(key)

	_, ok := ts.Field(key, "a")
	assert.False(t, ok)

	result, err := ts.MaybeChangedAfter(key, 0)
	require.NoError(t, err)
	assert.True(t, result.Changed)
}

func TestTrackedStructOriginIsAssigned(t *testing.T) {
	clock := revision.NewClock()
	ts := NewTrackedStruct(7, clock)
	owner := depkey.DatabaseKeyIndex{Ingredient: 2, Key: 5}

	key := ts.Specify(owner, [16]byte{5}, 0, map[string]any{"a": 1}, revision.Low)
	origin, ok := ts.Origin(key)
	require.True(t, ok)
	assert.Equal(t, depkey.Assigned, origin.Kind)
	assert.Equal(t, owner, origin.AssignedBy)
}
