package memo

import (
	"testing"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	s := NewStore(0)
	k := id.NewID(1, 1)
	m := &Memo{Value: 42, Revisions: depkey.QueryRevisions{Origin: depkey.NewBaseInput()}}
	s.Set(k, m)

	got, ok := s.Get(k)
	require.True(t, ok)
	assert.Equal(t, 42, got.Value)
}

func TestSetPushesOldMemoToDeletedQueue(t *testing.T) {
	s := NewStore(0)
	k := id.NewID(1, 1)
	first := &Memo{Value: "v1"}
	second := &Memo{Value: "v2"}

	s.Set(k, first)
	s.Set(k, second)

	drained := s.DrainDeleted()
	require.Len(t, drained, 1)
	assert.Equal(t, "v1", drained[0].Value)

	got, _ := s.Get(k)
	assert.Equal(t, "v2", got.Value)
}

func TestDeleteRemovesEntry(t *testing.T) {
	s := NewStore(0)
	k := id.NewID(1, 1)
	s.Set(k, &Memo{Value: "v"})
	s.Delete(k)

	_, ok := s.Get(k)
	assert.False(t, ok)
}

func TestLRUEvictsValueButKeepsMetadataForDerivedOrigin(t *testing.T) {
	s := NewStore(1)
	a := id.NewID(1, 1)
	b := id.NewID(2, 1)

	s.Set(a, &Memo{Value: "a", Revisions: depkey.QueryRevisions{Origin: depkey.NewDerived(nil)}})
	s.Set(b, &Memo{Value: "b", Revisions: depkey.QueryRevisions{Origin: depkey.NewDerived(nil)}})

	got, ok := s.Get(a)
	require.True(t, ok, "metadata must survive eviction")
	assert.Nil(t, got.Value, "value must be nulled on eviction")

	got, ok = s.Get(b)
	require.True(t, ok)
	assert.Equal(t, "b", got.Value)
}

func TestLRUNeverEvictsProtectedOrigins(t *testing.T) {
	s := NewStore(1)
	a := id.NewID(1, 1)
	b := id.NewID(2, 1)

	s.Set(a, &Memo{Value: "a", Revisions: depkey.QueryRevisions{Origin: depkey.NewBaseInput()}})
	s.Set(b, &Memo{Value: "b", Revisions: depkey.QueryRevisions{Origin: depkey.NewDerived(nil)}})

	got, _ := s.Get(a)
	assert.Equal(t, "a", got.Value, "BaseInput memos must never be evicted")
}

func TestIsProvisional(t *testing.T) {
	m := &Memo{Revisions: depkey.QueryRevisions{
		CycleHeads: []depkey.CycleHead{{Key: depkey.DatabaseKeyIndex{}}},
	}}
	assert.True(t, m.IsProvisional())

	m.Revisions.VerifiedFinal = true
	assert.False(t, m.IsProvisional())
}
