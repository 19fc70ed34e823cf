package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPacking(t *testing.T) {
	i := NewID(42, 7)
	assert.Equal(t, uint32(42), i.Index())
	assert.Equal(t, uint32(7), i.Generation())
}

func TestTableAllocGetSet(t *testing.T) {
	tbl := NewTable[string]()
	a := tbl.Alloc("hello")
	v, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	require.True(t, tbl.Set(a, "world"))
	v, ok = tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, "world", v)
}

func TestTableFreeAndReuseBumpsGeneration(t *testing.T) {
	tbl := NewTable[int]()
	a := tbl.Alloc(1)
	require.True(t, tbl.Free(a))

	_, ok := tbl.Get(a)
	assert.False(t, ok, "stale id must not resolve after free")

	b := tbl.Alloc(2)
	assert.Equal(t, a.Index(), b.Index(), "freed slot should be reused")
	assert.Greater(t, b.Generation(), a.Generation())

	_, ok = tbl.Get(a)
	assert.False(t, ok, "old generation must not alias the new occupant")
}

func TestTableLenExcludesFreed(t *testing.T) {
	tbl := NewTable[int]()
	a := tbl.Alloc(1)
	tbl.Alloc(2)
	assert.Equal(t, 2, tbl.Len())

	tbl.Free(a)
	assert.Equal(t, 1, tbl.Len())
}

func TestDisambiguatorCountsRepeatedHashes(t *testing.T) {
	d := NewDisambiguator()
	h := Hash([]byte("same-id-fields"))

	assert.Equal(t, uint32(0), d.Disambiguate(h))
	assert.Equal(t, uint32(1), d.Disambiguate(h))
	assert.Equal(t, uint32(2), d.Disambiguate(h))

	other := Hash([]byte("different-id-fields"))
	assert.Equal(t, uint32(0), d.Disambiguate(other))
}

func TestHashIsStableAndDeterministic(t *testing.T) {
	a := Hash([]byte("x"))
	b := Hash([]byte("x"))
	assert.Equal(t, a, b)

	c := Hash([]byte("y"))
	assert.NotEqual(t, a, c)
}
