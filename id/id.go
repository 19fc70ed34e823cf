// Package id implements the engine's identity and slab-allocation layer:
// stable interned identifiers (ID) and the generation-checked Table that
// hands them out, per spec.md §4.2.
package id

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ID packs a 32-bit slot index and a 32-bit generation into a single
// uint64. The generation lets a slot be reused after deletion without an
// ABA hazard: a stale ID referencing a freed-then-reused slot is detected
// by comparing generations, not just indices.
type ID uint64

// NewID packs an index and generation into an ID.
func NewID(index, generation uint32) ID {
	return ID(uint64(generation)<<32 | uint64(index))
}

// Index returns the slot index encoded in the ID.
func (i ID) Index() uint32 {
	return uint32(i)
}

// Generation returns the generation encoded in the ID.
func (i ID) Generation() uint32 {
	return uint32(i >> 32)
}

func (i ID) String() string {
	return fmt.Sprintf("Id(%d:%d)", i.Index(), i.Generation())
}

// slot is one entry in a Table: a value plus the generation currently
// occupying it. slot.free == true marks a reusable entry on the free list;
// a freed slot keeps its last generation.
type slot[T any] struct {
	value      T
	generation uint32
	free       bool
}

// Table is a generic slab allocator: per-ingredient storage for a value
// type T, indexed by ID, with free-list reuse and generation checks.
// Readers and writers share the table behind a single RWMutex — the table
// itself is not on the engine's hot read path (memo.Store is), so a plain
// mutex keeps this simple rather than sharding it.
type Table[T any] struct {
	mu       sync.RWMutex
	slots    []slot[T]
	freeList []uint32
}

// NewTable returns an empty slab.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Alloc inserts value into a free slot (or appends a new one) and returns
// its ID. The returned generation is one greater than whatever generation
// previously occupied this index, so old IDs referencing a freed slot
// never alias the new occupant.
func (t *Table[T]) Alloc(value T) ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		index := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		gen := t.slots[index].generation + 1
		t.slots[index] = slot[T]{value: value, generation: gen}
		return NewID(index, gen)
	}

	index := uint32(len(t.slots))
	t.slots = append(t.slots, slot[T]{value: value, generation: 1})
	return NewID(index, 1)
}

// Get looks up the value stored at id. It returns false if the slot has
// been freed or the generation no longer matches (a stale ID).
func (t *Table[T]) Get(id ID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	idx := id.Index()
	if int(idx) >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[idx]
	if s.free || s.generation != id.Generation() {
		return zero, false
	}
	return s.value, true
}

// Set overwrites the value stored at id, preserving its generation. It is
// the caller's responsibility to have validated id via Get first; Set
// returns false (and does nothing) for a stale or freed id.
func (t *Table[T]) Set(id ID, value T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := id.Index()
	if int(idx) >= len(t.slots) {
		return false
	}
	s := &t.slots[idx]
	if s.free || s.generation != id.Generation() {
		return false
	}
	s.value = value
	return true
}

// Free logically deletes the slot at id, putting its index on the free
// list for the next Alloc. A future Alloc reusing this index bumps the
// generation, invalidating id and any copies of it.
func (t *Table[T]) Free(id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := id.Index()
	if int(idx) >= len(t.slots) {
		return false
	}
	s := &t.slots[idx]
	if s.free || s.generation != id.Generation() {
		return false
	}
	var zero T
	s.value = zero
	s.free = true
	t.freeList = append(t.freeList, idx)
	return true
}

// Len returns the number of live (non-free) slots.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots) - len(t.freeList)
}

// Disambiguator assigns stable, collision-resistant counters to tracked
// structs that share the same `#[id]` field hash within one query
// invocation, per spec.md §4.3. Two tracked structs created by the same
// query with identical id-field content must still get distinct
// identities; the disambiguator counts how many times a given hash has
// been seen so far in the current frame.
type Disambiguator struct {
	mu     sync.Mutex
	counts map[[16]byte]uint32
}

// NewDisambiguator returns an empty disambiguator, scoped to one
// active-query frame (see qstack.Frame).
func NewDisambiguator() *Disambiguator {
	return &Disambiguator{counts: make(map[[16]byte]uint32)}
}

// Hash computes the BLAKE2b-128 digest of the given id-field bytes. Using
// a real cryptographic hash (rather than hash/maphash, which is seeded
// per-process) keeps disambiguator fixtures stable across test runs and
// processes.
func Hash(idFields []byte) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// blake2b.New only errors on bad key/size args, neither of which we pass.
		panic(fmt.Sprintf("id: blake2b.New(16, nil) failed: %v", err))
	}
	h.Write(idFields)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Disambiguate returns the next counter value for the given hash, starting
// at 0 for the first occurrence.
func (d *Disambiguator) Disambiguate(hash [16]byte) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.counts[hash]
	d.counts[hash] = n + 1
	return n
}
