// Package memo implements the per-ingredient memo store of spec.md §4.5: a
// concurrent key -> *Memo table with atomic-pointer-swap semantics, a
// deleted-entries queue that defers physical freeing to the next revision
// boundary, and an optional bounded LRU that evicts by nulling out a
// memo's value while preserving its dependency metadata.
package memo

import (
	"strconv"
	"sync"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/id"
	"github.com/evalgo/cascade/revision"
	cmap "github.com/orcaman/concurrent-map/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Memo is a cached value plus the metadata needed to validate it
// (spec.md §3). Value is nil both for a never-computed entry and for one
// evicted by the LRU ("value=None" encodes 'must re-execute' uniformly,
// the resolved Open Question in DESIGN.md).
type Memo struct {
	Value      any
	VerifiedAt revision.Revision
	Revisions  depkey.QueryRevisions
}

// IsProvisional reports whether this memo may only be consumed by code
// within the cycle that produced it (spec.md §3).
func (m *Memo) IsProvisional() bool {
	return m != nil && m.Revisions.IsProvisional()
}

func keyString(k id.ID) string {
	return strconv.FormatUint(uint64(k), 36)
}

// evictable reports whether a memo's origin permits the LRU to null out
// its value. BaseInput, Assigned, and DerivedUntracked memos can't be
// reconstructed by re-running a (cheap, tracked) function, so they are
// excluded, matching spec.md §4.5. Provisional memos (fixpoint seeds,
// whose origin is Derived) are excluded too, by evictValue: nulling
// mid-cycle state would corrupt the iteration.
func evictable(origin depkey.QueryOrigin) bool {
	return origin.Kind == depkey.Derived
}

// Store is one ingredient's memo table.
type Store struct {
	memos   cmap.ConcurrentMap[string, *Memo]
	recency *lru.Cache[string, struct{}]

	deletedMu sync.Mutex
	deleted   []*Memo
}

// NewStore returns an empty store. capacity <= 0 disables LRU eviction
// entirely (every memo stays resident until explicitly deleted).
func NewStore(capacity int) *Store {
	s := &Store{memos: cmap.New[*Memo]()}
	if capacity > 0 {
		cache, err := lru.NewWithEvict[string, struct{}](capacity, func(key string, _ struct{}) {
			s.evictValue(key)
		})
		if err != nil {
			// Only invalid (<=0) sizes error, already guarded above.
			panic("memo: failed to construct LRU cache: " + err.Error())
		}
		s.recency = cache
	}
	return s
}

func (s *Store) evictValue(key string) {
	if m, ok := s.memos.Get(key); ok && evictable(m.Revisions.Origin) && !m.IsProvisional() {
		m.Value = nil
	}
}

// Get loads the memo for key. Callers load without taking any lock beyond
// the concurrent map's internal sharding, matching spec.md §4.5's "readers
// load without locking."
func (s *Store) Get(key id.ID) (*Memo, bool) {
	return s.memos.Get(keyString(key))
}

// Set installs memo as the current value for key, pushing whatever memo
// previously occupied the slot onto the deleted-entries queue (spec.md
// §4.5) so references handed out this revision stay valid. If LRU
// eviction is enabled and memo's origin is evictable, this also touches
// the recency tracker, which may evict a different (older) key via the
// store's OnEvict callback.
func (s *Store) Set(key id.ID, memo *Memo) {
	ks := keyString(key)
	if old, ok := s.memos.Get(ks); ok {
		s.pushDeleted(old)
	}
	s.memos.Set(ks, memo)
	if s.recency != nil && evictable(memo.Revisions.Origin) {
		s.recency.Add(ks, struct{}{})
	}
}

// Delete removes key's memo outright (used for stale tracked-struct output
// pruning and full struct deletion, spec.md §6's remove_stale_output /
// salsa_struct_deleted). The removed memo is pushed onto the
// deleted-entries queue rather than freed immediately.
func (s *Store) Delete(key id.ID) {
	ks := keyString(key)
	if old, ok := s.memos.Get(ks); ok {
		s.pushDeleted(old)
		s.memos.Remove(ks)
		if s.recency != nil {
			s.recency.Remove(ks)
		}
	}
}

func (s *Store) pushDeleted(m *Memo) {
	s.deletedMu.Lock()
	s.deleted = append(s.deleted, m)
	s.deletedMu.Unlock()
}

// DrainDeleted returns and clears the deleted-entries queue. Only safe to
// call with exclusive (&mut) access to the database, i.e. at a revision
// boundary (spec.md §4.5, §9 "Reference lifetime across revisions").
func (s *Store) DrainDeleted() []*Memo {
	s.deletedMu.Lock()
	defer s.deletedMu.Unlock()
	drained := s.deleted
	s.deleted = nil
	return drained
}

// Len returns the number of live entries (including evicted-value ones).
func (s *Store) Len() int {
	return s.memos.Count()
}
