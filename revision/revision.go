// Package revision implements the engine's logical clock: a monotonically
// increasing revision counter and the per-durability "last changed" marks
// used to prune validation work without re-walking a query's dependencies.
package revision

import (
	"fmt"
	"sync/atomic"
)

// Revision is a monotonically increasing logical timestamp. The zero value
// is never observed by a caller; the clock starts at 1.
type Revision uint64

// String renders the revision as "R<n>" for log and error messages.
func (r Revision) String() string {
	return fmt.Sprintf("R%d", uint64(r))
}

// Durability is an ordinal hint about how often an input changes. Lower
// durability changes more often. The zero value is Low.
type Durability uint8

const (
	Low Durability = iota
	Medium
	High
	Immutable

	// Count is the number of durability levels; used to size last_changed arrays.
	Count = int(Immutable) + 1
)

func (d Durability) String() string {
	switch d {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Immutable:
		return "immutable"
	default:
		return fmt.Sprintf("durability(%d)", uint8(d))
	}
}

// Min returns the lower of two durabilities.
func Min(a, b Durability) Durability {
	if a < b {
		return a
	}
	return b
}

// Stamp is the (durability, changed_at) pair attached to every value that
// flows through the engine. Readers merge a dependency's stamp into their
// own by taking the min durability and the max changed_at.
type Stamp struct {
	Durability Durability
	ChangedAt  Revision
}

// Merge folds other into s, per spec.md §3: durability := min(durability,
// other), changed_at := max(changed_at, other).
func (s Stamp) Merge(other Stamp) Stamp {
	changedAt := s.ChangedAt
	if other.ChangedAt > changedAt {
		changedAt = other.ChangedAt
	}
	return Stamp{
		Durability: Min(s.Durability, other.Durability),
		ChangedAt:  changedAt,
	}
}

// Clock is the process-wide revision counter plus the per-durability
// last-changed marks. All fields are accessed atomically so readers never
// block on the clock; only the owner of the mutable handle calls Bump.
type Clock struct {
	current     atomic.Uint64
	lastChanged [Count]atomic.Uint64
}

// NewClock returns a clock initialized to revision 1, matching spec.md §3
// ("starting at 1").
func NewClock() *Clock {
	c := &Clock{}
	c.current.Store(1)
	for i := range c.lastChanged {
		c.lastChanged[i].Store(1)
	}
	return c
}

// Current returns the current revision.
func (c *Clock) Current() Revision {
	return Revision(c.current.Load())
}

// Bump increments the revision counter and returns the new value. Only the
// holder of the database's mutable handle may call this.
func (c *Clock) Bump() Revision {
	return Revision(c.current.Add(1))
}

// LastChanged returns the most recent revision at which an input of
// durability <= d changed.
func (c *Clock) LastChanged(d Durability) Revision {
	return Revision(c.lastChanged[d].Load())
}

// ReportWrite records that an input of durability d changed in the current
// revision. Per spec.md §4.1, this sets last_changed[d'] := current for
// every d' <= d, preserving the invariant that last_changed is
// non-increasing as d grows.
func (c *Clock) ReportWrite(d Durability) {
	now := c.current.Load()
	for level := 0; level <= int(d); level++ {
		c.lastChanged[level].Store(now)
	}
}
