// Package cascadehttp exposes an optional, read-only debug surface over a
// running engine: a bounded, in-memory view of recent fetch activity
// (adapted from statemanager/manager.go's bounded operations map,
// generalized from string operation ids to engine query keys) served over
// a small echo/v4 HTTP server (adapted from http/server.go's standard
// middleware stack). It observes the engine through event.Sink the same
// way metrics and diagnostics do; it never reads or writes the cache
// itself.
package cascadehttp

import (
	"sync"
	"time"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
)

// Activity is the last-observed state of one query key, generalized from
// statemanager.OperationState: rather than a single running/completed
// lifecycle (the event stream has no matching "finished executing" hook —
// see event.Kind), it tracks the most recent event kind and a running
// count of every kind seen for that key.
type Activity struct {
	Key       depkey.DatabaseKeyIndex `json:"key"`
	LastKind  string                  `json:"last_kind"`
	FirstSeen time.Time               `json:"first_seen"`
	LastSeen  time.Time               `json:"last_seen"`
	Counts    map[string]int          `json:"counts"`
}

// Tracker is a bounded event.Sink recording recent per-key activity for
// cascadehttp's debug endpoints. Capacity mirrors
// statemanager.Config.MaxOperations: once full, the oldest-seen key is
// evicted to make room for a newly observed one.
type Tracker struct {
	mu       sync.RWMutex
	activity map[depkey.DatabaseKeyIndex]*Activity
	capacity int
}

// NewTracker returns a Tracker holding at most capacity distinct keys
// (capacity <= 0 defaults to 1000, statemanager's own default).
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Tracker{
		activity: make(map[depkey.DatabaseKeyIndex]*Activity),
		capacity: capacity,
	}
}

// Emit implements event.Sink.
func (t *Tracker) Emit(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.activity[e.Key]
	if !ok {
		if len(t.activity) >= t.capacity {
			t.evictOldestLocked()
		}
		a = &Activity{Key: e.Key, FirstSeen: e.At, Counts: make(map[string]int)}
		t.activity[e.Key] = a
	}
	a.LastKind = e.Kind.String()
	a.LastSeen = e.At
	a.Counts[e.Kind.String()]++
}

var _ event.Sink = (*Tracker)(nil)

func (t *Tracker) evictOldestLocked() {
	var oldestKey depkey.DatabaseKeyIndex
	var oldestTime time.Time
	first := true
	for k, a := range t.activity {
		if first || a.FirstSeen.Before(oldestTime) {
			oldestKey = k
			oldestTime = a.FirstSeen
			first = false
		}
	}
	if !first {
		delete(t.activity, oldestKey)
	}
}

// Get returns a copy of the tracked activity for key, if any.
func (t *Tracker) Get(key depkey.DatabaseKeyIndex) (Activity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.activity[key]
	if !ok {
		return Activity{}, false
	}
	return cloneActivity(a), true
}

// List returns a copy of every tracked key's activity.
func (t *Tracker) List() []Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Activity, 0, len(t.activity))
	for _, a := range t.activity {
		out = append(out, cloneActivity(a))
	}
	return out
}

// Stats summarizes the tracker's current contents for the /stats endpoint.
type Stats struct {
	TrackedKeys int            `json:"tracked_keys"`
	ByKind      map[string]int `json:"by_kind"`
}

// Stats aggregates counts across every tracked key.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := Stats{TrackedKeys: len(t.activity), ByKind: make(map[string]int)}
	for _, a := range t.activity {
		for kind, n := range a.Counts {
			stats.ByKind[kind] += n
		}
	}
	return stats
}

func cloneActivity(a *Activity) Activity {
	counts := make(map[string]int, len(a.Counts))
	for k, v := range a.Counts {
		counts[k] = v
	}
	return Activity{
		Key:       a.Key,
		LastKind:  a.LastKind,
		FirstSeen: a.FirstSeen,
		LastSeen:  a.LastSeen,
		Counts:    counts,
	}
}
