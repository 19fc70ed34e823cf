// Package diagnostics implements an optional, offline event recorder: an
// event.Sink that appends the engine's fetch/validate/cycle event stream to
// an on-disk bbolt file for post-mortem inspection, plus humanized summary
// statistics over what was recorded. It is never consulted by the live
// engine — only by tests and the cmd/cascadectl "replay" command — since
// persisting the cache itself is an explicit non-goal (adapted from
// db/bolt/bolt.go's bucket/JSON helper shape, repurposed from caching
// state to logging an event timeline).
package diagnostics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/evalgo/cascade/id"
	bolt "go.etcd.io/bbolt"
)

const eventsBucket = "events"

// Recorder is an event.Sink that appends every event it receives to a
// bbolt file, keyed by a monotonically increasing sequence number so
// ForEach replays in the order events were raised.
type Recorder struct {
	db  *bolt.DB
	seq uint64
}

// record is the on-disk shape of one logged event.
type record struct {
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Ingredient uint16   `json:"ingredient"`
	Key       uint64    `json:"key"`
	Iteration uint32    `json:"iteration"`
	At        time.Time `json:"at"`
}

// Open creates or opens a bbolt-backed recorder at path.
func Open(path string) (*Recorder, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(eventsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: create bucket: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (r *Recorder) Close() error { return r.db.Close() }

// Emit implements event.Sink. It must never be wired as the only sink on a
// hot path without care — every call is a synchronous bbolt write
// transaction; pair it with event.Multi and, for high-frequency kinds,
// event.Throttled if used outside of tests/replay tooling.
func (r *Recorder) Emit(e event.Event) {
	r.seq++
	rec := record{
		Seq:        r.seq,
		Kind:       e.Kind.String(),
		Ingredient: uint16(e.Key.Ingredient),
		Key:        uint64(e.Key.Key),
		Iteration:  e.Iteration,
		At:         e.At,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(eventsBucket))
		return b.Put(seqKey(rec.Seq), data)
	})
}

var _ event.Sink = (*Recorder)(nil)

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// ForEach replays every recorded event, in the order it was emitted,
// calling fn with the decoded event and its original sequence number.
func (r *Recorder) ForEach(fn func(seq uint64, e event.Event) error) error {
	return r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(eventsBucket))
		return b.ForEach(func(_, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("diagnostics: decode record: %w", err)
			}
			return fn(rec.Seq, rec.toEvent())
		})
	})
}

func (rec record) toEvent() event.Event {
	return event.Event{
		Kind: kindFromString(rec.Kind),
		Key: depkey.DatabaseKeyIndex{
			Ingredient: depkey.IngredientIndex(rec.Ingredient),
			Key:        id.ID(rec.Key),
		},
		Iteration: rec.Iteration,
		At:        rec.At,
	}
}

func kindFromString(s string) event.Kind {
	for k := event.Kind(0); k <= event.DidDiscard; k++ {
		if k.String() == s {
			return k
		}
	}
	return event.Kind(255)
}

// Stats summarizes a recorded event stream for the CLI's "replay" command.
type Stats struct {
	Total       int
	ByKind      map[string]int
	FirstAt     time.Time
	LastAt      time.Time
}

// Summarize scans every recorded event and returns counts per kind plus
// the timeline's span.
func (r *Recorder) Summarize() (Stats, error) {
	stats := Stats{ByKind: make(map[string]int)}
	err := r.ForEach(func(_ uint64, e event.Event) error {
		stats.Total++
		stats.ByKind[e.Kind.String()]++
		if stats.FirstAt.IsZero() || e.At.Before(stats.FirstAt) {
			stats.FirstAt = e.At
		}
		if e.At.After(stats.LastAt) {
			stats.LastAt = e.At
		}
		return nil
	})
	return stats, err
}

// String renders Stats using humanize for a friendly CLI summary, e.g.
// "1,204 events spanning 3 minutes (oldest 5 minutes ago)".
func (s Stats) String() string {
	if s.Total == 0 {
		return "no events recorded"
	}
	return fmt.Sprintf("%s events spanning %s (oldest %s)",
		humanize.Comma(int64(s.Total)),
		humanize.RelTime(s.FirstAt, s.LastAt, "", ""),
		humanize.Time(s.FirstAt),
	)
}
