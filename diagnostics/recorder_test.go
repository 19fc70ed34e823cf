package diagnostics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	r, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestEmitThenForEachRoundTripsInOrder(t *testing.T) {
	r := openTestRecorder(t)
	key := depkey.DatabaseKeyIndex{Ingredient: 2, Key: 9}

	r.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(100, 0)})
	r.Emit(event.Event{Kind: event.DidValidateMemoizedValue, Key: key, At: time.Unix(200, 0)})

	var kinds []event.Kind
	err := r.ForEach(func(_ uint64, e event.Event) error {
		kinds = append(kinds, e.Kind)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []event.Kind{event.WillExecute, event.DidValidateMemoizedValue}, kinds)
}

func TestForEachPreservesKeyFields(t *testing.T) {
	r := openTestRecorder(t)
	key := depkey.DatabaseKeyIndex{Ingredient: 5, Key: 42}
	r.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(1, 0)})

	var got depkey.DatabaseKeyIndex
	err := r.ForEach(func(_ uint64, e event.Event) error {
		got = e.Key
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestSummarizeCountsByKindAndSpan(t *testing.T) {
	r := openTestRecorder(t)
	key := depkey.DatabaseKeyIndex{Ingredient: 1}

	r.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(0, 0)})
	r.Emit(event.Event{Kind: event.WillExecute, Key: key, At: time.Unix(10, 0)})
	r.Emit(event.Event{Kind: event.DidDiscard, Key: key, At: time.Unix(20, 0)})

	stats, err := r.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByKind[event.WillExecute.String()])
	assert.Equal(t, 1, stats.ByKind[event.DidDiscard.String()])
	assert.Equal(t, time.Unix(0, 0), stats.FirstAt)
	assert.Equal(t, time.Unix(20, 0), stats.LastAt)
}

func TestSummarizeEmptyRecorderReportsZero(t *testing.T) {
	r := openTestRecorder(t)
	stats, err := r.Summarize()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, "no events recorded", stats.String())
}
