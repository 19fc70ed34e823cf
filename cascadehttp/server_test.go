package cascadehttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evalgo/cascade/depkey"
	"github.com/evalgo/cascade/event"
	"github.com/stretchr/testify/assert"
)

func TestServerStatsEndpointReturnsOK(t *testing.T) {
	tr := NewTracker(10)
	tr.Emit(event.Event{
		Kind: event.WillExecute,
		Key:  depkey.DatabaseKeyIndex{Ingredient: 1, Key: 1},
		At:   time.Unix(1, 0),
	})

	e := NewServer(tr, DefaultServerConfig())
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracked_keys")
}

func TestServerOperationsEndpointReturnsOK(t *testing.T) {
	tr := NewTracker(10)
	e := NewServer(tr, DefaultServerConfig())
	req := httptest.NewRequest(http.MethodGet, "/operations", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
