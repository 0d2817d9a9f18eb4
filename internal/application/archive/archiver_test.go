package archive

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-forge/agent-forge/internal/domain/execution"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
)

func testBus(t *testing.T) (*eventbus.Bus, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.NewBus(10, zerolog.Nop())
	t.Cleanup(bus.Close)
	ch := make(chan eventbus.Event, 10)
	bus.SubscribeMultiple(
		[]eventbus.Type{eventbus.TypeDataPersisted, eventbus.TypeDataPersistFailed},
		func(e eventbus.Event) { ch <- e },
	)
	return bus, ch
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no archive event")
		return eventbus.Event{}
	}
}

func terminalRecord() *execution.Record {
	rec := execution.NewRecord("default", "corr-7", json.RawMessage(`{"request":"x"}`), []string{"coder"}, nil)
	rec.Step("coder").Status = execution.StepCompleted
	rec.Results["coder"] = json.RawMessage(`{"code":"print(1)"}`)
	rec.Complete(execution.StatusCompleted, "")
	return rec
}

func TestArchiver_Success(t *testing.T) {
	var got execution.Record
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus, events := testBus(t)
	a := NewArchiver(srv.URL, bus, zerolog.Nop())
	rec := terminalRecord()

	a.Archive(t.Context(), rec)

	e := waitEvent(t, events)
	assert.Equal(t, eventbus.TypeDataPersisted, e.Type)
	assert.Equal(t, "corr-7", e.CorrelationID)
	assert.Equal(t, "/api/v1/projects/save-generated", path.Load())
	assert.Equal(t, rec.ExecutionID, got.ExecutionID)
	assert.Equal(t, execution.StatusCompleted, got.Status)
}

func TestArchiver_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus, events := testBus(t)
	a := NewArchiver(srv.URL, bus, zerolog.Nop())
	a.backoff = 0

	a.Archive(t.Context(), terminalRecord())

	e := waitEvent(t, events)
	assert.Equal(t, eventbus.TypeDataPersisted, e.Type)
	assert.Equal(t, 3, e.Payload["attempts"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestArchiver_ExhaustedRetriesPublishesFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	bus, events := testBus(t)
	a := NewArchiver(srv.URL, bus, zerolog.Nop())
	a.backoff = 0

	a.Archive(t.Context(), terminalRecord())

	e := waitEvent(t, events)
	assert.Equal(t, eventbus.TypeDataPersistFailed, e.Type)
	assert.Contains(t, e.Payload["error"], "500")
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&calls))
}

func TestArchiver_DisabledWithoutBackend(t *testing.T) {
	bus, events := testBus(t)
	a := NewArchiver("", bus, zerolog.Nop())
	assert.False(t, a.Enabled())

	a.Archive(t.Context(), terminalRecord())
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
