package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(100, zerolog.Nop())
	t.Cleanup(b.Close)
	return b
}

func collect(t *testing.T, b *Bus, types ...Type) (<-chan Event, func()) {
	t.Helper()
	ch := make(chan Event, 64)
	h := func(e Event) { ch <- e }
	if len(types) == 0 {
		return ch, b.SubscribeFiltered(func(Event) bool { return true }, h)
	}
	return ch, b.SubscribeMultiple(types, h)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_SubscribeAndPublish(t *testing.T) {
	b := newTestBus(t)
	ch, _ := collect(t, b, TypeStepCompleted)

	n := b.Publish(Event{Type: TypeStepCompleted, Source: "test", CorrelationID: "c1"})
	assert.Equal(t, 1, n)

	e := recv(t, ch)
	assert.Equal(t, TypeStepCompleted, e.Type)
	assert.Equal(t, "c1", e.CorrelationID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestBus_TypeFiltering(t *testing.T) {
	b := newTestBus(t)
	ch, _ := collect(t, b, TypeStepFailed)

	assert.Equal(t, 0, b.Publish(Event{Type: TypeStepCompleted}))
	assert.Equal(t, 1, b.Publish(Event{Type: TypeStepFailed}))

	e := recv(t, ch)
	assert.Equal(t, TypeStepFailed, e.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_FIFOPerSubscriber(t *testing.T) {
	b := newTestBus(t)
	ch, _ := collect(t, b)

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TypeLoopIteration, Payload: map[string]any{"i": i}})
	}
	for i := 0; i < 10; i++ {
		e := recv(t, ch)
		assert.Equal(t, i, e.Payload["i"])
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)
	ch, unsub := collect(t, b, TypeStepStarted)

	b.Publish(Event{Type: TypeStepStarted})
	recv(t, ch)

	unsub()
	assert.Equal(t, 0, b.SubscriberCount())
	assert.Equal(t, 0, b.Publish(Event{Type: TypeStepStarted}))
}

func TestBus_HandlerPanicIsolated(t *testing.T) {
	b := newTestBus(t)
	b.Subscribe(TypeSystemError, func(Event) { panic("boom") })
	ch, _ := collect(t, b, TypeSystemError)

	b.Publish(Event{Type: TypeSystemError})
	b.Publish(Event{Type: TypeSystemError})
	recv(t, ch)
	recv(t, ch)
}

func TestBus_History(t *testing.T) {
	b := NewBus(3, zerolog.Nop())
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeLoopIteration, Payload: map[string]any{"i": i}})
	}

	all := b.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Payload["i"])
	assert.Equal(t, 4, all[2].Payload["i"])

	last := b.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, 4, last[0].Payload["i"])
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := newTestBus(t)
	var mu sync.Mutex
	seen := 0
	done := make(chan struct{})
	b.SubscribeFiltered(func(Event) bool { return true }, func(Event) {
		mu.Lock()
		seen++
		if seen == 100 {
			close(done)
		}
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(Event{Type: TypeStepCompleted})
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all events delivered")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := NewBus(10, zerolog.Nop())
	b.Close()
	assert.Equal(t, 0, b.Publish(Event{Type: TypeStepCompleted}))
	assert.Empty(t, b.History(0))

	unsub := b.Subscribe(TypeStepCompleted, func(Event) {})
	unsub()
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
