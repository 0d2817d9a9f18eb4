package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type classifies lifecycle events published on the bus.
type Type string

const (
	TypePipelineStarted   Type = "pipeline.started"
	TypePipelineCompleted Type = "pipeline.completed"
	TypePipelineFailed    Type = "pipeline.failed"
	TypeStepStarted       Type = "step.started"
	TypeStepCompleted     Type = "step.completed"
	TypeStepFailed        Type = "step.failed"
	TypeStepSkipped       Type = "step.skipped"
	TypeLoopIteration     Type = "loop.iteration"
	TypeDataPersisted     Type = "data.persisted"
	TypeDataPersistFailed Type = "data.persist_failed"
	TypeSystemError       Type = "system.error"
)

// Event is one immutable lifecycle notification. CorrelationID links all
// events emitted during one execution.
type Event struct {
	Type          Type           `json:"event_type"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Handler consumes events. Handlers run on a per-subscriber dispatcher
// goroutine; a panicking handler is isolated and logged.
type Handler func(Event)

// subscriberBuffer bounds the per-subscriber queue so a stalled handler
// cannot block publishers; overflow is dropped with a log line.
const subscriberBuffer = 256

type subscriber struct {
	id    int
	match func(Event) bool
	ch    chan Event
}

// Bus is an async publish/subscribe hub with bounded history. The
// subscriber registry and the history buffer are the only state touched
// by multiple goroutines and sit behind the mutex.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]*subscriber
	nextID     int
	history    []Event
	historyCap int
	closed     bool
	wg         sync.WaitGroup
	logger     zerolog.Logger
}

// NewBus creates a bus retaining at most historyCap events.
func NewBus(historyCap int, logger zerolog.Logger) *Bus {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Bus{
		subs:       make(map[int]*subscriber),
		historyCap: historyCap,
		logger:     logger.With().Str("service", "eventbus").Logger(),
	}
}

// NewCorrelationID returns an opaque token for linking events of one
// execution.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Subscribe registers a handler for a single event type and returns an
// unsubscribe func.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	return b.register(func(e Event) bool { return e.Type == t }, h)
}

// SubscribeMultiple registers one handler for several event types.
func (b *Bus) SubscribeMultiple(types []Type, h Handler) func() {
	set := make(map[Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return b.register(func(e Event) bool {
		_, ok := set[e.Type]
		return ok
	}, h)
}

// SubscribeFiltered registers a handler gated by an arbitrary predicate.
func (b *Bus) SubscribeFiltered(pred func(Event) bool, h Handler) func() {
	return b.register(pred, h)
}

func (b *Bus) register(match func(Event) bool, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	sub := &subscriber{
		id:    id,
		match: match,
		ch:    make(chan Event, subscriberBuffer),
	}
	b.subs[id] = sub

	b.wg.Add(1)
	go b.dispatch(sub, h)

	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// dispatch drains one subscriber channel in publish order.
func (b *Bus) dispatch(sub *subscriber, h Handler) {
	defer b.wg.Done()
	for e := range sub.ch {
		b.invoke(h, e)
	}
}

// invoke isolates handler panics so one failing callback cannot affect
// other subscribers or the publisher.
func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event_type", string(e.Type)).
				Msg("event handler panicked")
		}
	}()
	h(e)
}

// Publish appends the event to history and queues it for every matching
// subscriber. It returns the number of subscribers the event was queued
// to. Delivery to one subscriber is FIFO in publish order.
func (b *Bus) Publish(e Event) int {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	// The lock is held across the fan-out so a concurrent unsubscribe
	// cannot close a channel mid-send. Sends are non-blocking.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	b.history = append(b.history, e)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}

	notified := 0
	for _, sub := range b.subs {
		if !sub.match(e) {
			continue
		}
		select {
		case sub.ch <- e:
			notified++
		default:
			b.logger.Warn().
				Int("subscriber_id", sub.id).
				Str("event_type", string(e.Type)).
				Msg("subscriber queue full; event dropped")
		}
	}
	return notified
}

// History returns up to limit most recent events, oldest first. A
// non-positive limit returns the full retained history.
func (b *Bus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops all dispatchers and waits for in-flight handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
