package memstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/agent-forge/agent-forge/internal/domain/execution"
)

// watcherBuffer bounds a watcher channel. On overflow the oldest queued
// snapshot is evicted, so a slow reader loses intermediate states but the
// newest snapshot, terminal ones included, is always delivered.
const watcherBuffer = 16

type watcher struct {
	id int
	ch chan *execution.Record
}

// Store is the keyed in-memory execution store. Records handed out are
// deep copies; the live record is owned by the engine task driving the
// execution. Watchers receive a snapshot on every save.
type Store struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]*execution.Record
	watchers map[uuid.UUID][]*watcher
	nextID   int
}

func NewStore() *Store {
	return &Store{
		records:  make(map[uuid.UUID]*execution.Record),
		watchers: make(map[uuid.UUID][]*watcher),
	}
}

// Save stores a snapshot of the record and notifies watchers of that
// execution with their own copies.
func (s *Store) Save(rec *execution.Record) {
	snapshot := rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[snapshot.ExecutionID] = snapshot
	for _, w := range s.watchers[snapshot.ExecutionID] {
		send(w, snapshot.Clone())
	}
}

// Get returns a snapshot of the record or execution.ErrNotFound.
func (s *Store) Get(id uuid.UUID) (*execution.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, execution.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns snapshots of all records.
func (s *Store) List() []*execution.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*execution.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out
}

// Watch subscribes to future snapshots of one execution. The returned
// cancel func must be called to release the watcher. Fails with
// execution.ErrNotFound for unknown ids.
func (s *Store) Watch(id uuid.UUID) (<-chan *execution.Record, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return nil, nil, execution.ErrNotFound
	}
	w := &watcher{
		id: s.nextID,
		ch: make(chan *execution.Record, watcherBuffer),
	}
	s.nextID++
	s.watchers[id] = append(s.watchers[id], w)

	cancel := func() { s.unwatch(id, w.id) }
	return w.ch, cancel, nil
}

func (s *Store) unwatch(id uuid.UUID, watcherID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.watchers[id]
	for i, w := range ws {
		if w.id == watcherID {
			close(w.ch)
			s.watchers[id] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

// send never blocks and never drops the snapshot being delivered: when
// the buffer is full the oldest queued entry is evicted to make room.
// Only Save calls this, under the store lock, so there is a single
// writer per channel.
func send(w *watcher, rec *execution.Record) {
	for {
		select {
		case w.ch <- rec:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}
