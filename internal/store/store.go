// Package store holds the latest accepted telemetry frame.
package store

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ecoguard/internal/telemetry"
)

// Listener receives the new snapshot after every Set.
type Listener func(telemetry.Frame)

type snapshot struct {
	frame   telemetry.Frame
	version uint64
}

// Store is the single source of truth for rendering. Set must only be called
// from one goroutine (the pipeline loop); Get and Version are safe from any
// goroutine.
type Store struct {
	current atomic.Pointer[snapshot]

	mu        sync.Mutex
	nextID    uint64
	listeners []subscription
}

type subscription struct {
	id uint64
	fn Listener
}

// New returns a store whose state is initial until the first Set.
func New(initial telemetry.Frame) *Store {
	s := &Store{}
	s.current.Store(&snapshot{frame: initial.Clone()})
	return s
}

// Get returns a copy of the current frame.
func (s *Store) Get() telemetry.Frame {
	return s.current.Load().frame.Clone()
}

// Version counts the Set calls seen so far.
func (s *Store) Version() uint64 {
	return s.current.Load().version
}

// Set replaces the current frame and notifies listeners in subscription
// order before returning.
func (s *Store) Set(f telemetry.Frame) {
	prev := s.current.Load()
	next := &snapshot{
		frame:   f.Clone(),
		version: prev.version + 1,
	}
	s.current.Store(next)

	s.mu.Lock()
	listeners := make([]subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(next.frame.Clone())
	}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function may be called more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}
