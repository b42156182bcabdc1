package ackstate

import (
	"context"
	"sync"
)

// InMemory is a process-local Store.
type InMemory struct {
	mu     sync.RWMutex
	states map[Key]State
}

func NewInMemory() *InMemory {
	return &InMemory{states: make(map[Key]State)}
}

func (s *InMemory) Get(_ context.Context, key Key) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(key), nil
}

func (s *InMemory) Set(_ context.Context, key Key, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

func (s *InMemory) CompareAndSet(_ context.Context, key Key, expected, next State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.get(key) != expected {
		return false, nil
	}
	s.states[key] = next
	return true, nil
}

func (s *InMemory) GetMany(_ context.Context, keys []Key) (map[Key]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]State, len(keys))
	for _, k := range keys {
		out[k] = s.get(k)
	}
	return out, nil
}

func (s *InMemory) get(key Key) State {
	if st, ok := s.states[key]; ok {
		return st
	}
	return StateAvailable
}
