package index

import (
	"sort"
	"sync"
)

// SimMap is an Indexer on a map guarded by a RWMutex.
type SimMap[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func NewSimMap[V any]() *SimMap[V] {
	return &SimMap[V]{
		m: make(map[string]V),
	}
}

// Put stores value and returns the previous one.
func (s *SimMap[V]) Put(key string, value V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.m[key]
	s.m[key] = value
	return prev, ok
}

func (s *SimMap[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *SimMap[V]) Delete(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

func (s *SimMap[V]) Scan() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *SimMap[V]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
