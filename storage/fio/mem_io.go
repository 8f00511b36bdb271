package fio

import "sync"

// Space accounts the bytes used by a group of memory files.
// A zero capacity means unbounded.
type Space struct {
	mu       sync.Mutex
	capacity int64
	used     int64
}

func NewSpace(capacity int64) *Space {
	return &Space{capacity: capacity}
}

// reserve takes up to n bytes and returns how many were granted.
func (s *Space) reserve(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && s.used+n > s.capacity {
		n = s.capacity - s.used
	}
	s.used += n
	return n
}

func (s *Space) release(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used -= n
}

func (s *Space) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Space) Capacity() int64 {
	return s.capacity
}

// MemIO is an in-memory Manager. Its content survives Close, so the same
// MemIO can be reopened until it is released.
type MemIO struct {
	mu    sync.RWMutex
	name  string
	data  []byte
	space *Space
}

func NewMemIO(name string, space *Space) *MemIO {
	return &MemIO{name: name, space: space}
}

func (m *MemIO) Read(b []byte, offset int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= int64(len(m.data)) {
		return 0, nil
	}
	return copy(b, m.data[offset:]), nil
}

// Write appends as much of b as the space allows.
func (m *MemIO) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	granted := m.space.reserve(int64(len(b)))
	if granted == 0 && len(b) > 0 {
		return 0, ErrNoSpace
	}
	m.data = append(m.data, b[:granted]...)
	return int(granted), nil
}

func (m *MemIO) Sync() error {
	return nil
}

func (m *MemIO) Close() error {
	return nil
}

// Release drops the content and gives its bytes back to the space.
func (m *MemIO) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.space.release(int64(len(m.data)))
	m.data = nil
}

func (m *MemIO) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

func (m *MemIO) Name() string {
	return m.name
}
