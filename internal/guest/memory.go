package guest

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMemoryCapacity bounds the number of sessions kept by MemoryStore.
const DefaultMemoryCapacity = 100000

// MemoryStore is a thread-safe LRU implementation of Store.
// The least recently touched session is evicted when capacity is reached; an evicted
// session simply gets a fresh guest id on its next request.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*list.Element
	order    *list.List
}

type memoryEntry struct {
	sessionID string
	values    map[string]string
}

// NewMemoryStore creates a MemoryStore holding at most capacity sessions.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		sessions: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Load returns the value stored for (sessionID, key).
func (s *MemoryStore) Load(_ context.Context, sessionID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.sessions[sessionID]
	if !exists {
		return "", false, nil
	}

	s.order.MoveToFront(elem)
	v, ok := elem.Value.(*memoryEntry).values[key]
	return v, ok, nil
}

// Save stores value for (sessionID, key), evicting the oldest session if full.
func (s *MemoryStore) Save(_ context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.sessions[sessionID]; exists {
		s.order.MoveToFront(elem)
		elem.Value.(*memoryEntry).values[key] = value
		return nil
	}

	if s.order.Len() >= s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			delete(s.sessions, oldest.Value.(*memoryEntry).sessionID)
			s.order.Remove(oldest)
		}
	}

	entry := &memoryEntry{sessionID: sessionID, values: map[string]string{key: value}}
	s.sessions[sessionID] = s.order.PushFront(entry)
	return nil
}

// Len returns the number of sessions currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
