// Package replay provides bounded per-project frame history used to
// restore recent stream output to clients that subscribe or reconnect.
package replay

import (
	"sync"

	"github.com/regassist/backend/pkg/protocol"
)

// Ring is a thread-safe bounded buffer of the most recent frames for one
// project. When full, the oldest frame is discarded to make room.
type Ring struct {
	frames   []*protocol.Frame
	start    int
	count    int
	capacity int
	mu       sync.RWMutex
}

// NewRing creates a Ring with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		frames:   make([]*protocol.Frame, capacity),
		capacity: capacity,
	}
}

// Append adds a frame, evicting the oldest when at capacity.
func (r *Ring) Append(frame *protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % r.capacity
	r.frames[idx] = frame
	if r.count < r.capacity {
		r.count++
	} else {
		r.start = (r.start + 1) % r.capacity
	}
}

// Snapshot returns the buffered frames oldest-first. The returned slice
// is a copy and safe to use without holding the lock.
func (r *Ring) Snapshot() []*protocol.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	out := make([]*protocol.Frame, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.frames[(r.start+i)%r.capacity]
	}
	return out
}

// Clear removes all buffered frames.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.start = 0
	r.count = 0
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int {
	return r.capacity
}

// Store holds one Ring per project.
type Store struct {
	rings    map[string]*Ring
	capacity int
	mu       sync.Mutex
}

// NewStore creates a Store whose rings hold up to capacity frames each.
func NewStore(capacity int) *Store {
	return &Store{
		rings:    make(map[string]*Ring),
		capacity: capacity,
	}
}

// Ring returns the ring for the project, creating it if needed.
func (s *Store) Ring(projectID string) *Ring {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[projectID]
	if !ok {
		ring = NewRing(s.capacity)
		s.rings[projectID] = ring
	}
	return ring
}

// Append records a frame in the project's ring.
func (s *Store) Append(projectID string, frame *protocol.Frame) {
	s.Ring(projectID).Append(frame)
}

// Snapshot returns the recorded frames for the project, oldest-first.
func (s *Store) Snapshot(projectID string) []*protocol.Frame {
	s.mu.Lock()
	ring, ok := s.rings[projectID]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return ring.Snapshot()
}

// Remove discards the ring for the project.
func (s *Store) Remove(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, projectID)
}
