package streamclient

import (
	"log"
	"sync"

	"github.com/regassist/backend/pkg/protocol"
)

// Handler processes one inbound frame.
type Handler func(frame *protocol.Frame)

// registration ties a handler to the identity used to remove it.
type registration struct {
	id uint64
	fn Handler
}

// Router dispatches inbound frames to handlers registered per frame type.
// Handlers for a type run synchronously in registration order on the
// goroutine that received the frame; a dispatch runs to completion before
// the next frame is processed.
type Router struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[protocol.FrameType][]registration
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[protocol.FrameType][]registration),
	}
}

// Subscribe registers a handler for a frame type. Multiple handlers may
// register for the same type; each receives every matching frame. The
// returned function removes exactly this registration and is safe to
// call more than once.
func (r *Router) Subscribe(frameType protocol.FrameType, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[frameType] = append(r.handlers[frameType], registration{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		regs := r.handlers[frameType]
		for i, reg := range regs {
			if reg.id == id {
				r.handlers[frameType] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch parses a raw frame and routes it. Malformed frames are logged
// and dropped; nothing propagates past this boundary.
func (r *Router) Dispatch(raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("Dropping frame: %v", err)
		return
	}
	r.HandleFrame(frame)
}

// HandleFrame routes an already-decoded frame to its handlers.
func (r *Router) HandleFrame(frame *protocol.Frame) {
	r.mu.Lock()
	regs := make([]registration, len(r.handlers[frame.Type]))
	copy(regs, r.handlers[frame.Type])
	r.mu.Unlock()

	for _, reg := range regs {
		reg.fn(frame)
	}
}

// HandlerCount returns the number of handlers registered for a type.
func (r *Router) HandlerCount(frameType protocol.FrameType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[frameType])
}
