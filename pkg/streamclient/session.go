package streamclient

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/regassist/backend/pkg/protocol"
)

// Metadata carries the finishing metadata of an agent response.
type Metadata struct {
	Confidence float64
	Sources    []string
	Reasoning  string
}

// SessionOption configures a StreamSession.
type SessionOption func(*StreamSession)

// WithOnResponseComplete sets the callback fired with the final content
// when a stream completes (or is interrupted, with partial content).
func WithOnResponseComplete(fn func(content string)) SessionOption {
	return func(s *StreamSession) { s.onComplete = fn }
}

// WithOnError sets the callback fired when the server reports a stream
// error.
func WithOnError(fn func(err error)) SessionOption {
	return func(s *StreamSession) { s.onError = fn }
}

// StreamSession accumulates one agent response turn for a project. It is
// driven by router events and tracks the typing and streaming indicators
// as two independent booleans: the typing indicator clears as soon as
// the first content chunk arrives, while streaming continues until the
// stop, error, or interrupt transition.
//
// Content grows append-only while streaming and freezes once the session
// reaches a terminal state; chunks arriving after that are ignored.
// Events scoped to a different project are ignored entirely. A fresh
// agent_typing_start always wins over an unfinished prior stream: the
// old partial content is discarded, never merged.
type StreamSession struct {
	projectID string
	sender    Sender

	onComplete func(content string)
	onError    func(err error)

	mu          sync.Mutex
	streamID    string
	content     strings.Builder
	isTyping    bool
	isStreaming bool
	terminal    bool
	errText     string
	metadata    Metadata
	startTime   time.Time
	endTime     time.Time
	unsubs      []func()
}

// NewStreamSession creates a session scoped to a project and registers
// its router handlers. Close removes them; leaving a session un-closed
// leaks handlers that keep firing into it.
func NewStreamSession(router *Router, sender Sender, projectID string, opts ...SessionOption) *StreamSession {
	s := &StreamSession{
		projectID: projectID,
		sender:    sender,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubs = []func(){
		router.Subscribe(protocol.FrameTypeTypingStart, s.handleStart),
		router.Subscribe(protocol.FrameTypeResponseStream, s.handleChunk),
		router.Subscribe(protocol.FrameTypeTypingStop, s.handleStop),
		router.Subscribe(protocol.FrameTypeStreamError, s.handleError),
	}
	return s
}

// Close detaches the session from the router and stops all state updates.
func (s *StreamSession) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Search asks the server to start an agent turn for this project.
func (s *StreamSession) Search(query string) {
	s.sender.SendType(protocol.FrameTypeAgentSearch, s.projectID, protocol.SearchPayload{
		Query: query,
	})
}

// Interrupt stops the in-flight stream. The interrupt is told to the
// server, the session finalizes immediately with the partial content,
// and later chunks for the interrupted stream are ignored. Interruption
// reports through the completion callback, not the error callback.
func (s *StreamSession) Interrupt() {
	s.mu.Lock()
	if !s.isStreaming {
		s.mu.Unlock()
		return
	}
	streamID := s.streamID
	s.isStreaming = false
	s.isTyping = false
	s.terminal = true
	s.endTime = time.Now()
	content := s.content.String()
	complete := s.onComplete
	s.mu.Unlock()

	s.sender.SendType(protocol.FrameTypeInterruptStream, s.projectID, protocol.InterruptPayload{
		StreamID: streamID,
	})

	if complete != nil {
		complete(content)
	}
}

// handleStart begins a fresh session, discarding any unfinished prior
// stream for the same project (last start wins).
func (s *StreamSession) handleStart(frame *protocol.Frame) {
	if !s.inScope(frame) {
		return
	}

	s.mu.Lock()
	s.streamID = frame.EffectiveStreamID()
	s.content.Reset()
	s.metadata = Metadata{}
	s.errText = ""
	s.isTyping = true
	s.isStreaming = true
	s.terminal = false
	s.startTime = time.Now()
	s.endTime = time.Time{}
	s.mu.Unlock()
}

// handleChunk appends a content fragment and clears the typing indicator.
func (s *StreamSession) handleChunk(frame *protocol.Frame) {
	if !s.inScope(frame) {
		return
	}

	var payload protocol.StreamChunkPayload
	if err := frame.DecodePayload(&payload); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isStreaming {
		return
	}
	if s.streamID != "" && payload.StreamID != "" && payload.StreamID != s.streamID {
		return
	}

	s.content.WriteString(payload.Chunk)
	s.isTyping = false
}

// handleStop finalizes the stream and fires the completion callback.
// A stop for an already-finished session is a no-op; the callback never
// fires twice for one stream.
func (s *StreamSession) handleStop(frame *protocol.Frame) {
	if !s.inScope(frame) {
		return
	}

	s.mu.Lock()
	if !s.isStreaming {
		s.mu.Unlock()
		return
	}
	s.isTyping = false
	s.isStreaming = false
	s.terminal = true
	s.endTime = time.Now()

	var payload protocol.StreamStopPayload
	if err := frame.DecodePayload(&payload); err == nil {
		s.metadata = Metadata{
			Confidence: payload.Confidence,
			Sources:    payload.Sources,
			Reasoning:  payload.Reasoning,
		}
	}

	content := s.content.String()
	complete := s.onComplete
	s.mu.Unlock()

	if complete != nil {
		complete(content)
	}
}

// handleError finalizes the stream on a server-reported failure.
func (s *StreamSession) handleError(frame *protocol.Frame) {
	if !s.inScope(frame) {
		return
	}

	var payload protocol.StreamErrorPayload
	if err := frame.DecodePayload(&payload); err != nil {
		return
	}

	s.mu.Lock()
	if s.terminal {
		// Already finalized; a late error for the same turn changes nothing.
		s.mu.Unlock()
		return
	}
	s.isTyping = false
	s.isStreaming = false
	s.terminal = true
	s.errText = payload.Error
	s.endTime = time.Now()
	onError := s.onError
	s.mu.Unlock()

	if onError != nil {
		onError(errors.New(payload.Error))
	}
}

// inScope reports whether the frame belongs to this session's project.
// Frames without a project scope pass when the session has none either.
func (s *StreamSession) inScope(frame *protocol.Frame) bool {
	if s.projectID == "" {
		return true
	}
	return frame.ProjectID == s.projectID
}

// Content returns the accumulated response text.
func (s *StreamSession) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.String()
}

// IsTyping reports whether the typing indicator is showing.
func (s *StreamSession) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTyping
}

// IsStreaming reports whether a stream is in flight.
func (s *StreamSession) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isStreaming
}

// StreamID returns the ID of the current (or last) stream.
func (s *StreamSession) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// Metadata returns the finishing metadata of the completed stream.
func (s *StreamSession) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Err returns the recorded stream error text, if any.
func (s *StreamSession) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

// Duration returns how long the stream ran; zero while it is in flight.
func (s *StreamSession) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() || s.endTime.IsZero() {
		return 0
	}
	return s.endTime.Sub(s.startTime)
}
