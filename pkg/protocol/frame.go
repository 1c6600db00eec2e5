// Package protocol defines the JSON frame protocol spoken over the
// persistent WebSocket connection between the regulatory assistant
// backend and its clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType represents the type of a WebSocket frame.
type FrameType string

const (
	// Client -> Server frame types
	FrameTypeSubscribe       FrameType = "subscribe"
	FrameTypeUnsubscribe     FrameType = "unsubscribe"
	FrameTypeAgentSearch     FrameType = "agent_search"
	FrameTypeInterruptStream FrameType = "interrupt_stream"
	FrameTypePing            FrameType = "ping"

	// Server -> Client frame types
	FrameTypeSubscribed     FrameType = "subscribed"
	FrameTypeUnsubscribed   FrameType = "unsubscribed"
	FrameTypeTypingStart    FrameType = "agent_typing_start"
	FrameTypeResponseStream FrameType = "agent_response_stream"
	FrameTypeTypingStop     FrameType = "agent_typing_stop"
	FrameTypeStreamError    FrameType = "agent_stream_error"
	FrameTypeProjectUpdated FrameType = "project_updated"
	FrameTypeProjectDeleted FrameType = "project_deleted"
	FrameTypePong           FrameType = "pong"

	// Bidirectional frame types
	FrameTypeUserTyping FrameType = "user_typing"
)

// Frame represents one discrete message on the connection. Data is an
// opaque payload whose shape depends on Type; ProjectID scopes the frame
// to a project subscription and StreamID correlates frames belonging to
// one agent response turn.
type Frame struct {
	Type      FrameType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	StreamID  string          `json:"stream_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamStartPayload is the payload of agent_typing_start frames.
type StreamStartPayload struct {
	StreamID string `json:"streamId"`
}

// StreamChunkPayload is the payload of agent_response_stream frames.
type StreamChunkPayload struct {
	Chunk    string `json:"chunk"`
	StreamID string `json:"streamId"`
}

// StreamStopPayload is the payload of agent_typing_stop frames. It carries
// the finishing metadata for the completed response.
type StreamStopPayload struct {
	StreamID   string   `json:"streamId"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// StreamErrorPayload is the payload of agent_stream_error frames.
type StreamErrorPayload struct {
	Error    string `json:"error"`
	StreamID string `json:"streamId"`
}

// InterruptPayload is the payload of interrupt_stream frames.
type InterruptPayload struct {
	StreamID string `json:"streamId"`
}

// SearchPayload is the payload of agent_search frames.
type SearchPayload struct {
	Query string `json:"query"`
}

// TypingPayload is the payload of user_typing frames.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// ProjectChangePayload is the payload of project_updated and
// project_deleted frames.
type ProjectChangePayload struct {
	Changes json.RawMessage `json:"changes,omitempty"`
}

// New builds a frame of the given type carrying the marshaled payload.
// A nil payload produces a frame with no data field.
func New(frameType FrameType, projectID string, payload interface{}) (*Frame, error) {
	frame := &Frame{
		Type:      frameType,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
		}
		frame.Data = data
	}

	return frame, nil
}

// Decode parses a raw frame off the wire. Frames that are not valid JSON
// or carry no type are rejected; callers drop them.
func Decode(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &frame, nil
}

// Encode serializes the frame for transmission.
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodePayload unmarshals the frame's data field into dst.
func (f *Frame) DecodePayload(dst interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Type)
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	return nil
}

// EffectiveStreamID returns the stream ID for the frame, preferring the
// top-level field and falling back to a streamId nested in the payload.
// Some producers set only one of the two.
func (f *Frame) EffectiveStreamID() string {
	if f.StreamID != "" {
		return f.StreamID
	}
	if len(f.Data) == 0 {
		return ""
	}
	var nested struct {
		StreamID string `json:"streamId"`
	}
	if err := json.Unmarshal(f.Data, &nested); err != nil {
		return ""
	}
	return nested.StreamID
}
