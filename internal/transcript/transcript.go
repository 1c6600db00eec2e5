// Package transcript records agent stream activity per project in a
// JSON-Lines format: one header line followed by one line per event.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the first line of a transcript file.
type Header struct {
	Version   int    `json:"version"`
	ProjectID string `json:"project_id"`
	Timestamp int64  `json:"timestamp"`
}

// Event represents a single recorded stream event.
// Format: [time_offset, event_type, data]
type Event struct {
	TimeOffset float64
	EventType  string // "c" for chunk, "m" for metadata, "e" for error, "i" for interrupt
	Data       string
}

// MarshalJSON implements custom JSON marshaling for Event.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.EventType, e.Data})
}

// UnmarshalJSON implements custom JSON unmarshaling for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	timeOffset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	e.TimeOffset = timeOffset

	eventType, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	e.EventType = eventType

	eventData, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data type")
	}
	e.Data = eventData

	return nil
}

// Logger records stream events for one project.
type Logger struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewLogger creates a Logger that writes to the given file path.
func NewLogger(filePath string) (*Logger, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	return &Logger{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}, nil
}

// NewLoggerWithWriter creates a Logger that writes to the given writer.
// This is useful for testing.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteHeader writes the transcript header.
// This should be called once at the beginning of the recording.
func (l *Logger) WriteHeader(projectID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := Header{
		Version:   1,
		ProjectID: projectID,
		Timestamp: l.startTime.Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return nil
}

// WriteChunk records a response text fragment.
func (l *Logger) WriteChunk(chunk string) error {
	return l.writeEvent("c", chunk)
}

// WriteMetadata records the finishing metadata of a completed stream.
func (l *Logger) WriteMetadata(metadata string) error {
	return l.writeEvent("m", metadata)
}

// WriteError records a stream error.
func (l *Logger) WriteError(message string) error {
	return l.writeEvent("e", message)
}

// WriteInterrupt records a user-initiated interruption.
func (l *Logger) WriteInterrupt(streamID string) error {
	return l.writeEvent("i", streamID)
}

// writeEvent appends an event line with the given type.
func (l *Logger) writeEvent(eventType, data string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := Event{
		TimeOffset: time.Since(l.startTime).Seconds(),
		EventType:  eventType,
		Data:       data,
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := l.writer.Write(append(eventData, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// Close closes the transcript file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// StartTime returns the start time of the recording.
func (l *Logger) StartTime() time.Time {
	return l.startTime
}
