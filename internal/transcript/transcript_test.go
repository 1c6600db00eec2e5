package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesHeaderAndEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	if err := logger.WriteHeader("project-1"); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := logger.WriteChunk("The closest predicate is "); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if err := logger.WriteChunk("K213678."); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if err := logger.WriteMetadata(`{"confidence":0.85}`); err != nil {
		t.Fatalf("WriteMetadata() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)

	if !scanner.Scan() {
		t.Fatal("missing header line")
	}
	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		t.Fatalf("header is not valid JSON: %v", err)
	}
	if header.Version != 1 {
		t.Errorf("header version = %d, want 1", header.Version)
	}
	if header.ProjectID != "project-1" {
		t.Errorf("header project = %s, want project-1", header.ProjectID)
	}

	var events []Event
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("event line is not valid: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].EventType != "c" || events[0].Data != "The closest predicate is " {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].EventType != "c" || events[1].Data != "K213678." {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[2].EventType != "m" {
		t.Errorf("unexpected third event type: %s", events[2].EventType)
	}

	// Offsets are monotonically non-decreasing.
	for i := 1; i < len(events); i++ {
		if events[i].TimeOffset < events[i-1].TimeOffset {
			t.Errorf("event %d offset %f before event %d offset %f",
				i, events[i].TimeOffset, i-1, events[i-1].TimeOffset)
		}
	}
}

func TestLoggerErrorAndInterruptEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf)

	if err := logger.WriteError("model unavailable"); err != nil {
		t.Fatalf("WriteError() error = %v", err)
	}
	if err := logger.WriteInterrupt("stream-1"); err != nil {
		t.Fatalf("WriteInterrupt() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var events []Event
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("event line is not valid: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "e" || events[0].Data != "model unavailable" {
		t.Errorf("unexpected error event: %+v", events[0])
	}
	if events[1].EventType != "i" || events[1].Data != "stream-1" {
		t.Errorf("unexpected interrupt event: %+v", events[1])
	}
}

func TestEventRoundTrip(t *testing.T) {
	original := Event{TimeOffset: 1.25, EventType: "c", Data: "hello"}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip changed event: %+v != %+v", decoded, original)
	}
}

func TestEventUnmarshalRejectsBadShapes(t *testing.T) {
	cases := []string{
		`[1.0,"c"]`,          // too short
		`["x","c","data"]`,   // non-numeric offset
		`[1.0,2,"data"]`,     // non-string type
		`[1.0,"c",3]`,        // non-string data
		`{"not":"an array"}`, // wrong shape entirely
	}
	for _, raw := range cases {
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestLoggerFileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p1.stream.jsonl")

	logger, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if err := logger.WriteHeader("p1"); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := logger.WriteChunk("data"); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := bytes.Count(content, []byte("\n"))
	if lines != 2 {
		t.Errorf("expected 2 lines in transcript, got %d", lines)
	}
}
