package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regassist/backend/internal/agent"
	"github.com/regassist/backend/internal/model"
	"github.com/regassist/backend/internal/replay"
	"github.com/regassist/backend/internal/repository"
	"github.com/regassist/backend/internal/transcript"
	"github.com/regassist/backend/pkg/protocol"
)

// Service drives agent streams and fans their frames out to subscribed
// clients. At most one stream runs per project; starting a new search
// while one is in flight cancels the old one (last start wins).
type Service struct {
	hub      *Hub
	finder   agent.Finder
	projects *repository.ProjectRepository
	replay   *replay.Store

	transcriptDir string

	mu          sync.Mutex
	streams     map[string]*activeStream
	transcripts map[string]*transcript.Logger
}

// activeStream tracks one in-flight agent response.
type activeStream struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new streaming service.
func NewService(hub *Hub, finder agent.Finder, projects *repository.ProjectRepository, replayStore *replay.Store, transcriptDir string) *Service {
	return &Service{
		hub:           hub,
		finder:        finder,
		projects:      projects,
		replay:        replayStore,
		transcriptDir: transcriptDir,
		streams:       make(map[string]*activeStream),
		transcripts:   make(map[string]*transcript.Logger),
	}
}

// StartSearch begins an agent stream for the project. Any stream already
// running for the project is interrupted first.
func (s *Service) StartSearch(projectID, query string) error {
	ctx, cancel := context.WithCancel(context.Background())

	lookupCtx, lookupCancel := context.WithTimeout(ctx, 5*time.Second)
	project, err := s.projects.GetByID(lookupCtx, projectID)
	lookupCancel()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to load project: %w", err)
	}

	streamID := uuid.New().String()
	stream := &activeStream{
		id:     streamID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	prior := s.streams[projectID]
	s.streams[projectID] = stream
	s.mu.Unlock()

	if prior != nil {
		prior.cancel()
		<-prior.done
	}

	go s.run(ctx, stream, project, query)
	return nil
}

// Interrupt cancels the project's running stream. An empty streamID
// cancels whatever stream is active; a mismatched one is stale and ignored.
func (s *Service) Interrupt(projectID, streamID string) error {
	s.mu.Lock()
	stream := s.streams[projectID]
	s.mu.Unlock()

	if stream == nil {
		return model.ErrStreamNotFound
	}
	if streamID != "" && stream.id != streamID {
		return nil
	}

	stream.cancel()
	if logger := s.transcript(projectID); logger != nil {
		logger.WriteInterrupt(stream.id)
	}
	return nil
}

// ActiveStreamID returns the ID of the project's running stream, if any.
func (s *Service) ActiveStreamID(projectID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[projectID]
	if !ok {
		return "", false
	}
	return stream.id, true
}

// run executes one agent turn and emits its frame sequence.
func (s *Service) run(ctx context.Context, stream *activeStream, project *model.Project, query string) {
	defer close(stream.done)
	defer stream.cancel()
	defer s.release(project.ID, stream)

	s.emit(project.ID, protocol.FrameTypeTypingStart, stream.id, protocol.StreamStartPayload{
		StreamID: stream.id,
	})

	result, err := s.finder.Search(ctx, agent.SearchRequest{
		ProjectID:   project.ID,
		Query:       query,
		DeviceName:  project.DeviceName,
		IntendedUse: project.IntendedUse,
	}, func(chunk string) {
		s.emit(project.ID, protocol.FrameTypeResponseStream, stream.id, protocol.StreamChunkPayload{
			Chunk:    chunk,
			StreamID: stream.id,
		})
		if logger := s.transcript(project.ID); logger != nil {
			logger.WriteChunk(chunk)
		}
	})

	switch {
	case errors.Is(err, context.Canceled):
		// User-initiated interruption. The client already finalized the
		// session; no terminal frame is sent.
		log.Printf("Stream %s for project %s interrupted", stream.id, project.ID)
	case err != nil:
		log.Printf("Stream %s for project %s failed: %v", stream.id, project.ID, err)
		s.emit(project.ID, protocol.FrameTypeStreamError, stream.id, protocol.StreamErrorPayload{
			Error:    err.Error(),
			StreamID: stream.id,
		})
		if logger := s.transcript(project.ID); logger != nil {
			logger.WriteError(err.Error())
		}
	default:
		payload := protocol.StreamStopPayload{
			StreamID:   stream.id,
			Confidence: result.Confidence,
			Sources:    result.Sources,
			Reasoning:  result.Reasoning,
		}
		s.emit(project.ID, protocol.FrameTypeTypingStop, stream.id, payload)
		if logger := s.transcript(project.ID); logger != nil {
			if meta, err := json.Marshal(payload); err == nil {
				logger.WriteMetadata(string(meta))
			}
		}
	}
}

// release removes the stream from the active set unless a newer stream
// has already replaced it.
func (s *Service) release(projectID string, stream *activeStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[projectID] == stream {
		delete(s.streams, projectID)
	}
}

// emit builds a frame, records it for replay and broadcasts it.
func (s *Service) emit(projectID string, frameType protocol.FrameType, streamID string, payload interface{}) {
	frame, err := protocol.New(frameType, projectID, payload)
	if err != nil {
		log.Printf("Failed to build %s frame: %v", frameType, err)
		return
	}
	frame.StreamID = streamID

	s.replay.Append(projectID, frame)
	if err := s.hub.Broadcast(frame); err != nil {
		log.Printf("Failed to broadcast %s frame: %v", frameType, err)
	}
}

// transcript returns the project's transcript logger, creating it lazily.
// Transcription is best-effort; a nil return disables it for the project.
func (s *Service) transcript(projectID string) *transcript.Logger {
	if s.transcriptDir == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if logger, ok := s.transcripts[projectID]; ok {
		return logger
	}

	logger, err := transcript.NewLogger(s.TranscriptPath(projectID))
	if err != nil {
		log.Printf("Failed to create transcript for project %s: %v", projectID, err)
		s.transcripts[projectID] = nil
		return nil
	}
	if err := logger.WriteHeader(projectID); err != nil {
		log.Printf("Failed to write transcript header for project %s: %v", projectID, err)
	}
	s.transcripts[projectID] = logger
	return logger
}

// TranscriptPath returns the transcript file path for a project.
func (s *Service) TranscriptPath(projectID string) string {
	return filepath.Join(s.transcriptDir, projectID+".stream.jsonl")
}

// NotifyProjectUpdated broadcasts a project_updated frame to subscribers.
func (s *Service) NotifyProjectUpdated(project *model.Project) {
	changes, err := json.Marshal(project)
	if err != nil {
		log.Printf("Failed to marshal project changes: %v", err)
		return
	}

	frame, err := protocol.New(protocol.FrameTypeProjectUpdated, project.ID, protocol.ProjectChangePayload{
		Changes: changes,
	})
	if err != nil {
		log.Printf("Failed to build project_updated frame: %v", err)
		return
	}
	if err := s.hub.Broadcast(frame); err != nil {
		log.Printf("Failed to broadcast project_updated frame: %v", err)
	}
}

// NotifyProjectDeleted broadcasts a project_deleted frame, interrupts any
// running stream and drops replay history for the project.
func (s *Service) NotifyProjectDeleted(projectID string) {
	if err := s.Interrupt(projectID, ""); err != nil && !errors.Is(err, model.ErrStreamNotFound) {
		log.Printf("Failed to interrupt stream for deleted project %s: %v", projectID, err)
	}
	s.replay.Remove(projectID)

	frame, err := protocol.New(protocol.FrameTypeProjectDeleted, projectID, nil)
	if err != nil {
		log.Printf("Failed to build project_deleted frame: %v", err)
		return
	}
	if err := s.hub.Broadcast(frame); err != nil {
		log.Printf("Failed to broadcast project_deleted frame: %v", err)
	}
}

// Close interrupts all streams and closes transcript files.
func (s *Service) Close() {
	s.mu.Lock()
	streams := make([]*activeStream, 0, len(s.streams))
	for _, stream := range s.streams {
		streams = append(streams, stream)
	}
	transcripts := s.transcripts
	s.transcripts = make(map[string]*transcript.Logger)
	s.mu.Unlock()

	for _, stream := range streams {
		stream.cancel()
		<-stream.done
	}
	for _, logger := range transcripts {
		if logger != nil {
			logger.Close()
		}
	}
}
