package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/regassist/backend/internal/agent"
	"github.com/regassist/backend/internal/db"
	"github.com/regassist/backend/internal/model"
	"github.com/regassist/backend/internal/replay"
	"github.com/regassist/backend/internal/repository"
	"github.com/regassist/backend/pkg/protocol"
)

type wsFixture struct {
	handler *Handler
	server  *httptest.Server
	project *model.Project
	replay  *replay.Store
}

// newWSFixture stands up the whole streaming stack behind a test HTTP
// server. The user ID for each connection comes from the user query
// parameter.
func newWSFixture(t *testing.T, finder agent.Finder) *wsFixture {
	t.Helper()

	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	projects := repository.NewProjectRepository(testDB)
	now := time.Now().UTC()
	project := &model.Project{
		ID:          uuid.New().String(),
		UserID:      "user-1",
		Name:        "CGM Submission",
		DeviceName:  "AcmeCGM",
		DeviceClass: model.DeviceClassII,
		Status:      model.ProjectStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := projects.Create(context.Background(), project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	hub := NewHub()
	store := replay.NewStore(64)
	service := NewService(hub, finder, projects, store, t.TempDir())
	t.Cleanup(service.Close)
	handler := NewHandler(hub, service, store)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			userID = "anonymous"
		}
		handler.HandleConnection(w, r, userID)
	}))
	t.Cleanup(server.Close)

	return &wsFixture{
		handler: handler,
		server:  server,
		project: project,
		replay:  store,
	}
}

func (fx *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType protocol.FrameType, projectID string, payload interface{}) {
	t.Helper()
	frame, err := protocol.New(frameType, projectID, payload)
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	data, err := frame.Encode()
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) *protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	frame, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("inbound frame does not decode: %v", err)
	}
	return frame
}

func TestIntegrationSubscribeAckAndReplay(t *testing.T) {
	fx := newWSFixture(t, &scriptedFinder{result: &agent.Result{}})

	// Pre-record stream history as if a stream ran before this client
	// connected.
	for _, chunk := range []string{"alpha", "beta"} {
		frame, err := protocol.New(protocol.FrameTypeResponseStream, fx.project.ID, protocol.StreamChunkPayload{
			Chunk:    chunk,
			StreamID: "old-stream",
		})
		if err != nil {
			t.Fatalf("failed to build frame: %v", err)
		}
		fx.replay.Append(fx.project.ID, frame)
	}

	conn := fx.dial(t, "user-1")
	sendFrame(t, conn, protocol.FrameTypeSubscribe, fx.project.ID, nil)

	ack := readFrame(t, conn, 2*time.Second)
	if ack.Type != protocol.FrameTypeSubscribed || ack.ProjectID != fx.project.ID {
		t.Fatalf("expected subscribed ack, got %s %s", ack.Type, ack.ProjectID)
	}

	// The recorded history replays in order right after the ack.
	for _, want := range []string{"alpha", "beta"} {
		frame := readFrame(t, conn, 2*time.Second)
		if frame.Type != protocol.FrameTypeResponseStream {
			t.Fatalf("expected replayed chunk, got %s", frame.Type)
		}
		var payload protocol.StreamChunkPayload
		if err := frame.DecodePayload(&payload); err != nil {
			t.Fatalf("replayed payload invalid: %v", err)
		}
		if payload.Chunk != want {
			t.Errorf("replayed chunk = %q, want %q", payload.Chunk, want)
		}
	}
}

func TestIntegrationPingPong(t *testing.T) {
	fx := newWSFixture(t, &scriptedFinder{result: &agent.Result{}})

	conn := fx.dial(t, "user-1")
	sendFrame(t, conn, protocol.FrameTypePing, "", nil)

	frame := readFrame(t, conn, 2*time.Second)
	if frame.Type != protocol.FrameTypePong {
		t.Errorf("expected pong, got %s", frame.Type)
	}
}

func TestIntegrationSearchStreamsOverWire(t *testing.T) {
	finder := &scriptedFinder{
		chunks: []string{"K213678 ", "is the best match."},
		result: &agent.Result{Confidence: 0.75, Sources: []string{"K213678"}},
	}
	fx := newWSFixture(t, finder)

	conn := fx.dial(t, "user-1")
	sendFrame(t, conn, protocol.FrameTypeSubscribe, fx.project.ID, nil)
	if ack := readFrame(t, conn, 2*time.Second); ack.Type != protocol.FrameTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %s", ack.Type)
	}

	sendFrame(t, conn, protocol.FrameTypeAgentSearch, fx.project.ID, protocol.SearchPayload{Query: "glucose"})

	var text string
	var sawStart, sawStop bool
	for !sawStop {
		frame := readFrame(t, conn, 2*time.Second)
		switch frame.Type {
		case protocol.FrameTypeTypingStart:
			sawStart = true
		case protocol.FrameTypeResponseStream:
			var payload protocol.StreamChunkPayload
			if err := frame.DecodePayload(&payload); err != nil {
				t.Fatalf("chunk payload invalid: %v", err)
			}
			text += payload.Chunk
		case protocol.FrameTypeTypingStop:
			sawStop = true
		default:
			t.Fatalf("unexpected frame type %s", frame.Type)
		}
	}

	if !sawStart {
		t.Error("stream never announced agent_typing_start")
	}
	if text != "K213678 is the best match." {
		t.Errorf("assembled text = %q", text)
	}
}

func TestIntegrationTypingRebroadcast(t *testing.T) {
	fx := newWSFixture(t, &scriptedFinder{result: &agent.Result{}})

	alice := fx.dial(t, "alice")
	bob := fx.dial(t, "bob")

	sendFrame(t, alice, protocol.FrameTypeSubscribe, fx.project.ID, nil)
	if ack := readFrame(t, alice, 2*time.Second); ack.Type != protocol.FrameTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %s", ack.Type)
	}
	sendFrame(t, bob, protocol.FrameTypeSubscribe, fx.project.ID, nil)
	if ack := readFrame(t, bob, 2*time.Second); ack.Type != protocol.FrameTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %s", ack.Type)
	}

	sendFrame(t, alice, protocol.FrameTypeUserTyping, fx.project.ID, nil)

	frame := readFrame(t, bob, 2*time.Second)
	if frame.Type != protocol.FrameTypeUserTyping {
		t.Fatalf("expected user_typing, got %s", frame.Type)
	}
	var payload protocol.TypingPayload
	if err := frame.DecodePayload(&payload); err != nil {
		t.Fatalf("typing payload invalid: %v", err)
	}
	// The server stamps the sender identity; clients cannot spoof it.
	if payload.UserID != "alice" {
		t.Errorf("typing user = %q, want alice", payload.UserID)
	}

	// The sender does not hear its own typing echoed back.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Error("sender received its own typing frame")
	}
}

func TestIntegrationUnsubscribeStopsDelivery(t *testing.T) {
	fx := newWSFixture(t, &scriptedFinder{
		chunks: []string{"chunk"},
		result: &agent.Result{},
	})

	conn := fx.dial(t, "user-1")
	sendFrame(t, conn, protocol.FrameTypeSubscribe, fx.project.ID, nil)
	if ack := readFrame(t, conn, 2*time.Second); ack.Type != protocol.FrameTypeSubscribed {
		t.Fatalf("expected subscribed ack, got %s", ack.Type)
	}

	sendFrame(t, conn, protocol.FrameTypeUnsubscribe, fx.project.ID, nil)
	if ack := readFrame(t, conn, 2*time.Second); ack.Type != protocol.FrameTypeUnsubscribed {
		t.Fatalf("expected unsubscribed ack, got %s", ack.Type)
	}

	// A stream started after the unsubscribe is not delivered here.
	sendFrame(t, conn, protocol.FrameTypeAgentSearch, fx.project.ID, protocol.SearchPayload{Query: "q"})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("unsubscribed client still received stream frames")
	}
}
