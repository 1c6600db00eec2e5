package ws

import (
	"testing"
	"time"

	"github.com/regassist/backend/pkg/protocol"
)

func newFrame(t *testing.T, frameType protocol.FrameType, projectID string, payload interface{}) *protocol.Frame {
	t.Helper()
	frame, err := protocol.New(frameType, projectID, payload)
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	return frame
}

// drain reads every message currently queued for the client.
func drain(client *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case data, ok := <-client.SendChan():
			if !ok {
				return out
			}
			out = append(out, data)
		default:
			return out
		}
	}
}

func TestHubBroadcastFiltersBySubscription(t *testing.T) {
	hub := NewHub()

	subscribed := NewClient(hub, nil, "user-1")
	subscribed.Subscribe("p1")
	other := NewClient(hub, nil, "user-2")
	other.Subscribe("p2")
	unsubscribed := NewClient(hub, nil, "user-3")

	hub.Register(subscribed)
	hub.Register(other)
	hub.Register(unsubscribed)

	frame := newFrame(t, protocol.FrameTypeResponseStream, "p1", protocol.StreamChunkPayload{
		Chunk:    "hello",
		StreamID: "s1",
	})
	if err := hub.Broadcast(frame); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	if got := len(drain(subscribed)); got != 1 {
		t.Errorf("subscribed client received %d messages, want 1", got)
	}
	if got := len(drain(other)); got != 0 {
		t.Errorf("client subscribed to another project received %d messages, want 0", got)
	}
	if got := len(drain(unsubscribed)); got != 0 {
		t.Errorf("unsubscribed client received %d messages, want 0", got)
	}
}

func TestHubBroadcastUnscopedReachesAll(t *testing.T) {
	hub := NewHub()

	a := NewClient(hub, nil, "user-1")
	b := NewClient(hub, nil, "user-2")
	hub.Register(a)
	hub.Register(b)

	frame := newFrame(t, protocol.FrameTypePong, "", nil)
	if err := hub.Broadcast(frame); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Error("unscoped frame did not reach every client")
	}
}

func TestHubBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()

	sender := NewClient(hub, nil, "user-1")
	sender.Subscribe("p1")
	receiver := NewClient(hub, nil, "user-2")
	receiver.Subscribe("p1")
	hub.Register(sender)
	hub.Register(receiver)

	frame := newFrame(t, protocol.FrameTypeUserTyping, "p1", protocol.TypingPayload{UserID: "user-1"})
	if err := hub.BroadcastExcept(frame, sender); err != nil {
		t.Fatalf("BroadcastExcept() error = %v", err)
	}

	if got := len(drain(sender)); got != 0 {
		t.Errorf("sender received its own frame")
	}
	if got := len(drain(receiver)); got != 1 {
		t.Errorf("receiver got %d messages, want 1", got)
	}
}

func TestHubSubscriberCount(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 3; i++ {
		client := NewClient(hub, nil, "user")
		client.Subscribe("p1")
		hub.Register(client)
	}
	bystander := NewClient(hub, nil, "user")
	hub.Register(bystander)

	if got := hub.SubscriberCount("p1"); got != 3 {
		t.Errorf("SubscriberCount(p1) = %d, want 3", got)
	}
	if got := hub.ClientCount(); got != 4 {
		t.Errorf("ClientCount() = %d, want 4", got)
	}
}

func TestHubUnregisterFiresOnClose(t *testing.T) {
	hub := NewHub()

	closed := make(chan struct{}, 1)
	hub.SetOnClose(func() { closed <- struct{}{} })

	client := NewClient(hub, nil, "user-1")
	hub.Register(client)
	hub.Unregister(client)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("onClose did not fire when the last client left")
	}
	if !client.IsClosed() {
		t.Error("unregistered client was not closed")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, "user-1")

	client.Close()
	client.Send([]byte("late")) // must not panic on the closed channel
}

func TestClientOverflowCloses(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, "user-1")

	// Nothing drains the channel; pushing past its capacity closes the
	// client rather than blocking the broadcaster.
	for i := 0; i < 300; i++ {
		client.Send([]byte("x"))
	}
	if !client.IsClosed() {
		t.Error("client with a full send buffer was not closed")
	}
}

func TestClientSubscriptionSet(t *testing.T) {
	client := NewClient(NewHub(), nil, "user-1")

	client.Subscribe("p1")
	client.Subscribe("p2")
	client.Unsubscribe("p1")

	if client.IsSubscribed("p1") {
		t.Error("p1 still subscribed after Unsubscribe")
	}
	if !client.IsSubscribed("p2") {
		t.Error("p2 lost its subscription")
	}
	if got := len(client.Subscriptions()); got != 1 {
		t.Errorf("Subscriptions() has %d entries, want 1", got)
	}
}
