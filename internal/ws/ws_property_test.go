package ws

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/regassist/backend/pkg/protocol"
)

// TestBroadcastDeliveryProperty checks that for any subscription layout,
// a project-scoped frame reaches exactly the clients subscribed to that
// project, and the frame body survives the wire encoding intact.
func TestBroadcastDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("project frames reach exactly the subscribed clients", prop.ForAll(
		func(subscriptions []bool, target uint8) bool {
			if len(subscriptions) == 0 {
				return true
			}
			projectID := fmt.Sprintf("p%d", int(target)%3)

			hub := NewHub()
			clients := make([]*Client, len(subscriptions))
			for i, subscribed := range subscriptions {
				clients[i] = NewClient(hub, nil, fmt.Sprintf("user-%d", i))
				if subscribed {
					clients[i].Subscribe(projectID)
				}
				hub.Register(clients[i])
			}

			frame, err := protocol.New(protocol.FrameTypeResponseStream, projectID, protocol.StreamChunkPayload{
				Chunk:    "data",
				StreamID: "s1",
			})
			if err != nil {
				return false
			}
			if err := hub.Broadcast(frame); err != nil {
				return false
			}

			for i, client := range clients {
				got := len(drain(client))
				want := 0
				if subscriptions[i] {
					want = 1
				}
				if got != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
		gen.UInt8(),
	))

	properties.Property("chunk payloads survive encode and decode", prop.ForAll(
		func(chunk, streamID string) bool {
			frame, err := protocol.New(protocol.FrameTypeResponseStream, "p1", protocol.StreamChunkPayload{
				Chunk:    chunk,
				StreamID: streamID,
			})
			if err != nil {
				return false
			}

			data, err := frame.Encode()
			if err != nil {
				return false
			}
			decoded, err := protocol.Decode(data)
			if err != nil {
				return false
			}

			var payload protocol.StreamChunkPayload
			if err := decoded.DecodePayload(&payload); err != nil {
				return false
			}
			return payload.Chunk == chunk && payload.StreamID == streamID
		},
		gen.AnyString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
