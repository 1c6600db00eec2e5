// Package streamclient implements the client side of the regulatory
// assistant's real-time layer: one persistent WebSocket connection that
// multiplexes per-project subscriptions and carries incremental agent
// responses.
//
// The package implements:
//   - Conn: Owns the transport, reconnects with capped exponential
//     backoff, and queues outbound frames in a bounded outbox while down
//   - Router: Dispatches inbound frames to per-type handlers in
//     registration order; unsubscribe is the closure Subscribe returns
//   - Subscriptions: The client's project interest set, re-announced to
//     the server after every reconnect
//   - StreamSession: Accumulates one agent response turn, driven by
//     typing_start/chunk/typing_stop/error events, with mid-stream
//     interruption
//   - Presence: Debounced per-user typing indicators that expire without
//     an explicit stop event
//
// Nothing in this package raises transport failures to its callers;
// every failure mode degrades to an observable state. All inbound
// frames dispatch in receipt order on the connection's read goroutine,
// and each handler runs to completion before the next frame is read.
// Consumers must call Close on sessions, presence aggregators, and the
// connection itself on teardown; the Close methods detach handlers and
// cancel timers.
package streamclient
