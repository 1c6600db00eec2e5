// Package ws provides WebSocket connection handling and frame routing
// for the regulatory assistant's real-time layer.
//
// The package implements:
//   - Hub: Manages connected clients and subscription-filtered broadcast
//   - Client: One WebSocket connection with its project subscription set
//   - Handler: Dispatches inbound frames (subscribe, search, interrupt, typing, ping)
//   - Service: Runs agent streams and emits their frame sequences
//
// Key behaviors:
//   - One physical connection per client, multiplexing any number of
//     project subscriptions
//   - Recent frames are replayed on subscribe so reconnecting clients
//     recover in-flight stream output
//   - A new search for a project interrupts the previous stream: last
//     start wins
//   - User interruption is a normal terminal transition, not an error
package ws
