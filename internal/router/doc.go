// Package router implements the connection registry.
//
// The Router:
//   - Mints a ConnID and an outbound channel for every accepted WebSocket
//   - Binds a verified key to exactly one live connection
//   - Routes Deliver(key, payload) to the bound connection without blocking
//   - Queues payloads per key while the key is offline or its channel is full
//   - Sweeps the queues on a fixed interval, preserving per-key order
//
// All state is owned by a single goroutine that consumes commands from an
// unbounded Mailbox one at a time; no other goroutine touches the maps.
package router
