// Package connection is the game-server side of the relay WebSocket.
//
// A Client owns one connection: it sends the hello frame, decodes server
// frames, answers relay pings and reports the connection stale when the relay
// stops pinging. Keep wraps a Client in a reconnect loop with exponential
// backoff.
package connection
