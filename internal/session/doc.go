// Package session runs one WebSocket connection against the router.
//
// A session starts Unverified. The first text frame must be a hello carrying
// the client's key; a successful verification moves the session to Verified
// and routed payloads are written as notification frames from then on.
// Every exit path (peer close, read or write error, missed heartbeat,
// verification deadline, server shutdown) ends in the same teardown, which
// disconnects from the router exactly once before closing the socket.
package session
