package connection

import (
	"errors"
	"time"

	"github.com/rickgao/autowhitelist/internal/protocol"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrRejected        = errors.New("relay rejected the key")
)

// Frame is a decoded server frame with the local receive time.
type Frame struct {
	protocol.ServerFrame
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a relay client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://127.0.0.1:8081/ws)
	Key          string        // Server key sent in the hello frame
	PingTimeout  time.Duration // Max time without ping before considering connection stale
	PingInterval time.Duration // How often to ping the relay and check staleness
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults. The relay pings every 5s.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  15 * time.Second,
		PingInterval: 5 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// KeepConfig configures the reconnect loop.
type KeepConfig struct {
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultKeepConfig returns sensible defaults.
func DefaultKeepConfig() KeepConfig {
	return KeepConfig{
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}
