package session

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/autowhitelist/internal/router"
)

// Errors
var (
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	ErrVerifyTimeout    = errors.New("verification timeout")
	ErrBadHello         = errors.New("invalid hello frame")
	ErrRouterClosed     = errors.New("outbound channel closed by router")
)

// Router is the subset of the router a session depends on.
type Router interface {
	Connect(ctx context.Context) (router.ConnID, <-chan string, error)
	Verify(ctx context.Context, key string, id router.ConnID) (string, error)
	Disconnect(id router.ConnID)
}

// Config holds configuration for a Session.
type Config struct {
	HeartbeatInterval time.Duration // Default: 5s
	HeartbeatTimeout  time.Duration // Default: 10s, also the verification deadline
	WriteTimeout      time.Duration // Default: 5s
	MaxMessageSize    int64         // Default: 4096
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		MaxMessageSize:    4096,
	}
}

// State is the lifecycle position of a session.
type State int32

const (
	StateUnverified State = iota
	StateVerified
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// inbound is one read result handed from the reader goroutine to Run.
type inbound struct {
	msgType int
	data    []byte
	err     error
}
