package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrUnknownKey        = errors.New("unknown key")
	ErrDuplicateKey      = errors.New("key already bound to another connection")
	ErrUnknownConnection = errors.New("connection not registered")
	ErrAlreadyBound      = errors.New("connection already bound to another key")
	ErrStopped           = errors.New("router stopped")
)

// ConnID identifies one registered connection. Never reused while live.
type ConnID uuid.UUID

// String returns the canonical UUID form.
func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

// CredentialLookup resolves a key to its owner's display name.
// Implementations must be safe for concurrent use.
type CredentialLookup interface {
	Lookup(ctx context.Context, key string) (name string, found bool, err error)
}

// Config holds configuration for the Router.
type Config struct {
	SweepInterval      time.Duration // Default: 5s
	PendingTTL         time.Duration // Default: 0 (queued payloads never expire)
	LookupTimeout      time.Duration // Default: 5s
	OutboundBufferSize int           // Default: 16
	InboxSize          int           // Initial mailbox capacity. Default: 1024
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		SweepInterval:      5 * time.Second,
		LookupTimeout:      5 * time.Second,
		OutboundBufferSize: 16,
		InboxSize:          1024,
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections     int          `json:"connections"`
	Bindings        int          `json:"bindings"`
	PendingKeys     int          `json:"pending_keys"`
	PendingPayloads int          `json:"pending_payloads"`
	Delivered       int64        `json:"delivered"`
	Queued          int64        `json:"queued"`
	Expired         int64        `json:"expired"`
	Rejected        int64        `json:"rejected"`
	Inbox           MailboxStats `json:"inbox"`
}

// binding ties a verified key to its connection.
type binding struct {
	key   string
	conn  ConnID
	name  string
	since time.Time
}

// command is the closed set of messages the run loop accepts.
type command interface {
	command()
}

type connectResult struct {
	id  ConnID
	out <-chan string
}

type verifyResult struct {
	name string
	err  error
}

type (
	connectCmd struct {
		reply chan connectResult
	}
	verifyCmd struct {
		key   string
		id    ConnID
		reply chan verifyResult
	}
	// lookupDoneCmd carries a credential lookup back onto the run loop.
	lookupDoneCmd struct {
		req   verifyCmd
		name  string
		found bool
		err   error
	}
	deliverCmd struct {
		key     string
		payload string
	}
	disconnectCmd struct {
		id ConnID
	}
	onlineCmd struct {
		key   string
		reply chan bool
	}
	pendingCmd struct {
		key   string
		reply chan []string
	}
	statsCmd struct {
		reply chan Stats
	}
)

func (connectCmd) command()    {}
func (verifyCmd) command()     {}
func (lookupDoneCmd) command() {}
func (deliverCmd) command()    {}
func (disconnectCmd) command() {}
func (onlineCmd) command()     {}
func (pendingCmd) command()    {}
func (statsCmd) command()      {}

// redactKey shortens a shared secret for logs.
func redactKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "..."
}
