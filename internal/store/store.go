package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/autowhitelist/internal/config"
)

// Errors
var (
	ErrNotFound    = errors.New("client not found")
	ErrEmptyName   = errors.New("server name is empty")
	ErrUnknownKind = errors.New("unknown store backend")
)

// Store is the credential and pass-log backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup resolves a key to its server name. A miss is not an error.
	Lookup(ctx context.Context, key string) (name string, found bool, err error)

	// Register creates a server entry and returns its new key.
	Register(ctx context.Context, name string) (key string, err error)

	// ClientID returns the numeric id for key, or ErrNotFound.
	ClientID(ctx context.Context, key string) (int64, error)

	// RecordPass appends a pass-log entry for a player.
	RecordPass(ctx context.Context, clientID int64, playerID, remoteAddr string) error

	// PassCount returns the number of passes recorded for clientID.
	PassCount(ctx context.Context, clientID int64) (int64, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// PassRecord is one successful quiz submission.
type PassRecord struct {
	ClientID   int64     `cbor:"1,keyasint"`
	PlayerID   string    `cbor:"2,keyasint"`
	RemoteAddr string    `cbor:"3,keyasint"`
	CreatedAt  time.Time `cbor:"4,keyasint"`
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

// newKey mints a fresh server key.
func newKey() string {
	return uuid.NewString()
}

// Open creates the backend selected by cfg.Store.Backend, wrapped in a
// lookup cache when cfg.Store.CacheSize > 0.
func Open(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		s   Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		s = NewMemoryStore()
	case config.BackendSQLite:
		s, err = OpenSQLite(ctx, cfg.SQLite.Path)
	case config.BackendPostgres:
		s, err = OpenPostgres(ctx, cfg.Database)
	case config.BackendBolt:
		s, err = OpenBolt(cfg.Bolt.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	logger.Info("store opened", "backend", cfg.Store.Backend)

	if cfg.Store.CacheSize > 0 {
		s = NewCachedStore(s, cfg.Store.CacheSize, cfg.Store.CacheTTL)
		logger.Debug("lookup cache enabled",
			"size", cfg.Store.CacheSize,
			"ttl", cfg.Store.CacheTTL,
		)
	}

	return s, nil
}
