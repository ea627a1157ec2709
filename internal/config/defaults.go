package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "relay"
	DefaultAddr               = "127.0.0.1:8081"
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultHeartbeatTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMaxMessageSize     = 4096
	DefaultSweepInterval      = 5 * time.Second
	DefaultOutboundBufferSize = 16
	DefaultInboxSize          = 1024
	DefaultLookupTimeout      = 5 * time.Second
	DefaultBackend            = BackendSQLite
	DefaultCacheSize          = 256
	DefaultCacheTTL           = 5 * time.Minute
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultSQLitePath         = "data.db"
	DefaultBoltPath           = "data.bolt"
	DefaultQuizDir            = "tests"
	DefaultSelfHostedFile     = "0.json"
)

// Credential store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// ApplyDefaults fills every unset field with its default.
func (c *RelayConfig) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Session defaults
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Session.HeartbeatTimeout == 0 {
		c.Session.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = DefaultMaxMessageSize
	}

	// Router defaults
	if c.Router.SweepInterval == 0 {
		c.Router.SweepInterval = DefaultSweepInterval
	}
	if c.Router.OutboundBufferSize == 0 {
		c.Router.OutboundBufferSize = DefaultOutboundBufferSize
	}
	if c.Router.InboxSize == 0 {
		c.Router.InboxSize = DefaultInboxSize
	}
	if c.Router.LookupTimeout == 0 {
		c.Router.LookupTimeout = DefaultLookupTimeout
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultBackend
	}
	if c.Store.CacheSize == 0 {
		c.Store.CacheSize = DefaultCacheSize
	}
	if c.Store.CacheTTL == 0 {
		c.Store.CacheTTL = DefaultCacheTTL
	}
	applyDBDefaults(&c.Database)
	if c.SQLite.Path == "" {
		c.SQLite.Path = DefaultSQLitePath
	}
	if c.Bolt.Path == "" {
		c.Bolt.Path = DefaultBoltPath
	}

	// Quiz defaults
	if c.Quiz.Dir == "" {
		c.Quiz.Dir = DefaultQuizDir
	}
	if c.Quiz.SelfHostedFile == "" {
		c.Quiz.SelfHostedFile = DefaultSelfHostedFile
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
