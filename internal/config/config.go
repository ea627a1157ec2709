package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Router   RouterConfig   `yaml:"router"`
	Store    StoreConfig    `yaml:"store"`
	Database DBConfig       `yaml:"database"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Bolt     BoltConfig     `yaml:"bolt"`
	Quiz     QuizConfig     `yaml:"quiz"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // empty or ["*"] = allow all
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	WebDir          string        `yaml:"web_dir"` // templates/ and resources/; empty = API only
}

// SessionConfig holds per-connection heartbeat and verification settings.
type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"` // also the verification deadline
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
}

// RouterConfig holds connection registry settings.
type RouterConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	PendingTTL         time.Duration `yaml:"pending_ttl"` // 0 = queued payloads never expire
	OutboundBufferSize int           `yaml:"outbound_buffer_size"`
	InboxSize          int           `yaml:"inbox_size"`
	LookupTimeout      time.Duration `yaml:"lookup_timeout"`
}

// StoreConfig selects the credential backend.
type StoreConfig struct {
	Backend   string        `yaml:"backend"` // memory, sqlite, postgres, bolt
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// DBConfig holds a PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds the SQLite database file location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// BoltConfig holds the bbolt database file location.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// QuizConfig holds quiz storage settings.
type QuizConfig struct {
	Dir            string `yaml:"dir"`
	SelfHosted     bool   `yaml:"self_hosted"`
	SelfHostedFile string `yaml:"self_hosted_file"`
	SelfHostedKey  string `yaml:"self_hosted_key"`
}
