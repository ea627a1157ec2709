package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	if c.Session.HeartbeatInterval <= 0 {
		return errors.New("session.heartbeat_interval must be > 0")
	}
	if c.Session.HeartbeatTimeout <= c.Session.HeartbeatInterval {
		return fmt.Errorf("session.heartbeat_timeout (%s) must exceed heartbeat_interval (%s)",
			c.Session.HeartbeatTimeout, c.Session.HeartbeatInterval)
	}
	if c.Session.MaxMessageSize < 1 {
		return errors.New("session.max_message_size must be >= 1")
	}

	if c.Router.SweepInterval <= 0 {
		return errors.New("router.sweep_interval must be > 0")
	}
	if c.Router.PendingTTL < 0 {
		return errors.New("router.pending_ttl must be >= 0")
	}
	if c.Router.OutboundBufferSize < 1 {
		return errors.New("router.outbound_buffer_size must be >= 1")
	}
	if c.Router.InboxSize < 1 {
		return errors.New("router.inbox_size must be >= 1")
	}

	if c.Store.CacheSize < 0 {
		return errors.New("store.cache_size must be >= 0")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required")
		}
	case BackendBolt:
		if c.Bolt.Path == "" {
			return errors.New("bolt.path is required")
		}
	case BackendPostgres:
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, sqlite, postgres, bolt", c.Store.Backend)
	}

	if c.Quiz.SelfHosted && c.Quiz.SelfHostedKey == "" {
		return errors.New("quiz.self_hosted_key is required in self-hosted mode")
	}
	if !c.Quiz.SelfHosted && c.Quiz.Dir == "" {
		return errors.New("quiz.dir is required")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
