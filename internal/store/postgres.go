package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/autowhitelist/internal/config"
	"github.com/rickgao/autowhitelist/internal/database"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS server_info (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	key  TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS pass_log (
	id          BIGSERIAL PRIMARY KEY,
	client_id   BIGINT NOT NULL REFERENCES server_info(id),
	player_id   TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS pass_log_client_id ON pass_log(client_id);
`

// PostgresStore is a Store on a PostgreSQL pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with cfg and applies the schema.
func OpenPostgres(ctx context.Context, cfg config.DBConfig) (*PostgresStore, error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM server_info WHERE key = $1`, key).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup key: %w", err)
	}
	return name, true, nil
}

func (s *PostgresStore) Register(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	key := newKey()
	if _, err := s.pool.Exec(ctx, `INSERT INTO server_info (name, key) VALUES ($1, $2)`, name, key); err != nil {
		return "", fmt.Errorf("insert server: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) ClientID(ctx context.Context, key string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM server_info WHERE key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query client id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) RecordPass(ctx context.Context, clientID int64, playerID, remoteAddr string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pass_log (client_id, player_id, remote_addr) VALUES ($1, $2, $3)`,
		clientID, playerID, remoteAddr,
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

func (s *PostgresStore) PassCount(ctx context.Context, clientID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pass_log WHERE client_id = $1`, clientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count passes: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
