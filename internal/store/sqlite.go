package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteBusyTimeoutMS = 5000

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS server_info (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	key  TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS pass_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id   INTEGER NOT NULL REFERENCES server_info(id),
	player_id   TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS pass_log_client_id ON pass_log(client_id);
`

// SQLiteStore is a Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	cleanupOnErr := true
	defer func() {
		if cleanupOnErr {
			_ = db.Close()
		}
	}()

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	statements := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeoutMS),
		sqliteSchema,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply %q: %w", firstLine(stmt), err)
		}
	}

	cleanupOnErr = false
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM server_info WHERE key = ?`, key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup key: %w", err)
	}
	return name, true, nil
}

func (s *SQLiteStore) Register(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	key := newKey()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO server_info (name, key) VALUES (?, ?)`, name, key); err != nil {
		return "", fmt.Errorf("insert server: %w", err)
	}
	return key, nil
}

func (s *SQLiteStore) ClientID(ctx context.Context, key string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM server_info WHERE key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query client id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) RecordPass(ctx context.Context, clientID int64, playerID, remoteAddr string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pass_log (client_id, player_id, remote_addr, created_at) VALUES (?, ?, ?, ?)`,
		clientID, playerID, remoteAddr, nowMS(),
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PassCount(ctx context.Context, clientID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pass_log WHERE client_id = ?`, clientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count passes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ensureParentDir(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == ":memory:" || strings.HasPrefix(trimmed, "file:") {
		return nil
	}
	parentDir := filepath.Dir(trimmed)
	if parentDir == "." || parentDir == "" {
		return nil
	}
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("create parent directory %q: %w", parentDir, err)
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
