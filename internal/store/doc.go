// Package store persists registered game servers and their pass log.
//
// A registered server has a numeric client id, a display name and a secret
// key. The relay only needs Lookup on its hot path; the HTTP API uses the
// rest. Backends: in-memory, SQLite (modernc.org/sqlite), PostgreSQL (pgx)
// and bbolt. CachedStore wraps any backend with an expiring LRU of lookup
// hits.
package store
