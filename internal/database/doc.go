// Package database opens the PostgreSQL pool backing the credential store
// when store.backend is "postgres".
package database
