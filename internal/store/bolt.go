package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var (
	bucketServers = []byte("servers")
	bucketPasses  = []byte("passes")
)

// serverRecord is the bbolt value stored under a server key.
type serverRecord struct {
	ID        int64     `cbor:"1,keyasint"`
	Name      string    `cbor:"2,keyasint"`
	CreatedAt time.Time `cbor:"3,keyasint"`
}

// BoltStore is a Store on a single bbolt file.
// Pass entries are keyed by big-endian client id followed by a sequence so a
// prefix scan counts one client's passes.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketServers, bucketPasses} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) get(tx *bbolt.Tx, key string) (serverRecord, bool, error) {
	data := tx.Bucket(bucketServers).Get([]byte(key))
	if data == nil {
		return serverRecord{}, false, nil
	}
	var rec serverRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return serverRecord{}, false, fmt.Errorf("unmarshal server record: %w", err)
	}
	return rec, true, nil
}

func (s *BoltStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var (
		rec   serverRecord
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, found, err = s.get(tx, key)
		return err
	})
	return rec.Name, found, err
}

func (s *BoltStore) Register(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	key := newKey()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketServers)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := cbor.Marshal(serverRecord{ID: int64(id), Name: name, CreatedAt: time.Now()})
		if err != nil {
			return fmt.Errorf("marshal server record: %w", err)
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("insert server: %w", err)
	}
	return key, nil
}

func (s *BoltStore) ClientID(ctx context.Context, key string) (int64, error) {
	var (
		rec   serverRecord
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, found, err = s.get(tx, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return rec.ID, nil
}

func (s *BoltStore) RecordPass(ctx context.Context, clientID int64, playerID, remoteAddr string) error {
	data, err := cbor.Marshal(PassRecord{
		ClientID:   clientID,
		PlayerID:   playerID,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal pass record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPasses)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		k := make([]byte, 16)
		binary.BigEndian.PutUint64(k[:8], uint64(clientID))
		binary.BigEndian.PutUint64(k[8:], seq)
		return b.Put(k, data)
	})
}

func (s *BoltStore) PassCount(ctx context.Context, clientID int64) (int64, error) {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(clientID))

	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPasses).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketServers) == nil {
			return fmt.Errorf("bucket %q missing", bucketServers)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
