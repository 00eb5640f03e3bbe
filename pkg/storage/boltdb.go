package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/tunnelgroup/pkg/types"
)

const (
	// DBFile is the journal file name inside the data directory
	DBFile = "tunnelgroup.db"

	// OpenTimeout bounds the wait for another process holding the journal
	OpenTimeout = time.Second
)

var (
	// Bucket names
	bucketMigrations  = []byte("migrations")
	bucketTransitions = []byte("transitions")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMigrations, bucketTransitions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Migration operations
func (s *BoltStore) RecordMigration(rec *types.MigrationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMigrations)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.LegacyFile), data)
	})
}

func (s *BoltStore) GetMigration(legacyFile string) (*types.MigrationRecord, error) {
	var rec types.MigrationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMigrations)
		data := b.Get([]byte(legacyFile))
		if data == nil {
			return fmt.Errorf("migration not found: %s", legacyFile)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListMigrations() ([]*types.MigrationRecord, error) {
	var recs []*types.MigrationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMigrations)
		return b.ForEach(func(k, v []byte) error {
			var rec types.MigrationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

// Transition operations

// RecordTransition appends a state change. Entries are keyed by a
// monotonically increasing sequence so iteration returns them in order.
func (s *BoltStore) RecordTransition(t *types.Transition) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransitions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// ListTransitions returns the transitions of one group, oldest first. An
// empty group name returns every transition.
func (s *BoltStore) ListTransitions(group string) ([]*types.Transition, error) {
	var out []*types.Transition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransitions)
		return b.ForEach(func(k, v []byte) error {
			var t types.Transition
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if group == "" || t.Group == group {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
