// Package store persists controller state in a bbolt database: scalar
// settings such as the cycle start, and a capped journal of dosing events.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	stateBucket   = "state"
	journalBucket = "dosing"
)

// Entry is one recorded actuator activation.
type Entry struct {
	ID    string `json:"id"`
	Group string `json:"group"`
	Label string `json:"label"`
	Time  int64  `json:"ts"`
}

// Store is a bbolt-backed key/value store.
type Store struct {
	db         *bolt.DB
	maxEntries int
}

// Open opens or creates the database at path. The journal keeps at most
// maxEntries entries.
func Open(path string, maxEntries int) (*Store, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("store: max entries %d", maxEntries)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	s := &Store{db: db, maxEntries: maxEntries}
	if err := s.createBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{stateBucket, journalBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetInt64 returns the value stored under key and whether it exists.
func (s *Store) GetInt64(key string) (int64, bool, error) {
	var (
		v  int64
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(stateBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("key %s: %d bytes, want 8", key, len(data))
		}
		v, ok = int64(binary.BigEndian.Uint64(data)), true
		return nil
	})
	return v, ok, err
}

// SetInt64 stores value under key.
func (s *Store) SetInt64(key string, value int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucket)).Put([]byte(key), buf)
	})
}

// RecordActivation appends an entry to the dosing journal, dropping the
// oldest entries beyond the cap.
func (s *Store) RecordActivation(group, label string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e := Entry{ID: strconv.FormatUint(seq, 10), Group: group, Label: label, Time: at.Unix()}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), data); err != nil {
			return err
		}

		c := b.Cursor()
		n := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		excess := n - s.maxEntries
		for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// Journal returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) Journal(limit int) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(journalBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("journal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
