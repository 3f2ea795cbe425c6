// Package state persists discovery results across runs. The CLI history
// command and the HTTP frontend read from the same store a finished run
// writes to.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/OpenProbe/internal/param"
)

var bucketResults = []byte("results")

// Record is one stored discovery run.
type Record struct {
	StoredAt time.Time              `json:"stored_at"`
	Result   *param.DiscoveryResult `json:"result"`
}

// Store defines the interface for result storage. Load returns nil
// without an error when no record exists for the endpoint.
type Store interface {
	Save(result *param.DiscoveryResult) error
	Load(url, method string) (*Record, error)
	List() ([]Record, error)
	Delete(url, method string) error
	Close() error
}

// storeKey identifies a record by endpoint. Methods contain no spaces,
// so the key splits back unambiguously.
func storeKey(url, method string) []byte {
	return []byte(strings.ToUpper(method) + " " + url)
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed result store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResults)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Save stores the result under its URL and method, replacing any earlier
// run against the same endpoint.
func (s *BoltStore) Save(result *param.DiscoveryResult) error {
	data, err := json.Marshal(Record{
		StoredAt: time.Now().UTC(),
		Result:   result,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put(storeKey(result.URL, result.Method), data)
	})
}

// Load returns the stored record for an endpoint.
func (s *BoltStore) Load(url, method string) (*Record, error) {
	var record Record
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get(storeKey(url, method))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &record, nil
}

// List returns every stored record in key order.
func (s *BoltStore) List() ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(_, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the record for an endpoint. Deleting a missing record
// is not an error.
func (s *BoltStore) Delete(url, method string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete(storeKey(url, method))
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements Store using in-memory storage.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates a new in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save stores the result in memory.
func (s *MemoryStore) Save(result *param.DiscoveryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(storeKey(result.URL, result.Method))] = Record{
		StoredAt: time.Now().UTC(),
		Result:   result,
	}
	return nil
}

// Load returns the stored record for an endpoint.
func (s *MemoryStore) Load(url, method string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[string(storeKey(url, method))]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// List returns every stored record in key order.
func (s *MemoryStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		records = append(records, s.records[key])
	}
	return records, nil
}

// Delete removes the record for an endpoint.
func (s *MemoryStore) Delete(url, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, string(storeKey(url, method)))
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
