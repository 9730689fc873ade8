package storage

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

// BoltStore implements Store using BoltDB: one bucket per namespace and one
// YAML-encoded value per top-level key.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "state.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(namespace string, keys ...string) (interface{}, bool, error) {
	if len(keys) == 0 {
		doc, err := s.Document(namespace)
		return doc, true, err
	}

	var raw interface{}
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(keys[0]))
		if data == nil {
			return nil
		}
		found = true
		return yaml.Unmarshal(data, &raw)
	})
	if err != nil || !found {
		return nil, false, err
	}

	v, ok := lookup(map[string]interface{}{keys[0]: raw}, keys)
	return v, ok, nil
}

func (s *BoltStore) Put(namespace string, values map[string]interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", namespace, err)
		}
		for k, v := range values {
			data, err := yaml.Marshal(v)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Delete(namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		if len(keys) == 1 {
			return b.Delete([]byte(keys[0]))
		}

		data := b.Get([]byte(keys[0]))
		if data == nil {
			return nil
		}
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return err
		}
		doc := map[string]interface{}{keys[0]: raw}
		if !remove(doc, keys) {
			return nil
		}
		data, err := yaml.Marshal(doc[keys[0]])
		if err != nil {
			return err
		}
		return b.Put([]byte(keys[0]), data)
	})
}

func (s *BoltStore) Document(namespace string) (map[string]interface{}, error) {
	doc := make(map[string]interface{})
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var raw interface{}
			if err := yaml.Unmarshal(v, &raw); err != nil {
				return err
			}
			doc[string(k)] = raw
			return nil
		})
	})
	return doc, err
}

func (s *BoltStore) Namespaces() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if k, _ := b.Cursor().First(); k != nil {
				names = append(names, string(name))
			}
			return nil
		})
	})
	return names, err
}
