package storage

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Store defines the interface for persisted state.
// A namespace is one named document (e.g. "ip_addresses"); keys address
// nested maps inside it.
type Store interface {
	// Get returns the value at the key path, and false when absent
	Get(namespace string, keys ...string) (interface{}, bool, error)

	// Put merges the top-level keys into the document and rewrites it
	Put(namespace string, values map[string]interface{}) error

	// Delete removes the value at the key path and rewrites the document
	Delete(namespace string, keys ...string) error

	// Document returns a copy of the whole document
	Document(namespace string) (map[string]interface{}, error)

	// Namespaces lists the documents held by the store
	Namespaces() ([]string, error)

	// Close releases the backend
	Close() error
}

// Decode converts a stored value into a typed record
func Decode(raw interface{}, out interface{}) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

// normalize converts typed records into the generic map form every backend stores
func normalize(v interface{}) (interface{}, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// lookup walks nested maps
func lookup(doc map[string]interface{}, keys []string) (interface{}, bool) {
	if len(keys) == 0 {
		return doc, true
	}
	var cur interface{} = doc
	for _, k := range keys {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// remove deletes the value at the key path and reports whether anything changed
func remove(doc map[string]interface{}, keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	parent, ok := lookup(doc, keys[:len(keys)-1])
	if !ok {
		return false
	}
	m, ok := parent.(map[string]interface{})
	if !ok {
		return false
	}
	last := keys[len(keys)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}

// SortedKeys returns the top-level keys of a document in order
func SortedKeys(doc map[string]interface{}) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the given namespaces of a store into a fresh memory store
func Snapshot(src Store, namespaces ...string) (*MemoryStore, error) {
	dst := NewMemoryStore()
	for _, ns := range namespaces {
		doc, err := src.Document(ns)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", ns, err)
		}
		if len(doc) == 0 {
			continue
		}
		if err := dst.Put(ns, doc); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// Open returns the store for a backend name
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendBolt:
		return NewBoltStore(dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)
