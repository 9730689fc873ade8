package storage

import (
	"sort"
)

// MemoryStore keeps documents in memory. It backs unit tests and dry runs.
type MemoryStore struct {
	docs map[string]map[string]interface{}
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]interface{})}
}

func (s *MemoryStore) doc(namespace string) map[string]interface{} {
	d, ok := s.docs[namespace]
	if !ok {
		d = make(map[string]interface{})
		s.docs[namespace] = d
	}
	return d
}

func (s *MemoryStore) Get(namespace string, keys ...string) (interface{}, bool, error) {
	v, ok := lookup(s.doc(namespace), keys)
	return v, ok, nil
}

func (s *MemoryStore) Put(namespace string, values map[string]interface{}) error {
	d := s.doc(namespace)
	for k, v := range values {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		d[k] = nv
	}
	return nil
}

func (s *MemoryStore) Delete(namespace string, keys ...string) error {
	remove(s.doc(namespace), keys)
	return nil
}

func (s *MemoryStore) Document(namespace string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.docs[namespace]))
	for k, v := range s.docs[namespace] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Namespaces() ([]string, error) {
	names := make([]string, 0, len(s.docs))
	for ns, d := range s.docs {
		if len(d) > 0 {
			names = append(names, ns)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
