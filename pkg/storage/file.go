package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileExt = ".yml"

// FileStore keeps one YAML document per namespace in a directory.
// Every write rewrites the whole document through a temp file and rename, so an
// interrupted run leaves the previous or the new document, never a torn one.
type FileStore struct {
	dir   string
	cache *MemoryStore
	// loaded tracks which namespaces have been read from disk
	loaded map[string]bool
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		cache:  NewMemoryStore(),
		loaded: make(map[string]bool),
	}, nil
}

// Path returns the file holding a namespace
func (s *FileStore) Path(namespace string) string {
	return filepath.Join(s.dir, namespace+fileExt)
}

func (s *FileStore) load(namespace string) error {
	if s.loaded[namespace] {
		return nil
	}
	data, err := os.ReadFile(s.Path(namespace))
	if os.IsNotExist(err) {
		s.loaded[namespace] = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", namespace, err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.Path(namespace), err)
	}
	s.cache.docs[namespace] = make(map[string]interface{}, len(doc))
	for k, v := range doc {
		s.cache.docs[namespace][k] = v
	}
	s.loaded[namespace] = true
	return nil
}

func (s *FileStore) write(namespace string) error {
	doc := s.cache.doc(namespace)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", namespace, err)
	}

	if err := WriteFileAtomic(s.Path(namespace), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", namespace, err)
	}
	return nil
}

// WriteFileAtomic replaces path with data through a synced temp file in the
// same directory, so readers see either the old or the new content
func WriteFileAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) Get(namespace string, keys ...string) (interface{}, bool, error) {
	if err := s.load(namespace); err != nil {
		return nil, false, err
	}
	return s.cache.Get(namespace, keys...)
}

func (s *FileStore) Put(namespace string, values map[string]interface{}) error {
	if err := s.load(namespace); err != nil {
		return err
	}
	if err := s.cache.Put(namespace, values); err != nil {
		return err
	}
	return s.write(namespace)
}

func (s *FileStore) Delete(namespace string, keys ...string) error {
	if err := s.load(namespace); err != nil {
		return err
	}
	if !remove(s.cache.doc(namespace), keys) {
		return nil
	}
	return s.write(namespace)
}

func (s *FileStore) Document(namespace string) (map[string]interface{}, error) {
	if err := s.load(namespace); err != nil {
		return nil, err
	}
	return s.cache.Document(namespace)
}

func (s *FileStore) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Close() error {
	return nil
}
