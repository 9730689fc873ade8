// Package artifacts writes the documents derived from the resolved model.
// Every document is rendered from sorted maps and stable slices, so an
// unchanged input produces byte-identical files.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/cloudcfg/pkg/storage"
)

// File names written into the output directory
const (
	ResolvedFile   = "resolved.yml"
	AddressMapFile = "address_map.yml"
	InventoryFile  = "inventory.yml"
	FirewallFile   = "firewall.yml"
)

// Writer renders documents into one output directory
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Path returns where a document is written
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *Writer) write(name string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := storage.WriteFileAtomic(w.Path(name), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
