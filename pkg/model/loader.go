// Package model loads the input model from YAML or JSON files.
package model

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// ErrNoInput is returned when no document could be loaded at all
var ErrNoInput = errors.New("no input model could be loaded")

var extensions = map[string]bool{".yml": true, ".yaml": true, ".json": true}

// Result is the merged model and the problems found on the way
type Result struct {
	Model *types.Model
	// Files lists every file that contributed at least one document
	Files []string
	// Errors holds one entry per rejected file or document
	Errors []error
}

// Loader reads input files and directories
type Loader struct {
	// MaxFileSize is the largest file read, in bytes
	MaxFileSize int64
	logger      zerolog.Logger
}

// NewLoader creates a loader with default settings
func NewLoader() *Loader {
	return &Loader{
		MaxFileSize: 10 * 1024 * 1024,
		logger:      log.WithComponent("model"),
	}
}

// Load reads every path in order. Directories are walked recursively and
// their files taken in sorted order, so the merge is deterministic.
// A broken file is reported in Result.Errors and skipped; only when nothing
// at all was loaded does Load fail.
func (l *Loader) Load(paths ...string) (*Result, error) {
	res := &Result{Model: &types.Model{}}

	for _, path := range paths {
		files, err := l.expand(path)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		for _, file := range files {
			n, errs := l.loadFile(res.Model, file)
			res.Errors = append(res.Errors, errs...)
			if n > 0 {
				res.Files = append(res.Files, file)
			}
		}
	}

	if len(res.Files) == 0 {
		return res, fmt.Errorf("%w from %v", ErrNoInput, paths)
	}
	res.Model.Normalize()

	l.logger.Info().
		Int("files", len(res.Files)).
		Int("errors", len(res.Errors)).
		Msg("Input model loaded")
	return res, nil
}

func (l *Loader) expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// loadFile merges every valid document of a file into m and returns how many
// were merged
func (l *Loader) loadFile(m *types.Model, path string) (int, []error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, []error{fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, []error{fmt.Errorf("stat %s: %w", path, err)}
	}
	if info.Size() > l.MaxFileSize {
		return 0, []error{fmt.Errorf("%s exceeds max size %d bytes", path, l.MaxFileSize)}
	}

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var (
		merged int
		errs   []error
	)
	for index := 1; ; index++ {
		var doc types.Document
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s (document %d): %w", path, index, err))
			// the decoder cannot resync after a syntax error
			var typeErr *yaml.TypeError
			if !errors.As(err, &typeErr) {
				break
			}
			continue
		}
		if doc.Product.Version != types.ProductVersion {
			errs = append(errs, fmt.Errorf("%s (document %d): unsupported product version %d, expected %d",
				path, index, doc.Product.Version, types.ProductVersion))
			continue
		}
		m.Merge(&doc)
		merged++
		l.logger.Debug().Str("file", path).Int("document", index).Msg("Document merged")
	}
	return merged, errs
}
