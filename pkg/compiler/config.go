package compiler

import "github.com/cuemby/cloudcfg/pkg/storage"

// Config holds the options of one compile run
type Config struct {
	// Inputs are model files or directories, read in order
	Inputs []string

	StateDir     string
	StateBackend string

	// OutputDir receives the artifacts; nothing is written when empty
	OutputDir string

	RemoveDeletedServers bool
	FreeUnusedAddresses  bool

	EncryptionKey         string
	PreviousEncryptionKey string

	// MetricsFile receives the run metrics in the text exposition format
	MetricsFile string

	// DryRun works on an in-memory copy of the persisted state, leaving the
	// state directory untouched
	DryRun bool
}

// DefaultConfig returns the configuration used when no flag is given
func DefaultConfig() Config {
	return Config{
		StateDir:     "./state",
		StateBackend: storage.BackendFile,
		OutputDir:    "./output",
	}
}
