// Package hostname encodes synthesized names into DNS-safe hostnames and keeps
// the per-run record of which entity owns each encoded name.
package hostname

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// MaxLabel is the longest DNS label a hostname may use
const MaxLabel = 63

const hashLen = 8

// Entry is one registered hostname
type Entry struct {
	Name    string `yaml:"name"`
	Encoded string `yaml:"encoded"`
	Owner   string `yaml:"owner"`
}

// Registry maps encoded hostnames back to the names and owners that produced
// them. One registry lives for one run.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Encode turns a name into a lowercase DNS label. Names longer than MaxLabel
// are truncated and suffixed with a hash of the full name.
func Encode(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	enc := strings.Trim(b.String(), "-")
	if len(enc) <= MaxLabel {
		return enc
	}
	sum := sha256.Sum256([]byte(name))
	head := strings.TrimRight(enc[:MaxLabel-hashLen-1], "-")
	return head + "-" + hex.EncodeToString(sum[:])[:hashLen]
}

// Register encodes name for owner. When a different owner already held the
// encoded name it is replaced and returned so the caller can report it.
func (r *Registry) Register(name, owner string) (encoded string, previous string) {
	encoded = Encode(name)
	key := strings.ToUpper(encoded)
	if old, ok := r.entries[key]; ok && old.Owner != owner {
		previous = old.Owner
	}
	r.entries[key] = &Entry{Name: name, Encoded: encoded, Owner: owner}
	return encoded, previous
}

// Decode returns the registered entry of an encoded hostname, in any case
func (r *Registry) Decode(encoded string) (Entry, bool) {
	e, ok := r.entries[strings.ToUpper(encoded)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns every registration ordered by encoded name
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Encoded < out[j].Encoded })
	return out
}

// Len returns the number of registered hostnames
func (r *Registry) Len() int {
	return len(r.entries)
}
