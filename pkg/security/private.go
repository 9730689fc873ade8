package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// ErrDecrypt is returned when a private value cannot be decrypted with the
// keys at hand
var ErrDecrypt = errors.New("failed to decrypt private data")

// SecretLength is the number of random bytes behind a generated secret
const SecretLength = 24

// PrivateData keeps generated secrets in the private_data namespace,
// encrypted when a key is configured
type PrivateData struct {
	store    storage.Store
	current  *SecretsManager
	previous *SecretsManager
	logger   zerolog.Logger
}

// NewPrivateData opens the private data of a store. An empty key stores
// values in plain text; previousKey, when set, is accepted for reading so
// Rotate can move every value to the current key.
func NewPrivateData(store storage.Store, key, previousKey string) (*PrivateData, error) {
	p := &PrivateData{store: store, logger: log.WithComponent("private-data")}
	var err error
	if key != "" {
		if p.current, err = NewSecretsManagerFromPassword(key); err != nil {
			return nil, err
		}
	}
	if previousKey != "" {
		if p.previous, err = NewSecretsManagerFromPassword(previousKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Encrypted reports whether new values are encrypted
func (p *PrivateData) Encrypted() bool {
	return p.current != nil
}

func (p *PrivateData) record(name string) (types.PrivateRecord, bool, error) {
	raw, ok, err := p.store.Get(types.NamespacePrivateData, name)
	if err != nil || !ok {
		return types.PrivateRecord{}, false, err
	}
	var rec types.PrivateRecord
	if err := storage.Decode(raw, &rec); err != nil {
		return types.PrivateRecord{}, false, fmt.Errorf("private data %s: %w", name, err)
	}
	return rec, true, nil
}

// open returns the plaintext of a record and whether it is already stored
// the way the current key would store it
func (p *PrivateData) open(name string, rec types.PrivateRecord) (string, bool, error) {
	if !rec.Encrypted {
		return rec.Value, p.current == nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(rec.Value)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %v", ErrDecrypt, name, err)
	}
	if p.current != nil {
		if plain, err := p.current.DecryptSecret(data); err == nil {
			return string(plain), true, nil
		}
	}
	if p.previous != nil {
		if plain, err := p.previous.DecryptSecret(data); err == nil {
			return string(plain), false, nil
		}
	}
	return "", false, fmt.Errorf("%w: %s", ErrDecrypt, name)
}

// Get returns the plaintext of a private value
func (p *PrivateData) Get(name string) (string, bool, error) {
	rec, ok, err := p.record(name)
	if err != nil || !ok {
		return "", false, err
	}
	value, _, err := p.open(name, rec)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a value, encrypting it with the current key
func (p *PrivateData) Set(name, value string) error {
	rec := types.PrivateRecord{Value: value}
	if p.current != nil {
		sealed, err := p.current.EncryptSecret([]byte(value))
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", name, err)
		}
		rec = types.PrivateRecord{Value: base64.StdEncoding.EncodeToString(sealed), Encrypted: true}
	}
	if err := p.store.Put(types.NamespacePrivateData, map[string]interface{}{name: rec}); err != nil {
		return fmt.Errorf("failed to persist private data %s: %w", name, err)
	}
	return nil
}

// Ensure returns the secret called name, generating it on first use
func (p *PrivateData) Ensure(name string) (string, error) {
	value, ok, err := p.Get(name)
	if err != nil {
		return "", err
	}
	if ok {
		return value, nil
	}

	buf := make([]byte, SecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret %s: %w", name, err)
	}
	value = base64.RawURLEncoding.EncodeToString(buf)
	if err := p.Set(name, value); err != nil {
		return "", err
	}
	p.logger.Info().Str("name", name).Msg("Generated private data")
	return value, nil
}

// Rotate rewrites every value not yet stored under the current key (or in
// plain text when no key is set) and returns how many were rewritten.
// Values already in the right form are left untouched.
func (p *PrivateData) Rotate() (int, error) {
	doc, err := p.store.Document(types.NamespacePrivateData)
	if err != nil {
		return 0, fmt.Errorf("failed to load private data: %w", err)
	}
	rotated := 0
	for _, name := range storage.SortedKeys(doc) {
		var rec types.PrivateRecord
		if err := storage.Decode(doc[name], &rec); err != nil {
			return rotated, fmt.Errorf("private data %s: %w", name, err)
		}
		value, current, err := p.open(name, rec)
		if err != nil {
			return rotated, err
		}
		if current {
			continue
		}
		if err := p.Set(name, value); err != nil {
			return rotated, err
		}
		rotated++
	}
	if rotated > 0 {
		p.logger.Info().Int("count", rotated).Msg("Rotated private data")
	}
	return rotated, nil
}
