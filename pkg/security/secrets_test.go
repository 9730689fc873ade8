package security

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretsManager(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "invalid short key", key: make([]byte, 16), wantErr: true},
		{name: "invalid long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSecretsManager(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sm)
		})
	}
}

func TestNewSecretsManagerFromPassword(t *testing.T) {
	_, err := NewSecretsManagerFromPassword("")
	assert.Error(t, err)

	sm, err := NewSecretsManagerFromPassword("my-secure-password")
	require.NoError(t, err)
	assert.Len(t, sm.encryptionKey, 32)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("pw")
	require.NoError(t, err)

	for _, plaintext := range [][]byte{[]byte("a"), []byte("hello world"), bytes.Repeat([]byte{0xff}, 4096)} {
		sealed, err := sm.EncryptSecret(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, sealed)

		opened, err := sm.DecryptSecret(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("pw")
	require.NoError(t, err)
	a, err := sm.EncryptSecret([]byte("same"))
	require.NoError(t, err)
	b, err := sm.EncryptSecret([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptErrors(t *testing.T) {
	sm, err := NewSecretsManagerFromPassword("pw")
	require.NoError(t, err)
	other, err := NewSecretsManagerFromPassword("other")
	require.NoError(t, err)

	_, err = sm.EncryptSecret(nil)
	assert.Error(t, err)

	_, err = sm.DecryptSecret(nil)
	assert.Error(t, err)

	_, err = sm.DecryptSecret([]byte("short"))
	assert.True(t, errors.Is(err, ErrDecrypt))

	sealed, err := sm.EncryptSecret([]byte("secret"))
	require.NoError(t, err)
	_, err = other.DecryptSecret(sealed)
	assert.True(t, errors.Is(err, ErrDecrypt))
}
