/*
Package security keeps the private data of a deployment (generated passwords,
tokens, keys) encrypted at rest in the state store.

# Encryption

Values are sealed with AES-256-GCM. The 32-byte key is the SHA-256 of the
passphrase given on the command line or in CLOUDCFG_ENCRYPTION_KEY:

	key       = SHA-256(passphrase)
	stored    = base64(nonce || GCM.Seal(value))

Every call to EncryptSecret draws a fresh nonce, so a value is only
re-encrypted when it has to be; otherwise repeated runs would rewrite the
private_data document with new ciphertext each time.

Without a passphrase values are stored in plain text and marked as such.

# Key Rotation

Passing the old passphrase as the previous key lets every value be read
with either key. Rotate then rewrites only the values not yet sealed with
the current key:

	pd, err := security.NewPrivateData(store, newKey, oldKey)
	if err != nil {
		return err
	}
	n, err := pd.Rotate()

Rotating to an empty key decrypts everything back to plain text.

# Usage

	pd, err := security.NewPrivateData(store, cfg.EncryptionKey, "")
	if err != nil {
		return err
	}
	password, err := pd.Ensure("mysql_admin_password")

A value that cannot be opened with any of the configured keys yields an
error wrapping ErrDecrypt.
*/
package security
