package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// schemePrefix identifies ciphertext produced by this vault. Values without
// the prefix are treated as legacy plaintext and re-encrypted on the next
// write.
const schemePrefix = "enc:v1:"

// Vault provides authenticated symmetric encryption for stored credentials.
// The key is process-wide; rotation happens out-of-band.
type Vault struct {
	aead cipher.AEAD
}

func New(key string) (*Vault, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("missing encryption key")
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("vault not initialized")
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return schemePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext for a vault-encrypted value. Values without
// the scheme prefix are returned unchanged.
func (v *Vault) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, schemePrefix) {
		return value, nil
	}
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("vault not initialized")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, schemePrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// IsEncrypted reports whether value carries the vault scheme prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, schemePrefix)
}
