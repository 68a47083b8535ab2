// Package fieldcrypt encrypts individual string fields at rest with
// XChaCha20-Poly1305 under a key derived from operator-supplied material.
package fieldcrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

var ErrMalformed = errors.New("malformed ciphertext")

// Cipher encrypts and decrypts single fields. The zero value is not usable.
type Cipher struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from secret with HKDF-SHA256.
func New(secret string) (*Cipher, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("field encryption key must be at least 16 bytes")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("fx-ledger field encryption")), key); err != nil {
		return nil, fmt.Errorf("failed to derive field key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext; field binds the ciphertext to its column. Empty input stays empty.
func (c *Cipher) Encrypt(field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(field))
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same field.
func (c *Cipher) Decrypt(field, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", ErrMalformed
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefix))
	if err != nil || len(raw) < c.aead.NonceSize() {
		return "", ErrMalformed
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(field))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", field, err)
	}
	return string(plain), nil
}
