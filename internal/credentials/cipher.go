// Package credentials decrypts the portal passwords stored for each
// company and serves them to the automation.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Stored values are "iv:ciphertext:tag", each part hex encoded.
const (
	keySalt   = "salt"
	ivSize    = 16
	tagSize   = 16
	keyLength = 32
)

// ErrMalformed is returned for stored values that are not in the
// iv:ciphertext:tag format.
var ErrMalformed = errors.New("malformed encrypted value")

// Cipher encrypts and decrypts with AES-256-GCM under a scrypt-derived key.
type Cipher struct {
	aead cipher.AEAD
}

// DeriveKey stretches secret into an AES-256 key.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("encryption key is empty")
	}
	return scrypt.Key([]byte(secret), []byte(keySalt), 16384, 8, 1, keyLength)
}

// NewCipher derives the key from secret.
func NewCipher(secret string) (*Cipher, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt produces the stored form of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{hex.EncodeToString(iv), hex.EncodeToString(ct), hex.EncodeToString(tag)}, ":"), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformed
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformed
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformed
	}

	plain, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
