// Package fieldcrypto encrypts individual note fields at rest with a
// process-wide key.
package fieldcrypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/and161185/secure-notes/internal/crypto"
)

// KeyLen is the derived AEAD key length.
const KeyLen = chacha20poly1305.KeySize

// hkdfInfo separates the field key from any other key derived from the same secret.
var hkdfInfo = []byte("secure-notes/field-cipher/v1")

// ErrCiphertext is returned for truncated or forged field ciphertext.
var ErrCiphertext = errors.New("fieldcrypto: malformed or forged ciphertext")

// Cipher seals note fields with XChaCha20-Poly1305. Each call uses a random
// nonce, so equal plaintexts produce different ciphertexts.
type Cipher struct {
	key []byte
}

// DeriveKey expands an operator-supplied secret into an AEAD key via HKDF-SHA256.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("fieldcrypto: empty secret")
	}
	r := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// New builds a Cipher from an operator secret.
func New(secret []byte) (*Cipher, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext bound to aad. Output: nonce || ciphertext.
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce, err := crypto.RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a Seal output with the same aad.
func (c *Cipher) Open(blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrCiphertext
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrCiphertext
	}
	return pt, nil
}

// EncryptString is Seal for text fields.
func (c *Cipher) EncryptString(s string, aad []byte) ([]byte, error) {
	return c.Seal([]byte(s), aad)
}

// DecryptString is Open for text fields.
func (c *Cipher) DecryptString(blob, aad []byte) (string, error) {
	pt, err := c.Open(blob, aad)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// FieldAAD binds a ciphertext to its record and field so values cannot be
// swapped between notes or between title and description.
func FieldAAD(recordID []byte, field string) []byte {
	aad := make([]byte, 0, len(recordID)+1+len(field))
	aad = append(aad, recordID...)
	aad = append(aad, 0)
	return append(aad, field...)
}
