// Package crypto implements server-side secret hashing and random material.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// Hasher is a one-way salted hash for passwords, note secrets and passcodes.
// Verify is the only way to compare a candidate against a stored digest.
type Hasher interface {
	// Hash returns a self-contained digest of secret (salt included).
	Hash(secret []byte) ([]byte, error)
	// Verify reports whether secret matches digest, in constant time.
	Verify(secret, digest []byte) bool
}

// Argon2Params tunes Argon2id.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultArgon2Params are tuned for server-side hashing.
var DefaultArgon2Params = Argon2Params{
	Time:    3,         // iterations
	Memory:  64 * 1024, // 64 MB
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// Argon2Hasher implements Hasher with Argon2id. Digest layout: salt || key.
type Argon2Hasher struct {
	p Argon2Params
}

var _ Hasher = (*Argon2Hasher)(nil)

// NewArgon2Hasher constructs a hasher; zero fields fall back to defaults.
func NewArgon2Hasher(p Argon2Params) *Argon2Hasher {
	if p.Time == 0 {
		p.Time = DefaultArgon2Params.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultArgon2Params.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultArgon2Params.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultArgon2Params.SaltLen
	}
	return &Argon2Hasher{p: p}
}

// Hash returns salt || Argon2id(secret, salt) with a fresh random salt.
func (h *Argon2Hasher) Hash(secret []byte) ([]byte, error) {
	salt, err := RandBytes(h.p.SaltLen)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	key := h.derive(secret, salt)
	out := make([]byte, 0, len(salt)+len(key))
	out = append(out, salt...)
	return append(out, key...), nil
}

// Verify re-derives the key with the embedded salt and compares.
func (h *Argon2Hasher) Verify(secret, digest []byte) bool {
	if len(digest) != h.p.SaltLen+int(h.p.KeyLen) {
		return false
	}
	salt, expected := digest[:h.p.SaltLen], digest[h.p.SaltLen:]
	return subtle.ConstantTimeCompare(h.derive(secret, salt), expected) == 1
}

func (h *Argon2Hasher) derive(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, h.p.Time, h.p.Memory, h.p.Threads, h.p.KeyLen)
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NumericCode returns a zero-padded decimal code of the given width, uniform
// over [0, 10^digits).
func NumericCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", errors.New("numeric code: digits out of range")
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
