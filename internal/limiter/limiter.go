// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (login, client).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, login string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, login string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, login string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash of the client host so raw addresses are never
// stored. A trailing port is ignored: every connection from one host shares
// the same counters.
func HashIP(addr string) []byte {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

// Nop never limits. Used when lockout is disabled.
type Nop struct{}

var _ Limiter = Nop{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

func (Nop) Success(context.Context, string, []byte) error { return nil }

func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
