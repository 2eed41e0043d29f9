// Package token issues and verifies the HS256 JWTs handed out at login.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalid is returned for any token that fails parsing or validation.
var ErrInvalid = errors.New("invalid token")

// Claims carried by both token kinds. Role is empty on refresh tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	Kind Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID returns the subject as a UUID.
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.FromString(c.Subject)
}

// Issuer signs and parses tokens with one HMAC key.
type Issuer struct {
	signKey    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(signKey []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{signKey: signKey, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Access creates a signed access token encoding account id and role.
func (i *Issuer) Access(accountID uuid.UUID, role string) (string, time.Time, error) {
	return i.sign(accountID, role, KindAccess, i.accessTTL)
}

// Refresh creates a signed refresh token with the longer TTL.
func (i *Issuer) Refresh(accountID uuid.UUID) (string, time.Time, error) {
	return i.sign(accountID, "", KindRefresh, i.refreshTTL)
}

func (i *Issuer) sign(accountID uuid.UUID, role string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Parse verifies signature, expiry and kind.
func (i *Issuer) Parse(raw string, want Kind) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Kind != want {
		return nil, ErrInvalid
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Digest is the stored fingerprint of a token value.
func Digest(raw string) []byte {
	h := sha256.Sum256([]byte(raw))
	return h[:]
}
