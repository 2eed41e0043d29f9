// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DefaultRole is assigned to accounts created without an explicit role.
const DefaultRole = "USER"

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
	Role         string
}

// Account represents a registered user. Secrets are stored only as digests.
type Account struct {
	ID          uuid.UUID // PK
	Email       string    // unique, login key (normalized to lower case)
	Name        string
	PwdHash     []byte // Hasher digest of the password
	Role        string
	Active      bool      // false until OTP verification succeeds
	OTPHash     []byte    // digest of the last issued passcode; nil once consumed
	OTPIssuedAt time.Time // issuance time of OTPHash
	CreatedAt   time.Time
}

// HasPendingOTP reports whether a passcode digest is on file.
func (a *Account) HasPendingOTP() bool { return len(a.OTPHash) > 0 }

// Credential is one issued token pair and its revocation state. Rows are never
// deleted; revocation flips LoggedOut.
type Credential struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	AccessHash  []byte // SHA-256 of the access token
	RefreshHash []byte // SHA-256 of the refresh token
	LoggedOut   bool
	CreatedAt   time.Time
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	AccountID uuid.UUID
	Role      string
}

// Note is the stored form: title and description are ciphertext together.
type Note struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	TitleEnc   []byte
	DescEnc    []byte
	SecretHash []byte // nil for a plain note
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Secured reports whether a secondary password protects the note.
func (n *Note) Secured() bool { return len(n.SecretHash) > 0 }

// NoteView is the decrypted, display-ready form of a note. It lives for one
// request only.
type NoteView struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description string
	Secured     bool
	Locked      bool   // content withheld (secured note listed without its secret)
	Hint        string // shown in place of withheld content
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
