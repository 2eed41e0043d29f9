package service

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/mailer"
	"github.com/and161185/secure-notes/internal/model"
)

const (
	// DefaultOTPWindow is how long an issued passcode stays valid.
	DefaultOTPWindow = 60 * time.Second
	// OTPDigits is the passcode width.
	OTPDigits = 6
)

// OTPIssuer generates, delivers and checks one-time passcodes. Only the
// passcode digest is ever kept.
type OTPIssuer struct {
	hasher crypto.Hasher
	sender mailer.Sender
	window time.Duration
	now    func() time.Time
}

// NewOTPIssuer constructs an OTPIssuer; window <= 0 selects DefaultOTPWindow.
func NewOTPIssuer(hasher crypto.Hasher, sender mailer.Sender, window time.Duration) *OTPIssuer {
	if window <= 0 {
		window = DefaultOTPWindow
	}
	return &OTPIssuer{hasher: hasher, sender: sender, window: window, now: time.Now}
}

// Issue sends a fresh passcode to a.Email and, only once delivery succeeded,
// records its digest and issue time on a. The caller persists a.
func (o *OTPIssuer) Issue(ctx context.Context, a *model.Account) error {
	code, err := crypto.NumericCode(OTPDigits)
	if err != nil {
		return fmt.Errorf("otp generate: %w", err)
	}
	digest, err := o.hasher.Hash([]byte(code))
	if err != nil {
		return fmt.Errorf("otp hash: %w", err)
	}
	if err := o.sender.SendOTP(ctx, a.Email, code); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDeliveryFailed, err)
	}
	a.OTPHash = digest
	a.OTPIssuedAt = o.now()
	return nil
}

// Verify reports whether code matches the passcode on file and was issued
// less than one window before now. All failure causes look the same.
func (o *OTPIssuer) Verify(a *model.Account, code string, now time.Time) bool {
	if !a.HasPendingOTP() || code == "" {
		return false
	}
	if now.Sub(a.OTPIssuedAt) >= o.window {
		return false
	}
	return o.hasher.Verify([]byte(code), a.OTPHash)
}

// consume clears the passcode so it cannot be verified twice.
func consume(a *model.Account) {
	a.OTPHash = nil
	a.OTPIssuedAt = time.Time{}
}
