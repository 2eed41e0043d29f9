// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the entity exists but the requester may not touch it.
	// Callers outside the service layer must not be able to tell it from ErrNotFound.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates failed authentication (bad credentials or token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotVerified indicates a login against an account that has not passed OTP verification.
	ErrNotVerified = errors.New("account not verified")

	// ErrAlreadyVerified indicates an OTP operation against an already active account.
	ErrAlreadyVerified = errors.New("account already verified")

	// ErrOTPInvalid covers both a wrong and an expired passcode.
	ErrOTPInvalid = errors.New("invalid or expired otp")

	// ErrDeliveryFailed indicates the passcode email could not be sent. Retryable.
	ErrDeliveryFailed = errors.New("otp delivery failed")

	// ErrAlreadySecured indicates a secondary password is already set on the note.
	ErrAlreadySecured = errors.New("note already secured")

	// ErrNotSecured indicates the note has no secondary password to remove.
	ErrNotSecured = errors.New("note not secured")

	// ErrInvalidArgument indicates malformed or missing input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Public returns the stable caller-facing message for err. It never reveals
// which predicate failed: a missing note and a note the caller may not open
// produce the same text.
func Public(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return "not found"
	case errors.Is(err, ErrUnauthorized):
		return "invalid credentials"
	case errors.Is(err, ErrRateLimited):
		return "too many attempts, try again later"
	case errors.Is(err, ErrAlreadyExists):
		return "already exists"
	case errors.Is(err, ErrNotVerified):
		return "email is not verified yet, please verify and retry"
	case errors.Is(err, ErrAlreadyVerified):
		return "account already verified"
	case errors.Is(err, ErrOTPInvalid):
		return "please regenerate otp and try again"
	case errors.Is(err, ErrDeliveryFailed):
		return "unable to send the otp, please try again"
	case errors.Is(err, ErrAlreadySecured):
		return "note already has a password"
	case errors.Is(err, ErrNotSecured):
		return "note has no password"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid request"
	default:
		return "internal error"
	}
}
