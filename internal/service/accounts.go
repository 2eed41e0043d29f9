// Package service contains application services for accounts, sessions and notes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/lock"
	"github.com/and161185/secure-notes/internal/metrics"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/repository"
)

// SignupInput is a registration request.
type SignupInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// AccountService defines registration and email verification.
type AccountService interface {
	// Signup creates an inactive account after its passcode was delivered.
	Signup(ctx context.Context, in SignupInput) (*model.Account, error)
	// VerifyAccount activates the account when code is valid.
	VerifyAccount(ctx context.Context, email, code string) error
	// RegenerateOTP replaces the pending passcode of an inactive account.
	RegenerateOTP(ctx context.Context, email string) error
}

type AccountServiceImpl struct {
	accounts repository.AccountRepository
	hasher   crypto.Hasher
	otp      *OTPIssuer
	locks    lock.Locker
	metrics  metrics.Recorder
	log      *zap.Logger
	now      func() time.Time
}

// NewAccountService constructs AccountService with required dependencies.
func NewAccountService(accounts repository.AccountRepository, hasher crypto.Hasher, otp *OTPIssuer, locks lock.Locker, rec metrics.Recorder, log *zap.Logger) *AccountServiceImpl {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &AccountServiceImpl{accounts: accounts, hasher: hasher, otp: otp, locks: locks, metrics: rec, log: log, now: time.Now}
}

// NormalizeEmail is the canonical form used as the login key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup validates input, delivers a passcode and only then stores the account.
// A delivery failure leaves nothing behind.
func (s *AccountServiceImpl) Signup(ctx context.Context, in SignupInput) (*model.Account, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", errs.ErrInvalidArgument)
	}
	switch _, err := s.accounts.GetByEmail(ctx, email); {
	case err == nil:
		return nil, errs.ErrAlreadyExists
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	pwdHash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = model.DefaultRole
	}
	a := &model.Account{
		ID:      id,
		Email:   email,
		Name:    strings.TrimSpace(in.Name),
		PwdHash: pwdHash,
		Role:    role,
	}
	if err := s.otp.Issue(ctx, a); err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("account created", zap.String("account_id", a.ID.String()))
	return a, nil
}

// VerifyAccount checks code against a single snapshot of the account's
// passcode, taken under the account lock. Every failure is ErrOTPInvalid.
func (s *AccountServiceImpl) VerifyAccount(ctx context.Context, email, code string) error {
	return s.withAccount(ctx, email, func(lctx context.Context, a *model.Account) error {
		ok := !a.Active && s.otp.Verify(a, strings.TrimSpace(code), s.now())
		s.metrics.RecordOTPVerification(ok)
		if !ok {
			return errs.ErrOTPInvalid
		}
		a.Active = true
		consume(a)
		return s.accounts.Save(lctx, a)
	})
}

// RegenerateOTP sends a new passcode, overwriting the pending one.
func (s *AccountServiceImpl) RegenerateOTP(ctx context.Context, email string) error {
	return s.withAccount(ctx, email, func(lctx context.Context, a *model.Account) error {
		if a.Active {
			return errs.ErrAlreadyVerified
		}
		if err := s.otp.Issue(lctx, a); err != nil {
			return err
		}
		return s.accounts.Save(lctx, a)
	})
}

// withAccount resolves email, takes the account lock and runs fn against a
// copy of the account loaded while holding it. fn must use the context it is
// given for store calls.
func (s *AccountServiceImpl) withAccount(ctx context.Context, email string, fn func(context.Context, *model.Account) error) error {
	found, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	lctx, unlock, err := s.locks.Lock(ctx, lock.AccountKey(found.ID.String()))
	if err != nil {
		return err
	}
	defer unlock()

	a, err := s.accounts.GetByID(lctx, found.ID)
	if err != nil {
		return err
	}
	return fn(lctx, a)
}
