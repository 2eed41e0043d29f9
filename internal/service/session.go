package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/limiter"
	"github.com/and161185/secure-notes/internal/lock"
	"github.com/and161185/secure-notes/internal/metrics"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/repository"
	"github.com/and161185/secure-notes/internal/token"
)

// Authenticator checks an email/password pair.
type Authenticator interface {
	// Authenticate returns the account or errs.ErrUnauthorized.
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
}

// PasswordAuthenticator authenticates against stored password digests.
type PasswordAuthenticator struct {
	accounts repository.AccountRepository
	hasher   crypto.Hasher

	dummyOnce sync.Once
	dummy     []byte
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator constructs a PasswordAuthenticator.
func NewPasswordAuthenticator(accounts repository.AccountRepository, hasher crypto.Hasher) *PasswordAuthenticator {
	return &PasswordAuthenticator{accounts: accounts, hasher: hasher}
}

// Authenticate hides whether the email exists: an unknown email still pays
// for one hash verification and yields the same error as a wrong password.
func (p *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	a, err := p.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		p.hasher.Verify([]byte(password), p.dummyDigest())
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !p.hasher.Verify([]byte(password), a.PwdHash) {
		return nil, errs.ErrUnauthorized
	}
	return a, nil
}

func (p *PasswordAuthenticator) dummyDigest() []byte {
	p.dummyOnce.Do(func() {
		p.dummy, _ = p.hasher.Hash([]byte("secure-notes-dummy-password"))
	})
	return p.dummy
}

// SessionService defines login and credential lifecycle operations.
type SessionService interface {
	// Login applies rate limiting, authenticates and issues the only active credential.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, error)
	// Logout revokes the credential the access token belongs to.
	Logout(ctx context.Context, accessToken string) error
	// Refresh rotates the credential of a still-active refresh token.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Authenticate resolves an access token to its principal.
	Authenticate(ctx context.Context, accessToken string) (model.Principal, error)
}

type SessionServiceImpl struct {
	auth     Authenticator
	accounts repository.AccountRepository
	creds    repository.CredentialRepository
	tokens   *token.Issuer
	locks    lock.Locker
	lim      limiter.Limiter
	metrics  metrics.Recorder
	log      *zap.Logger
}

// NewSessionService constructs SessionService with required dependencies.
func NewSessionService(
	auth Authenticator,
	accounts repository.AccountRepository,
	creds repository.CredentialRepository,
	tokens *token.Issuer,
	locks lock.Locker,
	lim limiter.Limiter,
	rec metrics.Recorder,
	log *zap.Logger,
) *SessionServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &SessionServiceImpl{auth: auth, accounts: accounts, creds: creds, tokens: tokens, locks: locks, lim: lim, metrics: rec, log: log}
}

// Login authenticates with rate limiting by (email, ip), then revokes every
// active credential of the account and issues a new one as a single step
// under the account lock.
func (s *SessionServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, error) {
	email = NormalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		s.metrics.RecordLogin(metrics.LoginLimited)
		return model.Tokens{}, errs.ErrRateLimited
	}

	a, err := s.auth.Authenticate(ctx, email, password)
	if errors.Is(err, errs.ErrUnauthorized) {
		blocked, _, ferr := s.lim.Failure(ctx, email, ipHash)
		if ferr != nil {
			s.log.Warn("limiter failure not recorded", zap.Error(ferr))
		}
		if blocked {
			s.metrics.RecordLogin(metrics.LoginLimited)
			return model.Tokens{}, errs.ErrRateLimited
		}
		s.metrics.RecordLogin(metrics.LoginFailed)
		return model.Tokens{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Tokens{}, err
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	if !a.Active {
		s.metrics.RecordLogin(metrics.LoginNotVerified)
		return model.Tokens{}, errs.ErrNotVerified
	}

	lctx, unlock, err := s.locks.Lock(ctx, lock.AccountKey(a.ID.String()))
	if err != nil {
		return model.Tokens{}, err
	}
	defer unlock()

	tk, err := s.rotateLocked(lctx, a)
	if err != nil {
		return model.Tokens{}, err
	}
	s.metrics.RecordLogin(metrics.LoginOK)
	s.log.Info("login", zap.String("account_id", a.ID.String()))
	return tk, nil
}

// Logout marks the caller's credential logged out. Logging out twice fails
// like any other use of a revoked token.
func (s *SessionServiceImpl) Logout(ctx context.Context, accessToken string) error {
	accountID, err := s.subject(accessToken, token.KindAccess)
	if err != nil {
		return err
	}

	lctx, unlock, err := s.locks.Lock(ctx, lock.AccountKey(accountID.String()))
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.activeCredential(lctx, s.creds.GetByAccessHash, accessToken, accountID)
	if err != nil {
		return err
	}
	c.LoggedOut = true
	return s.creds.Save(lctx, c)
}

// Refresh exchanges a refresh token of the active credential for a new
// credential. The old credential is revoked with the rest.
func (s *SessionServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	accountID, err := s.subject(refreshToken, token.KindRefresh)
	if err != nil {
		return model.Tokens{}, err
	}

	lctx, unlock, err := s.locks.Lock(ctx, lock.AccountKey(accountID.String()))
	if err != nil {
		return model.Tokens{}, err
	}
	defer unlock()

	if _, err := s.activeCredential(lctx, s.creds.GetByRefreshHash, refreshToken, accountID); err != nil {
		return model.Tokens{}, err
	}
	a, err := s.accounts.GetByID(lctx, accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Tokens{}, err
	}
	return s.rotateLocked(lctx, a)
}

// Authenticate verifies the access token and that its credential is still active.
func (s *SessionServiceImpl) Authenticate(ctx context.Context, accessToken string) (model.Principal, error) {
	claims, err := s.tokens.Parse(accessToken, token.KindAccess)
	if err != nil {
		return model.Principal{}, errs.ErrUnauthorized
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return model.Principal{}, errs.ErrUnauthorized
	}
	if _, err := s.activeCredential(ctx, s.creds.GetByAccessHash, accessToken, accountID); err != nil {
		return model.Principal{}, err
	}
	return model.Principal{AccountID: accountID, Role: claims.Role}, nil
}

// subject parses raw as a token of the given kind and returns its account.
// Any parse failure is ErrUnauthorized.
func (s *SessionServiceImpl) subject(raw string, kind token.Kind) (uuid.UUID, error) {
	claims, err := s.tokens.Parse(raw, kind)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return accountID, nil
}

func (s *SessionServiceImpl) activeCredential(
	ctx context.Context,
	lookup func(context.Context, []byte) (*model.Credential, error),
	raw string,
	accountID uuid.UUID,
) (*model.Credential, error) {
	c, err := lookup(ctx, token.Digest(raw))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if c.LoggedOut || c.AccountID != accountID {
		return nil, errs.ErrUnauthorized
	}
	return c, nil
}

// rotateLocked revokes every active credential of a and persists a fresh
// one. The caller holds the account lock and passes its context.
func (s *SessionServiceImpl) rotateLocked(ctx context.Context, a *model.Account) (model.Tokens, error) {
	active, err := s.creds.FindActiveByAccount(ctx, a.ID)
	if err != nil {
		return model.Tokens{}, err
	}
	if len(active) > 0 {
		for i := range active {
			active[i].LoggedOut = true
		}
		if err := s.creds.SaveAll(ctx, active); err != nil {
			return model.Tokens{}, fmt.Errorf("revoke credentials: %w", err)
		}
	}

	access, exp, err := s.tokens.Access(a.ID, a.Role)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, _, err := s.tokens.Refresh(a.ID)
	if err != nil {
		return model.Tokens{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	c := &model.Credential{
		ID:          id,
		AccountID:   a.ID,
		AccessHash:  token.Digest(access),
		RefreshHash: token.Digest(refresh),
	}
	if err := s.creds.Save(ctx, c); err != nil {
		return model.Tokens{}, fmt.Errorf("store credential: %w", err)
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, Role: a.Role}, nil
}
