package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, email, name, pwd_hash, role, active, otp_hash, otp_issued_at, created_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, name, pwd_hash, role, active, otp_hash, otp_issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at`
	err := r.db.q(ctx).QueryRow(ctx, q,
		a.ID, a.Email, a.Name, a.PwdHash, a.Role, a.Active, a.OTPHash, nullTime(a.OTPIssuedAt),
	).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.q(ctx).QueryRow(ctx, q, id))
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return scanAccount(r.db.q(ctx).QueryRow(ctx, q, email))
}

// Save updates the mutable account fields.
func (r *AccountRepo) Save(ctx context.Context, a *model.Account) error {
	const q = `
UPDATE accounts
SET name=$2, pwd_hash=$3, role=$4, active=$5, otp_hash=$6, otp_issued_at=$7
WHERE id=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, a.ID, a.Name, a.PwdHash, a.Role, a.Active, a.OTPHash, nullTime(a.OTPIssuedAt))
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a        model.Account
		issuedAt *time.Time
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PwdHash, &a.Role, &a.Active, &a.OTPHash, &issuedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if issuedAt != nil {
		a.OTPIssuedAt = *issuedAt
	}
	return &a, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
