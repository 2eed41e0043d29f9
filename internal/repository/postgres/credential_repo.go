package postgres

import (
	"context"
	"errors"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CredentialRepo implements CredentialRepository using PostgreSQL.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

const upsertCredential = `
INSERT INTO credentials (id, account_id, access_hash, refresh_hash, logged_out)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET logged_out = EXCLUDED.logged_out`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveCredential(ctx context.Context, ex execer, c *model.Credential) error {
	_, err := ex.Exec(ctx, upsertCredential, c.ID, c.AccountID, c.AccessHash, c.RefreshHash, c.LoggedOut)
	return err
}

// FindActiveByAccount returns credentials of an account that are not logged out.
func (r *CredentialRepo) FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Credential, error) {
	const q = `
SELECT id, account_id, access_hash, refresh_hash, logged_out, created_at
FROM credentials
WHERE account_id=$1 AND logged_out=false
ORDER BY created_at ASC`
	rows, err := r.db.q(ctx).Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		var c model.Credential
		if err = rows.Scan(&c.ID, &c.AccountID, &c.AccessHash, &c.RefreshHash, &c.LoggedOut, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save inserts a credential or updates its logged_out flag. Token digests
// and ownership are immutable.
func (r *CredentialRepo) Save(ctx context.Context, c *model.Credential) error {
	return saveCredential(ctx, r.db.q(ctx), c)
}

// SaveAll saves every credential atomically.
func (r *CredentialRepo) SaveAll(ctx context.Context, cs []model.Credential) error {
	if len(cs) == 0 {
		return nil
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i := range cs {
			if err := saveCredential(ctx, tx, &cs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByAccessHash selects a credential by access token digest.
func (r *CredentialRepo) GetByAccessHash(ctx context.Context, hash []byte) (*model.Credential, error) {
	const q = `
SELECT id, account_id, access_hash, refresh_hash, logged_out, created_at
FROM credentials WHERE access_hash=$1`
	return scanCredential(r.db.q(ctx).QueryRow(ctx, q, hash))
}

// GetByRefreshHash selects a credential by refresh token digest.
func (r *CredentialRepo) GetByRefreshHash(ctx context.Context, hash []byte) (*model.Credential, error) {
	const q = `
SELECT id, account_id, access_hash, refresh_hash, logged_out, created_at
FROM credentials WHERE refresh_hash=$1`
	return scanCredential(r.db.q(ctx).QueryRow(ctx, q, hash))
}

func scanCredential(row pgx.Row) (*model.Credential, error) {
	var c model.Credential
	if err := row.Scan(&c.ID, &c.AccountID, &c.AccessHash, &c.RefreshHash, &c.LoggedOut, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
