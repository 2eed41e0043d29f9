package lock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/repository/postgres"
)

// txBeginner is the slice of a pgx pool needed here. Implemented by
// *pgxpool.Pool and pgxmock.PgxPoolIface.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PG serializes across server replicas with transaction-scoped advisory
// locks. The lock lives in an open transaction that is bound to the returned
// context, so store calls made under the lock share its connection and
// commit with it on unlock. A locked operation holds one pool connection.
type PG struct {
	pool txBeginner
	log  *zap.Logger
}

var _ Locker = (*PG)(nil)

// NewPG constructs a Postgres advisory locker.
func NewPG(pool txBeginner, log *zap.Logger) *PG {
	if log == nil {
		log = zap.NewNop()
	}
	return &PG{pool: pool, log: log}
}

// Lock takes pg_advisory_xact_lock on a 64-bit hash of key.
func (l *PG) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("advisory lock begin: %w", err)
	}
	const q = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := tx.Exec(ctx, q, key); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	// The caller's ctx may be canceled by the time unlock runs; the commit
	// must still reach the server to release the lock.
	relCtx := context.WithoutCancel(ctx)
	return postgres.WithTx(ctx, tx), func() {
		if err := tx.Commit(relCtx); err != nil {
			l.log.Warn("advisory unlock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
