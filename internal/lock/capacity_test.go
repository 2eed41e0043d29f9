package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/repository/postgres"
)

// cappedPool hands out at most cap(slots) connections. A transaction holds
// its slot until commit or rollback; a pool statement holds one for the
// statement only. Advisory locks are modelled with per-key mutexes held by
// the transaction, so waiters keep their connection like they do in Postgres.
type cappedPool struct {
	slots     chan struct{}
	poolStmts atomic.Int32

	mu       sync.Mutex
	advisory map[string]*sync.Mutex
}

var _ postgres.PgxPool = (*cappedPool)(nil)

func newCappedPool(conns int) *cappedPool {
	return &cappedPool{slots: make(chan struct{}, conns), advisory: map[string]*sync.Mutex{}}
}

func (p *cappedPool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *cappedPool) release() { <-p.slots }

func (p *cappedPool) keyMutex(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.advisory[key]
	if !ok {
		m = &sync.Mutex{}
		p.advisory[key] = m
	}
	return m
}

func (p *cappedPool) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	return &cappedTx{pool: p}, nil
}

func (p *cappedPool) Exec(ctx context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	p.poolStmts.Add(1)
	if err := p.acquire(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	defer p.release()
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (p *cappedPool) Query(ctx context.Context, _ string, _ ...any) (pgx.Rows, error) {
	p.poolStmts.Add(1)
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return nil, errors.New("query not modelled")
}

func (p *cappedPool) QueryRow(ctx context.Context, _ string, _ ...any) pgx.Row {
	p.poolStmts.Add(1)
	if err := p.acquire(ctx); err != nil {
		return errRow{err}
	}
	defer p.release()
	return errRow{pgx.ErrNoRows}
}

func (p *cappedPool) Ping(context.Context) error { return nil }
func (p *cappedPool) Close()                     {}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type cappedTx struct {
	pgx.Tx
	pool *cappedPool
	held *sync.Mutex
	done bool
}

func (tx *cappedTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.Contains(sql, "pg_advisory_xact_lock") {
		m := tx.pool.keyMutex(args[0].(string))
		m.Lock()
		tx.held = m
		return pgconn.NewCommandTag("SELECT 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *cappedTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not modelled")
}

func (tx *cappedTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{pgx.ErrNoRows}
}

func (tx *cappedTx) Begin(context.Context) (pgx.Tx, error) {
	return &savepointTx{cappedTx: tx}, nil
}

func (tx *cappedTx) Commit(context.Context) error   { tx.finish(); return nil }
func (tx *cappedTx) Rollback(context.Context) error { tx.finish(); return nil }

func (tx *cappedTx) finish() {
	if tx.done {
		return
	}
	tx.done = true
	if tx.held != nil {
		tx.held.Unlock()
	}
	tx.pool.release()
}

// savepointTx shares the outer connection; ending it releases nothing.
type savepointTx struct{ *cappedTx }

func (savepointTx) Commit(context.Context) error   { return nil }
func (savepointTx) Rollback(context.Context) error { return nil }

func TestPG_LockedStoreWorkFitsInCappedPool(t *testing.T) {
	const conns = 2

	tests := []struct {
		name    string
		sameKey bool
	}{
		{name: "distinct keys", sameKey: false},
		{name: "same key", sameKey: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newCappedPool(conns)
			l := NewPG(pool, nil)
			db := &postgres.DB{Pool: pool}
			notes := postgres.NewNoteRepo(db)
			creds := postgres.NewCredentialRepo(db)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			errCh := make(chan error, conns+1)
			var wg sync.WaitGroup
			for i := 0; i < conns+1; i++ {
				key := NoteKey("shared")
				if !tt.sameKey {
					key = NoteKey(strconv.Itoa(i))
				}
				wg.Add(1)
				go func(key string) {
					defer wg.Done()
					lctx, unlock, err := l.Lock(ctx, key)
					if err != nil {
						errCh <- fmt.Errorf("lock %s: %w", key, err)
						return
					}
					defer unlock()

					if _, err := notes.GetByID(lctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
						errCh <- fmt.Errorf("GetByID under %s: %v", key, err)
						return
					}
					cs := []model.Credential{{ID: uuid.Must(uuid.NewV4())}, {ID: uuid.Must(uuid.NewV4())}}
					if err := creds.SaveAll(lctx, cs); err != nil {
						errCh <- fmt.Errorf("SaveAll under %s: %w", key, err)
					}
				}(key)
			}
			wg.Wait()
			close(errCh)

			for err := range errCh {
				t.Fatalf("locked caller failed: %v", err)
			}
			require.Zero(t, pool.poolStmts.Load(), "store work under the lock must run on the lock transaction")
			require.Zero(t, len(pool.slots), "connections leaked")
		})
	}
}
