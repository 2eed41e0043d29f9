package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr         error
	qrBlockedTill time.Time
	qrFailsRet    int

	lastExecSQL  string
	lastExecArgs []any
	execErr      error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL, f.lastExecArgs = sql, args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*time.Time)) = f.qrBlockedTill
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.qrFailsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

func newPG(fp *fakePool, now time.Time) *PG {
	l := NewPG(fp, 15*time.Minute, 5, 10*time.Minute)
	l.now = func() time.Time { return now }
	return l
}

func TestAllow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		pool    *fakePool
		wantOK  bool
		wantDur time.Duration
		wantErr bool
	}{
		{name: "no row", pool: &fakePool{qrErr: pgx.ErrNoRows}, wantOK: true},
		{name: "blocked", pool: &fakePool{qrBlockedTill: now.Add(3 * time.Minute)}, wantDur: 3 * time.Minute},
		{name: "block expired", pool: &fakePool{qrBlockedTill: now.Add(-time.Minute)}, wantOK: true},
		{name: "db error", pool: &fakePool{qrErr: errors.New("db boom")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, dur, err := newPG(tt.pool, now).Allow(context.Background(), "a@example.com", []byte("h"))
			if (err != nil) != tt.wantErr || ok != tt.wantOK || dur != tt.wantDur {
				t.Fatalf("Allow: ok=%v dur=%v err=%v", ok, dur, err)
			}
		})
	}
}

func TestSuccess(t *testing.T) {
	fp := &fakePool{}
	if err := newPG(fp, time.Now()).Success(context.Background(), "a@example.com", []byte("h")); err != nil {
		t.Fatalf("success err: %v", err)
	}
	if !strings.Contains(fp.lastExecSQL, "INSERT INTO auth_limiter") {
		t.Fatalf("unexpected exec: %s", fp.lastExecSQL)
	}

	fp.execErr = errors.New("exec fail")
	if err := newPG(fp, time.Now()).Success(context.Background(), "a@example.com", []byte("h")); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestFailure_BelowThreshold(t *testing.T) {
	fp := &fakePool{qrFailsRet: 2}
	blocked, dur, err := newPG(fp, time.Now()).Failure(context.Background(), "a@example.com", []byte("h"))
	if err != nil || blocked || dur != 0 {
		t.Fatalf("Failure no block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
	if fp.lastExecSQL != "" {
		t.Fatalf("no block update expected, got %s", fp.lastExecSQL)
	}
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrFailsRet: 5}

	blocked, dur, err := newPG(fp, now).Failure(context.Background(), "a@example.com", []byte("h"))
	if err != nil || !blocked || dur != 10*time.Minute {
		t.Fatalf("Failure block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
	if !strings.Contains(fp.lastExecSQL, "UPDATE auth_limiter SET blocked_until") {
		t.Fatalf("must update blocked_until, exec=%s", fp.lastExecSQL)
	}
	if got := fp.lastExecArgs[2].(time.Time); !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("blocked_until=%v", got)
	}
}

func TestFailure_DBErrorOnReturning(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("query error")}
	if _, _, err := newPG(fp, time.Now()).Failure(context.Background(), "a@example.com", []byte("h")); err == nil {
		t.Fatalf("want error from returning fail_count")
	}
}

func TestHashIP_IgnoresPort(t *testing.T) {
	a := HashIP("1.2.3.4:123")
	b := HashIP("1.2.3.4:999")
	c := HashIP("5.6.7.8:321")
	d := HashIP("1.2.3.4")
	if string(a) != string(b) || string(a) != string(d) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}

func TestNop(t *testing.T) {
	var l Limiter = Nop{}
	ok, _, err := l.Allow(context.Background(), "x", nil)
	if !ok || err != nil {
		t.Fatalf("Nop.Allow: %v %v", ok, err)
	}
	blocked, _, _ := l.Failure(context.Background(), "x", nil)
	if blocked {
		t.Fatalf("Nop never blocks")
	}
}
