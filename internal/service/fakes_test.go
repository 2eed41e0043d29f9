package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/crypto/fieldcrypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/limiter"
	"github.com/and161185/secure-notes/internal/mailer"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/repository"
)

// fakeHasher stores "h:"+secret; good enough to exercise the flows without Argon2 cost.
type fakeHasher struct {
	hashErr error
}

var _ crypto.Hasher = (*fakeHasher)(nil)

func (h *fakeHasher) Hash(secret []byte) ([]byte, error) {
	if h.hashErr != nil {
		return nil, h.hashErr
	}
	return append([]byte("h:"), secret...), nil
}

func (h *fakeHasher) Verify(secret, digest []byte) bool {
	return bytes.Equal(append([]byte("h:"), secret...), digest)
}

type fakeSender struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

var _ mailer.Sender = (*fakeSender)(nil)

func (f *fakeSender) SendOTP(_ context.Context, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.codes == nil {
		f.codes = map[string][]string{}
	}
	f.codes[email] = append(f.codes[email], code)
	return nil
}

func (f *fakeSender) last(t *testing.T, email string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.codes[email]
	if len(cs) == 0 {
		t.Fatalf("no code sent to %s", email)
	}
	return cs[len(cs)-1]
}

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Account

	createErr error
	saveErr   error
	getErr    error
	saves     int
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[uuid.UUID]*model.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == a.Email {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *a
	f.byID[a.ID] = &cpy
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) Save(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.byID[a.ID]; !ok {
		return errs.ErrNotFound
	}
	cpy := *a
	f.byID[a.ID] = &cpy
	f.saves++
	return nil
}

func (f *fakeAccounts) put(a model.Account) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = &a
	return &a
}

type fakeCreds struct {
	mu    sync.Mutex
	rows  []model.Credential
	seq   time.Time
	delay time.Duration

	saveErr    error
	saveAllErr error
}

var _ repository.CredentialRepository = (*fakeCreds)(nil)

func (f *fakeCreds) FindActiveByAccount(_ context.Context, accountID uuid.UUID) ([]model.Credential, error) {
	f.mu.Lock()
	var out []model.Credential
	for _, c := range f.rows {
		if c.AccountID == accountID && !c.LoggedOut {
			out = append(out, c)
		}
	}
	f.mu.Unlock()
	// widen the read-then-write gap so unserialized callers would interleave
	time.Sleep(f.delay)
	return out, nil
}

func (f *fakeCreds) Save(_ context.Context, c *model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.upsert(*c)
	return nil
}

func (f *fakeCreds) SaveAll(_ context.Context, cs []model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveAllErr != nil {
		return f.saveAllErr
	}
	for _, c := range cs {
		f.upsert(c)
	}
	return nil
}

func (f *fakeCreds) upsert(c model.Credential) {
	for i := range f.rows {
		if f.rows[i].ID == c.ID {
			f.rows[i].LoggedOut = c.LoggedOut
			return
		}
	}
	f.seq = f.seq.Add(time.Second)
	c.CreatedAt = f.seq
	f.rows = append(f.rows, c)
}

func (f *fakeCreds) find(match func(model.Credential) bool) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if match(c) {
			cpy := c
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeCreds) GetByAccessHash(_ context.Context, hash []byte) (*model.Credential, error) {
	return f.find(func(c model.Credential) bool { return bytes.Equal(c.AccessHash, hash) })
}

func (f *fakeCreds) GetByRefreshHash(_ context.Context, hash []byte) (*model.Credential, error) {
	return f.find(func(c model.Credential) bool { return bytes.Equal(c.RefreshHash, hash) })
}

func (f *fakeCreds) activeCount(accountID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.rows {
		if c.AccountID == accountID && !c.LoggedOut {
			n++
		}
	}
	return n
}

type fakeNotes struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Note
	seq  time.Time

	getErr  error
	saveErr error
	listErr error
}

var _ repository.NoteRepository = (*fakeNotes)(nil)

func newFakeNotes() *fakeNotes {
	return &fakeNotes{rows: map[uuid.UUID]*model.Note{}, seq: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeNotes) GetByID(_ context.Context, id uuid.UUID) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	n, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (f *fakeNotes) list(ownerID uuid.UUID, plainOnly bool) ([]model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Note
	for _, n := range f.rows {
		if n.OwnerID == ownerID && (!plainOnly || !n.Secured()) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeNotes) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Note, error) {
	return f.list(ownerID, false)
}

func (f *fakeNotes) ListPlainByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Note, error) {
	return f.list(ownerID, true)
}

func (f *fakeNotes) Save(_ context.Context, n *model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.seq = f.seq.Add(time.Second)
	if old, ok := f.rows[n.ID]; ok {
		n.CreatedAt = old.CreatedAt
	} else {
		n.CreatedAt = f.seq
	}
	n.UpdatedAt = f.seq
	cpy := *n
	f.rows[n.ID] = &cpy
	return nil
}

func (f *fakeNotes) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeRecorder struct {
	mu     sync.Mutex
	logins map[string]int
	otp    map[bool]int
	denied map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{logins: map[string]int{}, otp: map[bool]int{}, denied: map[string]int{}}
}

func (r *fakeRecorder) RecordLogin(result string) {
	r.mu.Lock()
	r.logins[result]++
	r.mu.Unlock()
}
func (r *fakeRecorder) RecordOTPVerification(ok bool) {
	r.mu.Lock()
	r.otp[ok]++
	r.mu.Unlock()
}
func (r *fakeRecorder) RecordNoteAccessDenied(op string) {
	r.mu.Lock()
	r.denied[op]++
	r.mu.Unlock()
}
func (r *fakeRecorder) RecordHTTPRequest(string, int, time.Duration) {}

func newTestCipher(t testing.TB) *fieldcrypto.Cipher {
	t.Helper()
	c, err := fieldcrypto.New([]byte("test-field-secret"))
	if err != nil {
		t.Fatalf("fieldcrypto.New: %v", err)
	}
	return c
}

var errBoom = errors.New("boom")
