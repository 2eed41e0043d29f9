package token

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssuer_AccessRoundTrip(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("k"), time.Minute, time.Hour)
	id := uuid.Must(uuid.NewV4())

	raw, exp, err := iss.Access(id, "ADMIN")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	c, err := iss.Parse(raw, KindAccess)
	require.NoError(t, err)
	got, err := c.AccountID()
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, "ADMIN", c.Role)
	require.NotEmpty(t, c.ID)
}

func TestIssuer_KindIsEnforced(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("k"), time.Minute, time.Hour)
	id := uuid.Must(uuid.NewV4())

	refresh, rexp, err := iss.Refresh(id)
	require.NoError(t, err)
	_, aexp, _ := iss.Access(id, "USER")
	require.True(t, rexp.After(aexp), "refresh must outlive access")

	_, err = iss.Parse(refresh, KindAccess)
	require.ErrorIs(t, err, ErrInvalid)

	c, err := iss.Parse(refresh, KindRefresh)
	require.NoError(t, err)
	require.Empty(t, c.Role)
}

func TestIssuer_TokensAreUnique(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("k"), time.Minute, time.Hour)
	id := uuid.Must(uuid.NewV4())
	a, _, _ := iss.Access(id, "USER")
	b, _, _ := iss.Access(id, "USER")
	require.NotEqual(t, a, b)
}

func TestIssuer_RejectsExpiredWrongKeyAndAlg(t *testing.T) {
	t.Parallel()
	iss := NewIssuer([]byte("k"), time.Minute, time.Hour)
	id := uuid.Must(uuid.NewV4())

	past := time.Now().Add(-2 * time.Hour)
	iss.now = func() time.Time { return past }
	old, _, err := iss.Access(id, "USER")
	require.NoError(t, err)
	iss.now = time.Now
	_, err = iss.Parse(old, KindAccess)
	require.True(t, errors.Is(err, ErrInvalid))

	other := NewIssuer([]byte("other"), time.Minute, time.Hour)
	raw, _, _ := other.Access(id, "USER")
	_, err = iss.Parse(raw, KindAccess)
	require.ErrorIs(t, err, ErrInvalid)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Kind: KindAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   id.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(unsigned, KindAccess)
	require.ErrorIs(t, err, ErrInvalid)

	_, err = iss.Parse("garbage", KindAccess)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestDigest(t *testing.T) {
	t.Parallel()
	require.Len(t, Digest("abc"), 32)
	require.True(t, bytes.Equal(Digest("abc"), Digest("abc")))
	require.False(t, bytes.Equal(Digest("abc"), Digest("abd")))
}
