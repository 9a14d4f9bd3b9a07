package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/apperr"
)

func TestIssueAndAuthenticate(t *testing.T) {
	m := NewManager("s3cret", 1)

	token, err := m.Issue(42)
	require.NoError(t, err)

	id, err := m.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = m.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestAuthenticateRejects(t *testing.T) {
	m := NewManager("s3cret", 1)
	other := NewManager("different", 1)
	foreign, err := other.Issue(7)
	require.NoError(t, err)

	expired := NewManager("s3cret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue(7)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	anonymous, err := noUser.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"wrong secret":  foreign,
		"expired":       stale,
		"alg none":      unsigned,
		"missing claim": anonymous,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Authenticate(token)
			assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		})
	}
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "bearer abc", StripBearer("bearer abc"))
}
