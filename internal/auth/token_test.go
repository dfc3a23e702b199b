package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_AccessRoundTrip(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer("a-secret", "r-secret", time.Hour, 24*time.Hour).WithClock(clock.Now)

	token, expiresAt, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), expiresAt)

	claims, err := issuer.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "access", claims.Type)
}

func TestTokenIssuer_ExpiredIsDistinctFromInvalid(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer("a-secret", "r-secret", time.Minute, time.Hour).WithClock(clock.Now)

	token, _, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = issuer.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = issuer.VerifyAccess(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_SecretsAndTypesAreNotInterchangeable(t *testing.T) {
	issuer := NewTokenIssuer("a-secret", "r-secret", time.Hour, time.Hour)

	access, _, err := issuer.IssueAccess("acc-1")
	require.NoError(t, err)
	refresh, _, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = issuer.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Same secret for both classes still fails on the type marker.
	shared := NewTokenIssuer("same", "same", time.Hour, time.Hour)
	refresh, _, err = shared.IssueRefresh("acc-1")
	require.NoError(t, err)
	_, err = shared.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer := NewTokenIssuer("a-secret", "r-secret", time.Hour, time.Hour)

	claims := Claims{
		AccountID: "acc-1",
		Type:      "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("a-secret"))
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.VerifyAccess("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RefreshTokensAreUnique(t *testing.T) {
	clock := newFakeClock()
	issuer := NewTokenIssuer("a-secret", "r-secret", time.Hour, time.Hour).WithClock(clock.Now)

	first, _, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)
	second, _, err := issuer.IssueRefresh("acc-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
