package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenManager(t *testing.T) {
	_, err := NewTokenManager("too-short", time.Hour)
	assert.Error(t, err)

	tm, err := NewTokenManager(testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tm.TTL())
}

func TestIssueAndValidate(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := tm.Issue("user-1", "shop@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "shop@example.com", claims.Email)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidate_WrongSecret(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewTokenManager("fedcba9876543210fedcba9876543210", time.Hour)
	require.NoError(t, err)

	token, err := tm.Issue("user-1", "shop@example.com")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	claims := Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsUnsignedAlgorithm(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	claims := Claims{UserID: "user-1"}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)

	_, err = tm.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
