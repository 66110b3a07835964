package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("secret", "lostfound")
	token, err := v.Issue("u1", time.Minute)
	require.NoError(t, err)

	userID, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewValidator("other", "").Issue("u1", time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("secret", "").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewValidator("secret", "")
	token, err := v.Issue("u1", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	token, err := NewValidator("secret", "someone-else").Issue("u1", time.Minute)
	require.NoError(t, err)

	_, err = NewValidator("secret", "lostfound").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewValidator("secret", "").ValidateToken(token)
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestValidateRejectsNoneAlg(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewValidator("secret", "").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
