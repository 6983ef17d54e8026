package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/factory_os/internal/errors"
)

func TestMockLogin(t *testing.T) {
	m := NewManager(Config{})
	require.True(t, m.MockMode())

	tok, err := m.Login("admin", "123")
	require.NoError(t, err)
	assert.Equal(t, Token{AccessToken: MockToken, TokenType: "bearer"}, tok)

	subject, role, err := m.Verify(MockToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
	assert.Equal(t, RoleAdmin, role)

	_, _, err = m.Verify("other")
	assert.Equal(t, http.StatusUnauthorized, svcerrors.HTTPStatus(err))
}

func TestLoginRejectsOtherUsers(t *testing.T) {
	_, err := NewManager(Config{}).Login("guest", "123")
	se := svcerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusUnauthorized, se.HTTPStatus)
	assert.Equal(t, "Invalid credentials", se.Message)
}

func TestLoginChecksPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	m := NewManager(Config{AdminPasswordHash: hash})

	_, err = m.Login("admin", "wrong")
	assert.Error(t, err)

	_, err = m.Login("admin", "s3cret")
	assert.NoError(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(Config{AdminUsername: "operator", JWTSecret: "test-secret", TokenTTL: time.Hour})
	m.now = func() time.Time { return now }

	tok, err := m.Login("operator", "x")
	require.NoError(t, err)
	assert.NotEqual(t, MockToken, tok.AccessToken)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	subject, role, err := m.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", subject)
	assert.Equal(t, RoleAdmin, role)

	// The mock token is not accepted once a secret is configured.
	_, _, err = m.Verify(MockToken)
	assert.Error(t, err)

	now = now.Add(2 * time.Hour)
	_, _, err = m.Verify(tok.AccessToken)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	m := NewManager(Config{JWTSecret: "one"})
	other := NewManager(Config{JWTSecret: "two"})

	tok, err := other.Login("admin", "")
	require.NoError(t, err)
	_, _, err = m.Verify(tok.AccessToken)
	assert.Error(t, err)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	m := NewManager(Config{JWTSecret: "one"})
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = m.Verify(unsigned)
	assert.Error(t, err)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}
