// Package auth implements the admin login and token verification.
//
// Without a JWT secret the service runs in mock mode: a successful login
// returns the fixed token MockToken and only that token verifies. With a
// secret, logins issue HS256 JWTs.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	svcerrors "github.com/R3E-Network/factory_os/internal/errors"
)

// MockToken is issued in mock mode.
const MockToken = "mock-token-123"

// TokenType is the OAuth2 token type reported to clients.
const TokenType = "bearer"

// RoleAdmin is the only role the service knows.
const RoleAdmin = "admin"

const defaultTTL = 24 * time.Hour

// LoginRequest is the login body. The password must be present but may be
// empty; it is only compared when an admin password hash is configured.
type LoginRequest struct {
	Username string  `json:"username" validate:"required,max=128"`
	Password *string `json:"password" validate:"omitempty,max=256"`
}

// PasswordValue returns the password, or "" when it was not sent.
func (r LoginRequest) PasswordValue() string {
	if r.Password == nil {
		return ""
	}
	return *r.Password
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// Config configures a Manager.
type Config struct {
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	TokenTTL          time.Duration
}

// Claims are carried in issued JWTs.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager checks credentials and tokens.
type Manager struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewManager builds a Manager. The admin username defaults to "admin".
func NewManager(cfg Config) *Manager {
	username := strings.TrimSpace(cfg.AdminUsername)
	if username == "" {
		username = RoleAdmin
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m := &Manager{username: username, ttl: ttl, now: time.Now}
	if cfg.AdminPasswordHash != "" {
		m.passwordHash = []byte(cfg.AdminPasswordHash)
	}
	if cfg.JWTSecret != "" {
		m.secret = []byte(cfg.JWTSecret)
	}
	return m
}

// MockMode reports whether the manager issues the fixed mock token.
func (m *Manager) MockMode() bool {
	return len(m.secret) == 0
}

// Login checks the credentials and issues a token. The password is only
// checked when an admin password hash is configured.
func (m *Manager) Login(username, password string) (Token, error) {
	if username != m.username {
		return Token{}, svcerrors.InvalidCredentials()
	}
	if m.passwordHash != nil {
		if err := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)); err != nil {
			return Token{}, svcerrors.InvalidCredentials()
		}
	}

	if m.MockMode() {
		return Token{AccessToken: MockToken, TokenType: TokenType}, nil
	}

	now := m.now()
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, svcerrors.Internal("Could not issue token", err)
	}
	return Token{AccessToken: signed, TokenType: TokenType, ExpiresIn: int64(m.ttl.Seconds())}, nil
}

// Verify returns the subject and role of a valid token.
func (m *Manager) Verify(token string) (string, string, error) {
	if m.MockMode() {
		if token != MockToken {
			return "", "", svcerrors.InvalidToken(nil)
		}
		return m.username, RoleAdmin, nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", svcerrors.InvalidToken(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", "", svcerrors.InvalidToken(nil)
	}
	return claims.Subject, claims.Role, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
