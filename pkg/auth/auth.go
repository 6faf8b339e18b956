// Package auth hashes passwords with bcrypt and issues and verifies HS256
// JWT access tokens. It has no domain dependencies.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ===== CONSTANTS =====

// BCryptCost is the work factor used when no other cost is configured.
const BCryptCost = 12

// DefaultExpiry is the token lifetime used when none is configured.
const DefaultExpiry = 24 * time.Hour

// minSecretLen rejects secrets too short for HS256.
const minSecretLen = 16

var (
	ErrWeakSecret   = errors.New("auth: jwt secret must be at least 16 bytes")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ===== BCRYPT FUNCTIONS =====

// HashPassword hashes a plaintext password with BCryptCost.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, BCryptCost)
}

// HashPasswordCost hashes a plaintext password with the given bcrypt cost.
func HashPasswordCost(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. Malformed hashes
// simply do not match.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ===== JWT FUNCTIONS =====

// Claims are the access token claims. UserID is the caller every query is
// filtered by.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens with one shared secret.
type Manager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithExpiry sets the token lifetime.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, opts ...Option) (*Manager, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	m := &Manager{secret: []byte(secret), expiry: DefaultExpiry, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for the user.
func (m *Manager) Issue(userID int64, email string) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims. Every failure wraps
// ErrInvalidToken.
func (m *Manager) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		// Only HMAC is accepted, so a token cannot pick its own algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user claim", ErrInvalidToken)
	}
	return claims, nil
}
