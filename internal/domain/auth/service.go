// Package auth registers users and logs them in, issuing access tokens.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
	pkgauth "github.com/unroll-ai/unroll/pkg/auth"
)

// ErrInvalidCredentials covers both unknown emails and wrong passwords so
// responses do not reveal which accounts exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailAlreadyExists is returned by Register when the email is taken.
var ErrEmailAlreadyExists = errors.New("email already registered")

// ErrInvalidInput is returned for malformed registration data.
var ErrInvalidInput = errors.New("invalid registration input")

const minPasswordLen = 8

type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

type LoginInput struct {
	Email    string
	Password string
}

// Result is returned after a successful Register or Login.
type Result struct {
	Token  string
	UserID int64
}

// Service holds the authentication operations.
type Service struct {
	db       *sqldb.DB
	tokens   *pkgauth.Manager
	logger   *slog.Logger
	hashCost int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger logs authentication failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHashCost overrides the bcrypt cost, for tests.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(db *sqldb.DB, tokens *pkgauth.Manager, opts ...Option) *Service {
	s := &Service{
		db:       db,
		tokens:   tokens,
		logger:   slog.New(slog.DiscardHandler),
		hashCost: pkgauth.BCryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user and returns a token for it. The password is
// stored only as a bcrypt hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}

	hash, err := pkgauth.HashPasswordCost(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var userID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		email, fullName, hash, sqldb.FormatTime(sqldb.Now()),
	).Scan(&userID)
	if sqldb.IsUniqueViolation(err) {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issue(userID, email)
}

// Login verifies credentials and returns a token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var (
		userID int64
		hash   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email,
	).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.InfoContext(ctx, "login failed", "reason", "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !pkgauth.VerifyPassword(hash, in.Password) {
		s.logger.InfoContext(ctx, "login failed", "reason", "invalid_password", "user_id", userID)
		return nil, ErrInvalidCredentials
	}
	return s.issue(userID, email)
}

func (s *Service) issue(userID int64, email string) (*Result, error) {
	token, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	return &Result{Token: token, UserID: userID}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}
