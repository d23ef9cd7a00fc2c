// Package account handles registration, login, and per-user stored provider
// credentials.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkersic/relay/internal/domain/audit"
	pkgauth "github.com/mkersic/relay/pkg/auth"
	"github.com/mkersic/relay/pkg/uuid"
)

// ErrInvalidCredentials is returned by Login when email or password is
// incorrect. A single error for both cases avoids revealing whether an
// email exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailAlreadyExists is returned by Register when the email is taken.
var ErrEmailAlreadyExists = errors.New("email already registered")

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned after successful Register or Login. Token is a
// signed JWT carrying the user id claim.
type AuthResult struct {
	Token  string
	UserID string
}

// AuthService defines the authentication business operations.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
}

type authService struct {
	db      *sql.DB
	auditor auditor
}

type auditor interface {
	Record(ctx context.Context, userID, action string, outcome audit.Outcome, metadata map[string]any) error
}

// NewAuthService creates a new AuthService backed by the provided DB.
func NewAuthService(db *sql.DB) AuthService {
	return &authService{db: db}
}

// NewAuthServiceWithAudit creates a new AuthService with audit logging.
func NewAuthServiceWithAudit(db *sql.DB, a *audit.Service) AuthService {
	return &authService{db: db, auditor: a}
}

// Register creates a user account and returns a JWT. The password is hashed
// with bcrypt before storage; plaintext is never stored.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID := uuid.NewV7().String()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_account (id, email, password_hash, display_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?)
	`, userID, input.Email, hash, input.DisplayName, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := pkgauth.GenerateJWT(userID)
	if err != nil {
		s.logFailure(ctx, userID, "register", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	s.logSuccess(ctx, userID, "register")
	return &AuthResult{Token: token, UserID: userID}, nil
}

// Login verifies credentials and returns a JWT. Any failure (email not
// found, wrong password) maps to ErrInvalidCredentials.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	var userID string
	var passwordHash sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash
		FROM user_account
		WHERE email = ? AND status = 'active'
		LIMIT 1
	`, input.Email).Scan(&userID, &passwordHash)
	if err != nil {
		s.logFailure(ctx, "unknown", "login", "user_not_found_or_query_error")
		return nil, ErrInvalidCredentials
	}

	if !passwordHash.Valid || passwordHash.String == "" {
		s.logFailure(ctx, userID, "login", "missing_password_hash")
		return nil, ErrInvalidCredentials
	}

	if !pkgauth.VerifyPassword(passwordHash.String, input.Password) {
		s.logFailure(ctx, userID, "login", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	token, err := pkgauth.GenerateJWT(userID)
	if err != nil {
		s.logFailure(ctx, userID, "login", "jwt_generation_failed")
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	s.logSuccess(ctx, userID, "login")
	return &AuthResult{Token: token, UserID: userID}, nil
}

// isUniqueViolation checks if an SQLite error is a UNIQUE constraint
// violation. SQLite surfaces this in the error message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *authService) logSuccess(ctx context.Context, userID, action string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Record(ctx, userID, action, audit.OutcomeSuccess, nil)
}

func (s *authService) logFailure(ctx context.Context, userID, action, reason string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Record(ctx, userID, action, audit.OutcomeError, map[string]any{"reason": reason})
}
