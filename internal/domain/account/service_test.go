// Tests run against in-memory SQLite with real migrations.
package account_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	domainaccount "github.com/mkersic/relay/internal/domain/account"
	"github.com/mkersic/relay/internal/domain/audit"
	"github.com/mkersic/relay/internal/infra/sqlite"
	"github.com/mkersic/relay/pkg/auth"
)

// GenerateJWT panics if JWT_SECRET is not set.
func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

func TestAuthService_Register_Success(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainaccount.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainaccount.RegisterInput{
		Email:       "alice@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Alice",
	})
	if err != nil {
		t.Fatalf("Register() error = %v; want nil", err)
	}
	if result.Token == "" {
		t.Error("Register() Token is empty; want JWT token")
	}
	if result.UserID == "" {
		t.Error("Register() UserID is empty; want non-empty ID")
	}

	claims, err := auth.ParseJWT(result.Token)
	if err != nil {
		t.Fatalf("Returned token is not a valid JWT: %v", err)
	}
	if claims.UserID != result.UserID {
		t.Errorf("JWT UserID = %q; want %q", claims.UserID, result.UserID)
	}
}

func TestAuthService_Register_UserPersistedInDB(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainaccount.NewAuthService(db)

	result, err := svc.Register(context.Background(), domainaccount.RegisterInput{
		Email:       "carol@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Carol",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var email, displayName, status string
	var passwordHash sql.NullString
	err = db.QueryRow(`
		SELECT email, display_name, status, password_hash
		FROM user_account WHERE id = ?
	`, result.UserID).Scan(&email, &displayName, &status, &passwordHash)
	if err != nil {
		t.Fatalf("User not found in DB after Register: %v", err)
	}

	if email != "carol@example.com" {
		t.Errorf("email = %q; want carol@example.com", email)
	}
	if status != "active" {
		t.Errorf("status = %q; want active", status)
	}
	if !passwordHash.Valid || passwordHash.String == "" {
		t.Error("password_hash is NULL or empty; want bcrypt hash")
	}
	if passwordHash.String == "SecurePass123!" {
		t.Error("password_hash should not equal plaintext password")
	}
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainaccount.NewAuthService(db)

	input := domainaccount.RegisterInput{
		Email:       "dup@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Dup",
	}
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("First Register() error = %v; want nil", err)
	}

	_, err := svc.Register(context.Background(), input)
	if !errors.Is(err, domainaccount.ErrEmailAlreadyExists) {
		t.Errorf("Register() duplicate email error = %v; want ErrEmailAlreadyExists", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainaccount.NewAuthService(db)

	regResult, err := svc.Register(context.Background(), domainaccount.RegisterInput{
		Email:       "eve@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Eve",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	loginResult, err := svc.Login(context.Background(), domainaccount.LoginInput{
		Email:    "eve@example.com",
		Password: "SecurePass123!",
	})
	if err != nil {
		t.Fatalf("Login() error = %v; want nil", err)
	}
	if loginResult.Token == "" {
		t.Error("Login() Token is empty; want JWT token")
	}
	if loginResult.UserID != regResult.UserID {
		t.Errorf("Login() UserID = %q; want %q", loginResult.UserID, regResult.UserID)
	}
}

func TestAuthService_Login_GenericErrorForAllFailures(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	svc := domainaccount.NewAuthService(db)

	if _, err := svc.Register(context.Background(), domainaccount.RegisterInput{
		Email:       "hank@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Hank",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, errWrongPw := svc.Login(context.Background(), domainaccount.LoginInput{
		Email: "hank@example.com", Password: "WrongPassword!",
	})
	_, errNoUser := svc.Login(context.Background(), domainaccount.LoginInput{
		Email: "nosuchuser@example.com", Password: "SecurePass123!",
	})

	// Both must return the same generic error so the response does not
	// reveal whether the email exists.
	if !errors.Is(errWrongPw, domainaccount.ErrInvalidCredentials) {
		t.Errorf("wrong-password error = %v; want ErrInvalidCredentials", errWrongPw)
	}
	if !errors.Is(errNoUser, domainaccount.ErrInvalidCredentials) {
		t.Errorf("unknown-email error = %v; want ErrInvalidCredentials", errNoUser)
	}
}

func TestAuthService_AuditTrail(t *testing.T) {
	t.Parallel()

	db := mustOpenDB(t)
	auditSvc := audit.NewService(db)
	svc := domainaccount.NewAuthServiceWithAudit(db, auditSvc)

	result, err := svc.Register(context.Background(), domainaccount.RegisterInput{
		Email:       "trail@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Trail",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.Login(context.Background(), domainaccount.LoginInput{
		Email: "trail@example.com", Password: "SecurePass123!",
	}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	events, total, err := auditSvc.ListByUser(context.Background(), result.UserID, 10, 0)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if total != 2 || len(events) != 2 {
		t.Fatalf("got %d audit events (total %d); want 2", len(events), total)
	}
	// Newest first.
	if events[0].Action != "login" || events[1].Action != "register" {
		t.Errorf("actions = %q, %q; want login, register", events[0].Action, events[1].Action)
	}
}

// mustOpenDB opens an in-memory SQLite DB with all migrations applied.
func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}
	return db
}
