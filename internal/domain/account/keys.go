package account

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mkersic/relay/pkg/uuid"
)

// ErrKeyNotFound is returned when a stored key name does not exist for the
// user.
var ErrKeyNotFound = errors.New("stored key not found")

// StoredKey describes a stored credential without exposing its value.
type StoredKey struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyService stores provider API keys per user, sealed with
// XChaCha20-Poly1305 so the raw secret never reaches the database. Key
// values are write-only through the API: they can be stored, deleted, and
// used for generation, but never read back out.
type KeyService struct {
	db   *sql.DB
	aead cipher.AEAD
}

// NewKeyService derives the sealing key from secret. secret must be
// non-empty; it is stretched to 32 bytes with SHA-256.
func NewKeyService(db *sql.DB, secret string) (*KeyService, error) {
	if secret == "" {
		return nil, errors.New("key encryption secret must not be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(sum[:])
	if err != nil {
		return nil, fmt.Errorf("failed to build AEAD: %w", err)
	}
	return &KeyService{db: db, aead: aead}, nil
}

// Store saves or replaces the credential named name for the user. name is
// the credential key the provider catalog expects, e.g. OPENAI_API_KEY.
func (s *KeyService) Store(ctx context.Context, userID, name, value string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	// The user id is bound as associated data so a ciphertext row cannot be
	// replayed under another account.
	ciphertext := s.aead.Seal(nil, nonce, []byte(value), []byte(userID))

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_api_key (id, user_id, name, ciphertext, nonce, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at
	`, uuid.NewV7().String(), userID, name, ciphertext, nonce, now, now)
	if err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// List returns the user's stored key names and timestamps, never values.
func (s *KeyService) List(ctx context.Context, userID string) ([]StoredKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_at, updated_at
		FROM user_api_key
		WHERE user_id = ?
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []StoredKey{}
	for rows.Next() {
		var k StoredKey
		var createdAt, updatedAt string
		if err := rows.Scan(&k.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		k.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes the named credential for the user.
func (s *KeyService) Delete(ctx context.Context, userID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_api_key WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Credentials decrypts all of the user's stored keys into a credential map
// keyed by name. Rows that fail to open (tampered or sealed under a
// different secret) are skipped rather than failing the whole map.
func (s *KeyService) Credentials(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ciphertext, nonce
		FROM user_api_key
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := make(map[string]string)
	for rows.Next() {
		var name string
		var ciphertext, nonce []byte
		if err := rows.Scan(&name, &ciphertext, &nonce); err != nil {
			return nil, err
		}
		plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(userID))
		if err != nil {
			continue
		}
		creds[name] = string(plaintext)
	}
	return creds, rows.Err()
}
