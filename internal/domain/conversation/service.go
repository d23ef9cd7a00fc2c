// Package conversation persists conversations and their ordered message
// history, scoped to the owning user.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkersic/relay/internal/infra/eventbus"
)

// ErrNotFound is returned when a conversation does not exist or belongs to
// another user. The two cases are indistinguishable on purpose.
var ErrNotFound = errors.New("conversation not found")

// DefaultTitle is the placeholder title until the first user message
// arrives.
const DefaultTitle = "New conversation"

// TopicMessageCreated is published on the event bus for every persisted
// message.
const TopicMessageCreated = "message.created"

// Conversation is the persisted chat container.
type Conversation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Title      string    `json:"title"`
	ProviderID string    `json:"provider_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is one persisted turn. ProviderID is set for assistant messages
// only.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ProviderID     string    `json:"provider_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageCreated is the payload published under TopicMessageCreated.
type MessageCreated struct {
	UserID  string
	Message Message
}

// Service owns conversation and message persistence. The event bus is
// optional; when nil no events are published.
type Service struct {
	db  *sql.DB
	bus eventbus.EventBus
}

func NewService(db *sql.DB, bus eventbus.EventBus) *Service {
	return &Service{db: db, bus: bus}
}

// Create inserts a conversation for the user. id must be a fresh UUID.
func (s *Service) Create(ctx context.Context, id, userID, providerID string) (*Conversation, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, user_id, title, provider_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, DefaultTitle, providerID, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &Conversation{
		ID: id, UserID: userID, Title: DefaultTitle, ProviderID: providerID,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Get returns the user's conversation by id.
func (s *Service) Get(ctx context.Context, userID, id string) (*Conversation, error) {
	c := &Conversation{}
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, provider_id, created_at, updated_at
		FROM conversation
		WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.ProviderID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

// List returns the user's conversations, most recently updated first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Conversation, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, provider_id, created_at, updated_at
		FROM conversation
		WHERE user_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		c := &Conversation{}
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.ProviderID, &createdAt, &updatedAt); err != nil {
			return nil, 0, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		return nil, 0, err
	}
	return conversations, count, nil
}

// Rename updates the conversation title.
func (s *Service) Rename(ctx context.Context, userID, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title must not be empty")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation SET title = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, title, time.Now().UTC().Format(time.RFC3339), id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes the conversation; messages cascade.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ClearMessages removes all messages but keeps the conversation row.
func (s *Service) ClearMessages(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM message WHERE conversation_id = ?`, id)
	return err
}

// AppendMessage persists one message and bumps the conversation's
// updated_at. The caller supplies the message id so the persisted row
// matches the in-memory turn. The first user message replaces the default
// title with a derived one.
func (s *Service) AppendMessage(ctx context.Context, userID string, msg Message) error {
	conv, err := s.Get(ctx, userID, msg.ConversationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertMessageTx(ctx, tx, msg); err != nil {
		return err
	}

	title := conv.Title
	if conv.Title == DefaultTitle && msg.Role == "user" {
		title = deriveTitle(msg.Content)
	}
	if err := touchConversationTx(ctx, tx, msg.ConversationID, title, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.publishCreated(userID, msg)
	return nil
}

// AppendExchange persists a user message and the assistant response it
// produced in one transaction, so a failure never leaves a user message
// without its reply. Title derivation and the updated_at bump follow the
// same rules as AppendMessage.
func (s *Service) AppendExchange(ctx context.Context, userID string, userMsg, assistantMsg Message) error {
	conv, err := s.Get(ctx, userID, userMsg.ConversationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if userMsg.CreatedAt.IsZero() {
		userMsg.CreatedAt = now
	}
	if assistantMsg.CreatedAt.IsZero() {
		assistantMsg.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertMessageTx(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := insertMessageTx(ctx, tx, assistantMsg); err != nil {
		return err
	}

	title := conv.Title
	if conv.Title == DefaultTitle {
		title = deriveTitle(userMsg.Content)
	}
	if err := touchConversationTx(ctx, tx, userMsg.ConversationID, title, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.publishCreated(userID, userMsg)
	s.publishCreated(userID, assistantMsg)
	return nil
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, msg Message) error {
	var providerID any
	if msg.ProviderID != "" {
		providerID = msg.ProviderID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO message (id, conversation_id, role, content, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, providerID, msg.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func touchConversationTx(ctx context.Context, tx *sql.Tx, conversationID, title string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE conversation SET title = ?, updated_at = ? WHERE id = ?
	`, title, now.Format(time.RFC3339), conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (s *Service) publishCreated(userID string, msg Message) {
	if s.bus != nil {
		s.bus.Publish(TopicMessageCreated, MessageCreated{UserID: userID, Message: msg})
	}
}

// DeleteMessage removes one message, used when a response is regenerated.
func (s *Service) DeleteMessage(ctx context.Context, userID, conversationID, messageID string) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM message WHERE id = ? AND conversation_id = ?`, messageID, conversationID)
	return err
}

// History returns the conversation's messages in insertion order. Message
// ids are UUID v7, so ordering by id is chronological.
func (s *Service) History(ctx context.Context, userID, conversationID string) ([]Message, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, provider_id, created_at
		FROM message
		WHERE conversation_id = ?
		ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var providerID sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &providerID, &createdAt); err != nil {
			return nil, err
		}
		m.ProviderID = providerID.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// deriveTitle derives a short title from the first user message.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	// Truncation counts runes, not bytes, so a multibyte character at the
	// boundary is never split into invalid UTF-8.
	const maxLen = 48
	if runes := []rune(title); len(runes) > maxLen {
		head := string(runes[:maxLen])
		if cut := strings.LastIndex(head, " "); cut > 0 {
			head = head[:cut]
		}
		title = head + "…"
	}
	if title == "" {
		return DefaultTitle
	}
	return title
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
