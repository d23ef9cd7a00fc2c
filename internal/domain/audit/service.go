// Package audit records an append-only trail of account and credential
// actions. Events are never updated or deleted.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkersic/relay/pkg/uuid"
)

// Service provides audit logging backed by SQLite.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Log appends one audit event. This is the only way events are created.
func (s *Service) Log(ctx context.Context, event *Event) error {
	details := event.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_event (id, user_id, action, entity_type, entity_id, outcome, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.UserID, event.Action, event.EntityType, event.EntityID,
		string(event.Outcome), string(details), event.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Record is the common-case helper: it fills in the id and timestamp and
// marshals metadata into the details column.
func (s *Service) Record(ctx context.Context, userID, action string, outcome Outcome, metadata map[string]any) error {
	var details json.RawMessage
	if metadata != nil {
		var err error
		details, err = json.Marshal(map[string]any{"metadata": metadata})
		if err != nil {
			return err
		}
	}
	return s.Log(ctx, &Event{
		ID:        uuid.NewV7().String(),
		UserID:    userID,
		Action:    action,
		Outcome:   outcome,
		Details:   details,
		CreatedAt: time.Now(),
	})
}

// ListByUser retrieves a user's audit events, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Event, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, outcome, details, created_at
		FROM audit_event
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var outcome, details, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &outcome, &details, &createdAt); err != nil {
			return nil, 0, err
		}
		e.Outcome = Outcome(outcome)
		e.Details = json.RawMessage(details)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_event WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		return nil, 0, err
	}
	return events, count, nil
}
