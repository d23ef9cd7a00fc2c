// Package tool exposes the chat UI's side panels as named tools: definitions
// live in SQLite, executors are registered in memory at startup. The bundled
// executors are simulators that produce placeholder output; nothing here
// runs user code or calls an image model.
package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkersic/relay/pkg/uuid"
)

var (
	ErrExecutorAlreadyRegistered = errors.New("tool executor already registered")
	ErrExecutorNotRegistered     = errors.New("tool executor not registered")
	ErrDefinitionNotFound        = errors.New("tool definition not found")
	ErrValidationFailed          = errors.New("tool params validation failed")
)

type Definition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateDefinitionInput struct {
	Name        string
	Description *string
	InputSchema json.RawMessage
}

// Registry pairs persisted tool definitions with registered executors.
type Registry struct {
	db        *sql.DB
	executors map[string]Executor
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db, executors: make(map[string]Executor)}
}

// Register binds an executor to a tool name. Registration happens at
// startup, before the HTTP server accepts traffic, so no locking is needed.
func (r *Registry) Register(name string, executor Executor) error {
	name = strings.TrimSpace(name)
	if name == "" || executor == nil {
		return ErrExecutorNotRegistered
	}
	if _, exists := r.executors[name]; exists {
		return ErrExecutorAlreadyRegistered
	}
	r.executors[name] = executor
	return nil
}

// Get returns the executor registered under name.
func (r *Registry) Get(name string) (Executor, error) {
	executor, ok := r.executors[name]
	if !ok {
		return nil, ErrExecutorNotRegistered
	}
	return executor, nil
}

// CreateDefinition persists a tool definition.
func (r *Registry) CreateDefinition(ctx context.Context, in CreateDefinitionInput) (*Definition, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(in.InputSchema) == 0 {
		in.InputSchema = json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{}}`)
	}
	if !json.Valid(in.InputSchema) {
		return nil, fmt.Errorf("input schema must be valid json")
	}

	now := time.Now().UTC()
	item := &Definition{
		ID:          uuid.NewV7().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		InputSchema: in.InputSchema,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tool_definition (id, name, description, input_schema, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, item.ID, item.Name, item.Description, string(item.InputSchema), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListDefinitions returns all tool definitions with their input schemas.
func (r *Registry) ListDefinitions(ctx context.Context) ([]*Definition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, input_schema, is_active, created_at, updated_at
		FROM tool_definition
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Definition, 0)
	for rows.Next() {
		item, scanErr := scanDefinition(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Execute validates params against the tool's schema and runs its executor.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	def, err := r.getDefinitionByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, ErrDefinitionNotFound
	}
	if err := validateParams(params, def.InputSchema); err != nil {
		return nil, err
	}
	executor, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, params)
}

func (r *Registry) getDefinitionByName(ctx context.Context, name string) (*Definition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, input_schema, is_active, created_at, updated_at
		FROM tool_definition
		WHERE name = ?
		LIMIT 1
	`, name)

	item, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func validateParams(params, schema json.RawMessage) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var input map[string]any
	if err := json.Unmarshal(params, &input); err != nil {
		return fmt.Errorf("%w: params must be a json object", ErrValidationFailed)
	}
	var parsed map[string]any
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return fmt.Errorf("%w: invalid schema", ErrValidationFailed)
	}
	return validateAgainstMinimalSchema(input, parsed)
}

// validateAgainstMinimalSchema enforces required keys and, when
// additionalProperties is false, rejects unknown keys. Deliberately not a
// full JSON Schema validator.
func validateAgainstMinimalSchema(input, schema map[string]any) error {
	for _, key := range extractStringSlice(schema["required"]) {
		if _, ok := input[key]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrValidationFailed, key)
		}
	}

	allowAdditional := true
	if v, ok := schema["additionalProperties"].(bool); ok {
		allowAdditional = v
	}
	allowedProps := map[string]struct{}{}
	if props, ok := schema["properties"].(map[string]any); ok {
		for key := range props {
			allowedProps[key] = struct{}{}
		}
	}
	if !allowAdditional {
		for key := range input {
			if _, ok := allowedProps[key]; !ok {
				return fmt.Errorf("%w: unknown field %q", ErrValidationFailed, key)
			}
		}
	}
	return nil
}

func extractStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

type definitionScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(scan definitionScanner) (*Definition, error) {
	var (
		item           Definition
		descriptionRaw sql.NullString
		schemaRaw      string
		isActiveRaw    int
		createdAt      string
		updatedAt      string
	)
	if err := scan.Scan(&item.ID, &item.Name, &descriptionRaw, &schemaRaw, &isActiveRaw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.InputSchema = json.RawMessage(schemaRaw)
	item.IsActive = isActiveRaw == 1
	if descriptionRaw.Valid {
		v := descriptionRaw.String
		item.Description = &v
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &item, nil
}
