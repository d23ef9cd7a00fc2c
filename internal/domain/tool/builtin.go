package tool

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	BuiltinCodeExecution   = "code-execution"
	BuiltinImageGeneration = "image-generation"
	BuiltinUISnippet       = "ui-snippet"
)

type builtinDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

func builtinDefinitions() []builtinDefinition {
	return []builtinDefinition{
		{
			Name:        BuiltinCodeExecution,
			Description: "Simulate running a code snippet and return its output",
			InputSchema: json.RawMessage(`{"type":"object","required":["code"],"properties":{"code":{"type":"string"},"language":{"type":"string"}},"additionalProperties":false}`),
		},
		{
			Name:        BuiltinImageGeneration,
			Description: "Simulate image generation and return a placeholder URL",
			InputSchema: json.RawMessage(`{"type":"object","required":["prompt"],"properties":{"prompt":{"type":"string"},"size":{"type":"string"}},"additionalProperties":false}`),
		},
		{
			Name:        BuiltinUISnippet,
			Description: "Generate a canned HTML snippet for a described UI component",
			InputSchema: json.RawMessage(`{"type":"object","required":["description"],"properties":{"description":{"type":"string"}},"additionalProperties":false}`),
		},
	}
}

// EnsureBuiltinDefinitions seeds the tool_definition rows for the bundled
// simulators. Idempotent; safe to run on every startup.
func (r *Registry) EnsureBuiltinDefinitions(ctx context.Context) error {
	for _, def := range builtinDefinitions() {
		if _, err := r.getDefinitionByName(ctx, def.Name); err == nil {
			continue
		} else if err != ErrDefinitionNotFound {
			return err
		}

		description := def.Description
		if _, err := r.CreateDefinition(ctx, CreateDefinitionInput{
			Name:        def.Name,
			Description: &description,
			InputSchema: def.InputSchema,
		}); err != nil && !isUniqueConstraintError(err) {
			return err
		}
	}
	return nil
}

// RegisterBuiltinExecutors binds the bundled simulators with the given
// latency bounds.
func RegisterBuiltinExecutors(registry *Registry, latency Latency) error {
	registrations := []struct {
		name     string
		executor Executor
	}{
		{name: BuiltinCodeExecution, executor: NewCodeExecutionSimulator(latency)},
		{name: BuiltinImageGeneration, executor: NewImageGenerationSimulator(latency)},
		{name: BuiltinUISnippet, executor: NewUISnippetSimulator(latency)},
	}
	for _, registration := range registrations {
		if err := registry.Register(registration.name, registration.executor); err != nil && err != ErrExecutorAlreadyRegistered {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
