// Package chat implements the conversation orchestrator: the state machine
// that owns a conversation's ordered turns, applies optimistic updates around
// generation requests, and reconciles success and failure.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mkersic/relay/internal/domain/provider"
	"github.com/mkersic/relay/internal/infra/llm"
	"github.com/mkersic/relay/pkg/uuid"
)

// Turn is one message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider,omitempty"` // provider id, assistant turns only
}

// Generator is the boundary that resolves a provider and performs the actual
// generation call. Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, providerID string, creds provider.CredentialMap, turns []Turn) (*llm.ChatResponse, error)
}

// Orchestrator failure modes for rejected transitions. Each rejection is a
// net no-op on the turn list.
var (
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrRequestInFlight = errors.New("a request is already in flight")
	ErrNothingToRedo   = errors.New("need at least one user/assistant pair to regenerate")
)

type state int

const (
	stateIdle state = iota
	stateSending
)

// Orchestrator owns the canonical ordered turn list for one conversation
// session. At most one generation request is in flight at a time; turns
// mutate only at the documented transition points: append-on-send,
// append-on-success, remove-on-failure, and the remove/replace pair around
// regeneration.
//
// Safe for concurrent use: HTTP handlers for the same conversation may race.
type Orchestrator struct {
	gen Generator

	mu    sync.Mutex
	st    state
	epoch uint64 // bumped by Clear; stale reconciliations are discarded
	turns []Turn

	// Remembered parameters of the last accepted send, replayed by
	// RegenerateLast. Cleared by Clear.
	lastProviderID string
	lastCreds      provider.CredentialMap
}

// NewOrchestrator creates an orchestrator in the idle state with no turns.
func NewOrchestrator(gen Generator) *Orchestrator {
	return &Orchestrator{gen: gen}
}

// Seed replaces the turn list, used to hydrate an orchestrator from
// persisted conversation history. No-op while a request is in flight.
func (o *Orchestrator) Seed(turns []Turn) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.st == stateSending {
		return ErrRequestInFlight
	}
	o.turns = append([]Turn(nil), turns...)
	return nil
}

// Turns returns a copy of the current turn list in insertion order.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Turn(nil), o.turns...)
}

// Sending reports whether a generation request is in flight.
func (o *Orchestrator) Sending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st == stateSending
}

// SendMessage appends an optimistic user turn, issues exactly one generation
// request carrying the full history, and appends the assistant turn on
// success. On failure the optimistic turn is rolled back, leaving the turn
// list exactly as it was, and the error is returned for presentation.
//
// Rejected (no turn appended, no request issued) with ErrEmptyMessage when
// content trims to empty and ErrRequestInFlight when a request is pending.
func (o *Orchestrator) SendMessage(ctx context.Context, content, providerID string, creds provider.CredentialMap) (*Turn, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.st == stateSending {
		o.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	userTurn := Turn{
		ID:        uuid.NewV7().String(),
		Role:      "user",
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	o.turns = append(o.turns, userTurn)
	o.st = stateSending
	o.lastProviderID = providerID
	o.lastCreds = creds
	epoch := o.epoch
	history := append([]Turn(nil), o.turns...)
	o.mu.Unlock()

	resp, err := o.gen.Generate(ctx, providerID, creds, history)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.st = stateIdle
	if epoch != o.epoch {
		// Cleared while in flight; the optimistic turn is already gone
		// and the result has no list to land in.
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err != nil {
		// Rollback the optimistic append. Single-flight means only this
		// goroutine mutated the list since the guard; the user turn is last.
		o.turns = o.turns[:len(o.turns)-1]
		return nil, err
	}

	assistantTurn := Turn{
		ID:        uuid.NewV7().String(),
		Role:      "assistant",
		Content:   resp.Content,
		Timestamp: time.Now().UTC(),
		Provider:  providerID,
	}
	o.turns = append(o.turns, assistantTurn)
	return &assistantTurn, nil
}

// RegenerateLast removes the last turn (the assistant response) and replays
// the shortened history. On success the fresh assistant turn replaces the
// removed one. On failure the removed turn is restored, so a failed
// regeneration is a net no-op rather than silently losing the previous
// response.
//
// An empty providerID or empty creds falls back to the parameters of the
// last send; an orchestrator hydrated from persisted history has no
// remembered pair, so the caller supplies them. Supplied parameters become
// the new remembered pair.
//
// Rejected with ErrNothingToRedo when fewer than two turns exist and
// ErrRequestInFlight when a request is pending.
func (o *Orchestrator) RegenerateLast(ctx context.Context, providerID string, creds provider.CredentialMap) (*Turn, error) {
	o.mu.Lock()
	if o.st == stateSending {
		o.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	if len(o.turns) < 2 {
		o.mu.Unlock()
		return nil, ErrNothingToRedo
	}
	removed := o.turns[len(o.turns)-1]
	o.turns = o.turns[:len(o.turns)-1]
	o.st = stateSending
	if providerID == "" {
		providerID = o.lastProviderID
	}
	if len(creds) == 0 {
		creds = o.lastCreds
	}
	o.lastProviderID = providerID
	o.lastCreds = creds
	epoch := o.epoch
	history := append([]Turn(nil), o.turns...)
	o.mu.Unlock()

	resp, err := o.gen.Generate(ctx, providerID, creds, history)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.st = stateIdle
	if epoch != o.epoch {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err != nil {
		o.turns = append(o.turns, removed)
		return nil, err
	}

	assistantTurn := Turn{
		ID:        uuid.NewV7().String(),
		Role:      "assistant",
		Content:   resp.Content,
		Timestamp: time.Now().UTC(),
		Provider:  providerID,
	}
	o.turns = append(o.turns, assistantTurn)
	return &assistantTurn, nil
}

// Clear resets the turn list and the remembered last-request parameters.
// Valid from any state; an in-flight request is not cancelled, but its
// result is discarded when it completes.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns = nil
	o.lastProviderID = ""
	o.lastCreds = nil
	o.epoch++
}
