package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainaccount "github.com/mkersic/relay/internal/domain/account"
	"github.com/mkersic/relay/internal/domain/chat"
	domainconv "github.com/mkersic/relay/internal/domain/conversation"
	"github.com/mkersic/relay/internal/domain/provider"
	"github.com/mkersic/relay/pkg/uuid"
)

// ConversationHandler serves the authenticated, persisted chat surface.
// Each conversation gets an orchestrator session; both sides of every
// exchange are written through to SQLite so sessions can be rehydrated.
type ConversationHandler struct {
	conversations *domainconv.Service
	manager       *chat.Manager
	keys          *domainaccount.KeyService
	registry      *provider.Registry
}

func NewConversationHandler(
	conversations *domainconv.Service,
	manager *chat.Manager,
	keys *domainaccount.KeyService,
	registry *provider.Registry,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		manager:       manager,
		keys:          keys,
		registry:      registry,
	}
}

// CreateConversationRequest is the body for POST /api/v1/conversations.
type CreateConversationRequest struct {
	ProviderID string `json:"providerId"`
}

// Create handles POST /api/v1/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderID != "" {
		if _, ok := h.registry.Get(req.ProviderID); !ok {
			writeError(w, http.StatusBadRequest, "unknown provider")
			return
		}
	}

	conv, err := h.conversations.Create(r.Context(), uuid.NewV7().String(), userID, req.ProviderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ListConversationsResponse is the body for GET /api/v1/conversations.
type ListConversationsResponse struct {
	Conversations []*domainconv.Conversation `json:"conversations"`
	Total         int                        `json:"total"`
	Limit         int                        `json:"limit"`
	Offset        int                        `json:"offset"`
}

// List handles GET /api/v1/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	page := parsePaginationParams(r)
	conversations, total, err := h.conversations.List(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, ListConversationsResponse{
		Conversations: conversations,
		Total:         total,
		Limit:         page.Limit,
		Offset:        page.Offset,
	})
}

// ConversationDetail is the body for GET /api/v1/conversations/{id}.
type ConversationDetail struct {
	Conversation *domainconv.Conversation `json:"conversation"`
	Messages     []domainconv.Message     `json:"messages"`
}

// Get handles GET /api/v1/conversations/{id}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	conv, err := h.conversations.Get(r.Context(), userID, id)
	if err != nil {
		writeConversationError(w, err)
		return
	}
	messages, err := h.conversations.History(r.Context(), userID, id)
	if err != nil {
		writeConversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationDetail{Conversation: conv, Messages: messages})
}

// Delete handles DELETE /api/v1/conversations/{id}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.conversations.Delete(r.Context(), userID, id); err != nil {
		writeConversationError(w, err)
		return
	}
	h.manager.Evict(id)
	w.WriteHeader(http.StatusNoContent)
}

// SendMessageRequest is the body for POST /api/v1/conversations/{id}/chat.
// APIKeys are optional: stored keys are used as the base and per-request
// keys override them.
type SendMessageRequest struct {
	Content    string            `json:"content"`
	ProviderID string            `json:"providerId,omitempty"`
	APIKeys    map[string]string `json:"apiKeys,omitempty"`
}

// SendMessageResponse carries both persisted turns of an exchange.
type SendMessageResponse struct {
	UserMessage      domainconv.Message `json:"userMessage"`
	AssistantMessage domainconv.Message `json:"assistantMessage"`
}

// Chat handles POST /api/v1/conversations/{id}/chat.
func (h *ConversationHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.conversations.Get(r.Context(), userID, id)
	if err != nil {
		writeConversationError(w, err)
		return
	}

	providerID := req.ProviderID
	if providerID == "" {
		providerID = conv.ProviderID
	}
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	creds, err := h.mergedCredentials(r.Context(), userID, req.APIKeys)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stored keys")
		return
	}
	if !h.registry.ValidateCredentials(providerID, creds) {
		writeError(w, http.StatusBadRequest, "missing or invalid API keys for provider")
		return
	}

	session, err := h.session(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation session")
		return
	}

	assistantTurn, err := session.SendMessage(r.Context(), req.Content, providerID, creds)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	// The send succeeded; the session's last two turns are the exchange.
	turns := session.Turns()
	userTurn := turns[len(turns)-2]

	userMsg := turnToMessage(id, userTurn)
	assistantMsg := turnToMessage(id, *assistantTurn)
	if err := h.conversations.AppendExchange(r.Context(), userID, userMsg, assistantMsg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist exchange")
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	})
}

// RegenerateRequest is the optional body for POST
// /api/v1/conversations/{id}/regenerate. Both fields fall back: provider to
// the conversation's default (then the replaced turn's provider), keys to
// the stored ones.
type RegenerateRequest struct {
	ProviderID string            `json:"providerId,omitempty"`
	APIKeys    map[string]string `json:"apiKeys,omitempty"`
}

// Regenerate handles POST /api/v1/conversations/{id}/regenerate.
func (h *ConversationHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	id := chi.URLParam(r, "id")

	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.conversations.Get(r.Context(), userID, id)
	if err != nil {
		writeConversationError(w, err)
		return
	}

	session, err := h.session(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation session")
		return
	}

	// Capture the turn being replaced before the session mutates.
	turns := session.Turns()
	if len(turns) < 2 {
		writeError(w, http.StatusBadRequest, "nothing to regenerate")
		return
	}
	replaced := turns[len(turns)-1]

	// A hydrated session has no remembered send parameters, so they are
	// re-derived here: request, then conversation default, then the
	// provider that produced the turn being replaced.
	providerID := req.ProviderID
	if providerID == "" {
		providerID = conv.ProviderID
	}
	if providerID == "" {
		providerID = replaced.Provider
	}
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	creds, err := h.mergedCredentials(r.Context(), userID, req.APIKeys)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stored keys")
		return
	}
	if !h.registry.ValidateCredentials(providerID, creds) {
		writeError(w, http.StatusBadRequest, "missing or invalid API keys for provider")
		return
	}

	assistantTurn, err := session.RegenerateLast(r.Context(), providerID, creds)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	if err := h.conversations.DeleteMessage(r.Context(), userID, id, replaced.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist regeneration")
		return
	}
	assistantMsg := turnToMessage(id, *assistantTurn)
	if err := h.conversations.AppendMessage(r.Context(), userID, assistantMsg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist regeneration")
		return
	}

	writeJSON(w, http.StatusOK, map[string]domainconv.Message{"assistantMessage": assistantMsg})
}

// session returns the orchestrator for the conversation, hydrating it from
// persisted history on first use.
func (h *ConversationHandler) session(ctx context.Context, userID, conversationID string) (*chat.Orchestrator, error) {
	return h.manager.Session(ctx, conversationID, func(ctx context.Context) ([]chat.Turn, error) {
		history, err := h.conversations.History(ctx, userID, conversationID)
		if err != nil {
			return nil, err
		}
		turns := make([]chat.Turn, 0, len(history))
		for _, m := range history {
			turns = append(turns, chat.Turn{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.CreatedAt,
				Provider:  m.ProviderID,
			})
		}
		return turns, nil
	})
}

// mergedCredentials merges stored keys with per-request keys; the request
// wins on conflicts.
func (h *ConversationHandler) mergedCredentials(ctx context.Context, userID string, requestKeys map[string]string) (map[string]string, error) {
	creds, err := h.keys.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	for name, value := range requestKeys {
		creds[name] = value
	}
	return creds, nil
}

func turnToMessage(conversationID string, turn chat.Turn) domainconv.Message {
	return domainconv.Message{
		ID:             turn.ID,
		ConversationID: conversationID,
		Role:           turn.Role,
		Content:        turn.Content,
		ProviderID:     turn.Provider,
		CreatedAt:      turn.Timestamp,
	}
}

func writeConversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, domainconv.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "conversation operation failed")
}

// writeOrchestratorError maps orchestrator rejections and generation
// failures to HTTP codes.
func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message content is empty")
	case errors.Is(err, chat.ErrRequestInFlight):
		writeError(w, http.StatusConflict, "a request is already in flight for this conversation")
	case errors.Is(err, chat.ErrNothingToRedo):
		writeError(w, http.StatusBadRequest, "nothing to regenerate")
	default:
		writeGenerationError(w, err)
	}
}
