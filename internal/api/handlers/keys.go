package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domainaccount "github.com/mkersic/relay/internal/domain/account"
)

// KeysHandler manages stored provider credentials. Values are write-only:
// they go in via PUT and are only ever read by the generation path.
type KeysHandler struct {
	keys *domainaccount.KeyService
}

func NewKeysHandler(keys *domainaccount.KeyService) *KeysHandler {
	return &KeysHandler{keys: keys}
}

// StoreKeyRequest is the body for PUT /api/v1/keys/{name}.
type StoreKeyRequest struct {
	Value string `json:"value"`
}

// Store handles PUT /api/v1/keys/{name}.
func (h *KeysHandler) Store(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	name := chi.URLParam(r, "name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "key name is required")
		return
	}

	var req StoreKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if err := h.keys.Store(r.Context(), userID, name, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// ListKeysResponse is the body for GET /api/v1/keys. Names and timestamps
// only — never values.
type ListKeysResponse struct {
	Keys []domainaccount.StoredKey `json:"keys"`
}

// List handles GET /api/v1/keys.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	keys, err := h.keys.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, ListKeysResponse{Keys: keys})
}

// Delete handles DELETE /api/v1/keys/{name}.
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	name := chi.URLParam(r, "name")

	if err := h.keys.Delete(r.Context(), userID, name); err != nil {
		if errors.Is(err, domainaccount.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, "stored key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
