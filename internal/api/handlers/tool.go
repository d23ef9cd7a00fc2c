package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	domaintool "github.com/mkersic/relay/internal/domain/tool"
)

// ToolHandler exposes the simulated tool panels.
type ToolHandler struct {
	registry *domaintool.Registry
}

func NewToolHandler(registry *domaintool.Registry) *ToolHandler {
	return &ToolHandler{registry: registry}
}

// ListToolsResponse is the body for GET /api/v1/tools.
type ListToolsResponse struct {
	Tools []*domaintool.Definition `json:"tools"`
}

// List handles GET /api/v1/tools.
func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	tools, err := h.registry.ListDefinitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tools")
		return
	}
	writeJSON(w, http.StatusOK, ListToolsResponse{Tools: tools})
}

// Execute handles POST /api/v1/tools/{name}/execute. The body is passed to
// the executor as raw params after schema validation.
func (h *ToolHandler) Execute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.registry.Execute(r.Context(), name, json.RawMessage(body))
	if err != nil {
		writeToolError(w, err)
		return
	}

	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(http.StatusOK)
	w.Write(result) //nolint:errcheck
}

func writeToolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domaintool.ErrDefinitionNotFound),
		errors.Is(err, domaintool.ErrExecutorNotRegistered):
		writeError(w, http.StatusNotFound, "tool not found")
	case errors.Is(err, domaintool.ErrValidationFailed),
		errors.Is(err, domaintool.ErrSimulatedExecutionFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "tool execution failed")
	}
}
