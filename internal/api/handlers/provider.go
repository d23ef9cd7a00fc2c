package handlers

import (
	"net/http"

	"github.com/mkersic/relay/internal/domain/provider"
)

// ProviderHandler serves the provider catalog.
type ProviderHandler struct {
	registry *provider.Registry
}

func NewProviderHandler(registry *provider.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// ProvidersResponse is the body of GET /api/providers.
type ProvidersResponse struct {
	Providers []provider.Descriptor `json:"providers"`
	Count     int                   `json:"count"`
}

// List handles GET /api/providers. Public: the catalog carries no secrets.
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.List()
	writeJSON(w, http.StatusOK, ProvidersResponse{
		Providers: descriptors,
		Count:     len(descriptors),
	})
}
