package provider

import "strings"

// CredentialMap holds per-request secrets keyed by the company credential key
// (e.g. "OPENAI_API_KEY"). Supplied by the caller per request and never
// persisted or cached by this package.
type CredentialMap map[string]string

// Descriptor is an immutable catalog entry for one provider offering.
type Descriptor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Company        Company  `json:"-"`
	CompanyName    string   `json:"company"`
	Models         []string `json:"models"`       // first entry is the default backing model
	Capabilities   []string `json:"capabilities"` // e.g. "text", "code", "vision"
	RequiresAPIKey bool     `json:"requiresApiKey"`
	Status         string   `json:"status"` // informational only
}

// DefaultModel returns the backing model the resolver will use.
func (d Descriptor) DefaultModel() string {
	if len(d.Models) == 0 {
		return ""
	}
	return d.Models[0]
}

// Registry is the static provider catalog. Constructed once, dependency
// injected, immutable afterwards; lookups are concurrency-safe.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry builds a Registry from descriptors. Later duplicates of an id
// replace earlier ones. The company display name is normalized from the
// Company tag so callers cannot introduce a divergent spelling.
func NewRegistry(descriptors []Descriptor) *Registry {
	r := &Registry{byID: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		d.CompanyName = d.Company.String()
		if _, exists := r.byID[d.ID]; !exists {
			r.order = append(r.order, d.ID)
		}
		r.byID[d.ID] = d
	}
	return r
}

// NewDefaultRegistry returns the built-in catalog.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultCatalog())
}

// List returns all descriptors in catalog order. The slice is a copy; the
// catalog itself cannot be mutated through it.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Get looks up a descriptor by id. Ids are case-sensitive exact matches.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// ValidateCredentials reports whether creds satisfies the provider's
// credential requirement. Pure predicate: false for an unknown id (the
// caller surfaces provider-not-found separately), true for a provider that
// needs no key, and otherwise presence of a non-blank secret under the
// company's credential key.
func (r *Registry) ValidateCredentials(id string, creds CredentialMap) bool {
	d, ok := r.byID[id]
	if !ok {
		return false
	}
	if !d.RequiresAPIKey {
		return true
	}
	return strings.TrimSpace(creds[d.Company.CredentialKey()]) != ""
}

// DefaultCatalog returns the descriptors for the provider offerings the chat
// surface exposes.
func DefaultCatalog() []Descriptor {
	return []Descriptor{
		{
			ID:             "gpt-4",
			Name:           "GPT-4",
			Company:        CompanyOpenAI,
			Models:         []string{"gpt-4o", "gpt-4-turbo"},
			Capabilities:   []string{"text", "code", "vision"},
			RequiresAPIKey: true,
			Status:         "available",
		},
		{
			ID:             "gpt-3.5",
			Name:           "GPT-3.5 Turbo",
			Company:        CompanyOpenAI,
			Models:         []string{"gpt-3.5-turbo"},
			Capabilities:   []string{"text", "code"},
			RequiresAPIKey: true,
			Status:         "available",
		},
		{
			ID:             "claude",
			Name:           "Claude",
			Company:        CompanyAnthropic,
			Models:         []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"},
			Capabilities:   []string{"text", "code", "vision"},
			RequiresAPIKey: true,
			Status:         "available",
		},
		{
			ID:             "gemini",
			Name:           "Gemini",
			Company:        CompanyGoogle,
			Models:         []string{"gemini-1.5-pro", "gemini-1.5-flash"},
			Capabilities:   []string{"text", "code", "vision"},
			RequiresAPIKey: true,
			Status:         "available",
		},
		{
			ID:             "llama",
			Name:           "Llama 3.1",
			Company:        CompanyGroq,
			Models:         []string{"llama-3.1-70b-versatile", "llama-3.1-8b-instant"},
			Capabilities:   []string{"text", "code"},
			RequiresAPIKey: true,
			Status:         "available",
		},
		{
			ID:             "mixtral",
			Name:           "Mixtral",
			Company:        CompanyGroq,
			Models:         []string{"mixtral-8x7b-32768"},
			Capabilities:   []string{"text", "code"},
			RequiresAPIKey: true,
			Status:         "available",
		},
	}
}
