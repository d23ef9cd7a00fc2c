package provider

import (
	"strings"

	"github.com/mkersic/relay/internal/infra/llm"
)

// ResolverConfig carries base URL overrides for the underlying clients
// (tests, proxies). Empty values mean each adapter's production endpoint.
type ResolverConfig struct {
	OpenAIBaseURL    string
	GroqBaseURL      string
	AnthropicBaseURL string
	GoogleBaseURL    string
}

// Resolver turns a provider id plus a credential map into a ready-to-invoke
// llm.Provider. It constructs client configuration only — no network I/O.
type Resolver struct {
	registry *Registry
	config   ResolverConfig
}

// NewResolver creates a Resolver over the given catalog.
func NewResolver(registry *Registry, config ResolverConfig) *Resolver {
	return &Resolver{registry: registry, config: config}
}

// ResolveModel looks up the provider and constructs a client bound to the
// caller's credential and the descriptor's default (first) backing model.
//
// Failure modes:
//   - ErrUnknownProvider — id not in the catalog (ids are case-sensitive)
//   - MissingCredentialError — required secret absent, names the key
//   - ErrUnsupportedCompany — company without a client construction path
func (r *Resolver) ResolveModel(id string, creds CredentialMap) (llm.Provider, error) {
	d, ok := r.registry.Get(id)
	if !ok {
		return nil, ErrUnknownProvider
	}

	key := strings.TrimSpace(creds[d.Company.CredentialKey()])
	if d.RequiresAPIKey && key == "" {
		return nil, &MissingCredentialError{ProviderID: d.ID, CredentialKey: d.Company.CredentialKey()}
	}

	model := d.DefaultModel()
	switch d.Company {
	case CompanyOpenAI:
		return llm.NewOpenAIProvider(key, model, r.config.OpenAIBaseURL), nil
	case CompanyAnthropic:
		return llm.NewAnthropicProvider(key, model, r.config.AnthropicBaseURL), nil
	case CompanyGoogle:
		return llm.NewGoogleProvider(key, model, r.config.GoogleBaseURL), nil
	case CompanyGroq:
		return llm.NewGroqProvider(key, model, r.config.GroqBaseURL), nil
	default:
		return nil, ErrUnsupportedCompany
	}
}
