package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/mkersic/relay/internal/domain/provider"
	"github.com/mkersic/relay/internal/infra/llm"
)

// Service implements Generator by resolving the provider descriptor to a
// bound model handle and issuing the completion call with a deadline. It is
// the single seam between conversation state and provider transports.
type Service struct {
	resolver *provider.Resolver
	timeout  time.Duration
}

// NewService wires a generation service around a resolver. timeout bounds
// each upstream call; zero means no deadline beyond the caller's ctx.
func NewService(resolver *provider.Resolver, timeout time.Duration) *Service {
	return &Service{resolver: resolver, timeout: timeout}
}

// Generate resolves providerID against creds and performs one completion
// over the given history. Resolution errors (unknown provider, missing
// credential) pass through untouched so callers can classify them.
func (s *Service) Generate(ctx context.Context, providerID string, creds provider.CredentialMap, turns []Turn) (*llm.ChatResponse, error) {
	model, err := s.resolver.ResolveModel(providerID, creds)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req := llm.ChatRequest{Messages: toLLMMessages(turns)}
	resp, err := model.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, err)
	}
	return resp, nil
}

func toLLMMessages(turns []Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}
