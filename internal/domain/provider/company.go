// Package provider holds the provider catalog and the model resolver.
// A provider is a logical offering ("gpt-4", "claude") backed by one or more
// concrete models at a company's API.
package provider

import (
	"fmt"
	"strings"
)

// Company is the tagged set of supported provider families. Using a closed
// enum instead of free strings lets the resolver switch exhaustively and
// keeps credential-key knowledge in one place.
type Company int

const (
	CompanyOpenAI Company = iota
	CompanyAnthropic
	CompanyGoogle
	CompanyGroq
)

// String returns the canonical lowercase company name.
func (c Company) String() string {
	switch c {
	case CompanyOpenAI:
		return "openai"
	case CompanyAnthropic:
		return "anthropic"
	case CompanyGoogle:
		return "google"
	case CompanyGroq:
		return "groq"
	default:
		return fmt.Sprintf("company(%d)", int(c))
	}
}

// CredentialKey returns the credential-map key holding this company's secret.
func (c Company) CredentialKey() string {
	switch c {
	case CompanyOpenAI:
		return "OPENAI_API_KEY"
	case CompanyAnthropic:
		return "ANTHROPIC_API_KEY"
	case CompanyGoogle:
		return "GOOGLE_API_KEY"
	case CompanyGroq:
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// ParseCompany maps a company name to its Company value, case-insensitively.
func ParseCompany(s string) (Company, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return CompanyOpenAI, nil
	case "anthropic":
		return CompanyAnthropic, nil
	case "google":
		return CompanyGoogle, nil
	case "groq":
		return CompanyGroq, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompany, s)
	}
}
