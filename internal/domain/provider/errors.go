package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider indicates the provider id is not in the catalog.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnsupportedCompany indicates a known provider whose company has no
	// client construction path. Unreachable while the catalog is built from
	// ParseCompany, but the resolver still guards against it.
	ErrUnsupportedCompany = errors.New("unsupported provider company")
)

// MissingCredentialError names the credential key that an otherwise-known
// provider requires but the supplied credential map lacks.
type MissingCredentialError struct {
	ProviderID    string
	CredentialKey string
}

// Error implements the error interface.
func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("provider %q requires credential %s", e.ProviderID, e.CredentialKey)
}
