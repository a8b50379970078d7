package vcs

import (
	"github.com/rostilos/codecrow/internal/errors"
)

// NewOperationsFunc constructs a provider client for one repository binding.
// Registered at init time by the provider packages to avoid import cycles.
type NewOperationsFunc func(binding Binding, cfg Config) (Operations, error)

var providerConstructors = map[ProviderType]NewOperationsFunc{}

// RegisterProvider registers a provider constructor. Called from init() in
// the provider packages (github/, gitlab/, bitbucket/, bitbucketserver/).
func RegisterProvider(providerType ProviderType, constructor NewOperationsFunc) {
	providerConstructors[providerType] = constructor
}

// NewOperations builds the provider client for a project's provider tag.
// Unknown tags fail fast with UnsupportedProvider.
func NewOperations(providerType ProviderType, binding Binding, cfg Config) (Operations, error) {
	constructor, ok := providerConstructors[providerType]
	if !ok {
		return nil, errors.ErrUnsupportedProvider(string(providerType))
	}
	return constructor(binding, cfg)
}

// AsReporter returns the provider's Reporter surface when it has one.
func AsReporter(ops Operations) (Reporter, bool) {
	r, ok := ops.(Reporter)
	return r, ok
}
