package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cleansight/internal/domain"
)

// OAuthProvider is an external identity provider. Implementations return
// identity facts only; account creation and linking happen in Client.
type OAuthProvider interface {
	// Name is the provider identifier used in routes, e.g. "google"
	Name() string

	// AuthCodeURL builds the authorization URL, deriving the PKCE challenge from codeVerifier
	AuthCodeURL(state, codeVerifier string) string

	// ExchangeCode trades the authorization code for a normalized assertion
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*domain.FederatedAssertion, error)
}

// Registry looks up configured providers by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]OAuthProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]OAuthProvider)}
}

// Register adds a provider, rejecting duplicate names
func (r *Registry) Register(p OAuthProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

func (r *Registry) Get(name string) (OAuthProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered providers in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
