// Package providers adapts external identity providers to the handful of
// operations the bridge needs: building the authorize URL, exchanging an
// authorization code, fetching userinfo, and refreshing.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// UserInfo is the identity an IdP reports for an access token.
type UserInfo struct {
	// Subject is the stable user identifier.
	Subject string
	Email   string
	Name    string

	// Raw is the decoded userinfo document.
	Raw map[string]any
}

// ExchangeError reports a failed token or userinfo call against the IdP. It
// carries the IdP's status and response body for diagnostics; it never
// carries the client secret.
type ExchangeError struct {
	Status int
	Detail string
}

func (e *ExchangeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("providers: exchange failed: %s", e.Detail)
	}
	return fmt.Sprintf("providers: exchange failed with status %d: %s", e.Status, e.Detail)
}

// asExchangeError converts oauth2 errors, preserving the IdP status and body
// when the transport saw a non-2xx response.
func asExchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return &ExchangeError{Status: status, Detail: string(rerr.Body)}
	}
	return &ExchangeError{Detail: err.Error()}
}

// Provider is one external IdP integration.
type Provider interface {
	// Name returns the provider name ("github", "google", "custom").
	Name() string

	// AuthCodeURL builds the IdP authorize URL carrying state.
	AuthCodeURL(clientID, redirectURI string, scopes []string, state string) string

	// Exchange trades an authorization code for IdP tokens. A cancelled
	// context abandons the in-flight exchange.
	Exchange(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*oauth2.Token, error)

	// UserInfo fetches the identity behind accessToken. Providers without
	// a userinfo endpoint return an error.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// Refresh trades a refresh token for a fresh IdP token.
	Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*oauth2.Token, error)
}

// Manager holds registered providers by name.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (m *Manager) Get(name string) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}
