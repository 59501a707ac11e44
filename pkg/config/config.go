// Package config holds the authentication configuration for the bridge.
//
// Configuration is assembled once during startup and sealed before the
// server accepts its first request. Secret fields carry references that are
// resolved through a secret.Source at configure time; resolved values live
// only in unexported Registry fields.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ConfigError reports invalid or unresolvable configuration. It is fatal at
// startup: the bridge refuses to serve with a broken auth setup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Provider describes one external identity provider integration.
//
// ClientIDRef, ClientSecretRef and SigningSecretRef are secret references
// (environment variable names by default), not secret values.
type Provider struct {
	// Name selects the provider preset: "github", "google" or "custom".
	Name string

	ClientIDRef     string
	ClientSecretRef string
	// SigningSecretRef references the HMAC secret used to sign the bridge's
	// own access tokens.
	SigningSecretRef string

	// AuthorizeURL and TokenURL are required for "custom"; presets fill
	// their own endpoints and treat these as overrides.
	AuthorizeURL string
	TokenURL     string
	// UserinfoURL is optional. When empty for a "custom" provider, the
	// bridge may attempt OIDC discovery against the endpoint's origin.
	UserinfoURL string

	// Scopes are requested from the identity provider, in order.
	Scopes []string

	// IssuerURL is this server's public base URL. It becomes the "iss"
	// claim of issued tokens and the base of the callback redirect URI.
	IssuerURL string

	// CallbackPath is the path the identity provider redirects back to.
	CallbackPath string

	// TokenExpiration is the lifetime of issued access tokens in seconds.
	TokenExpiration int
}

// Validate checks the invariants that must hold before the provider can be
// used: absolute URLs, a positive token lifetime, a rooted callback path.
func (p *Provider) Validate() error {
	switch p.Name {
	case "github", "google", "custom":
	default:
		return &ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", p.Name)}
	}

	if p.ClientIDRef == "" {
		return &ConfigError{Field: "client_id_ref", Reason: "secret reference is required"}
	}
	if p.ClientSecretRef == "" {
		return &ConfigError{Field: "client_secret_ref", Reason: "secret reference is required"}
	}
	if p.SigningSecretRef == "" {
		return &ConfigError{Field: "signing_secret_ref", Reason: "secret reference is required"}
	}

	if p.Name == "custom" {
		if err := requireAbsoluteURL("authorize_url", p.AuthorizeURL); err != nil {
			return err
		}
		if err := requireAbsoluteURL("token_url", p.TokenURL); err != nil {
			return err
		}
	}
	if p.UserinfoURL != "" {
		if err := requireAbsoluteURL("userinfo_url", p.UserinfoURL); err != nil {
			return err
		}
	}
	if err := requireAbsoluteURL("issuer_url", p.IssuerURL); err != nil {
		return err
	}

	if !strings.HasPrefix(p.CallbackPath, "/") {
		return &ConfigError{Field: "callback_path", Reason: "must start with /"}
	}
	if p.TokenExpiration <= 0 {
		return &ConfigError{Field: "token_expiration", Reason: "must be greater than zero"}
	}
	return nil
}

// RedirectURI is the callback URI registered with the identity provider.
func (p *Provider) RedirectURI() string {
	return strings.TrimSuffix(p.IssuerURL, "/") + p.CallbackPath
}

// APIKey describes pass-through API key extraction. The key value is never
// verified by the bridge itself; verification happens at whatever upstream
// API the key is forwarded to.
type APIKey struct {
	// HeaderName is the header carrying the key, e.g. "X-API-Key" or
	// "Authorization".
	HeaderName string

	// Prefix is stripped from the header value when present, e.g. "Bearer ".
	Prefix string

	// Required rejects requests lacking the header when true.
	Required bool
}

// Validate checks that the extraction rule is usable.
func (k *APIKey) Validate() error {
	if strings.TrimSpace(k.HeaderName) == "" {
		return &ConfigError{Field: "api_key_header", Reason: "header name is required"}
	}
	return nil
}

func requireAbsoluteURL(field, raw string) error {
	if raw == "" {
		return &ConfigError{Field: field, Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}
	if !u.IsAbs() || u.Host == "" {
		return &ConfigError{Field: field, Reason: "must be an absolute URL"}
	}
	return nil
}
