package config

import (
	"errors"
	"sync/atomic"

	"github.com/toolfront/mcp-auth-bridge/pkg/secret"
)

// Mode is the active authentication mode of the process.
type Mode int

const (
	// ModeDisabled means no authentication is enforced.
	ModeDisabled Mode = iota
	// ModeOAuth authenticates callers with bridge-issued signed tokens.
	ModeOAuth
	// ModeAPIKey extracts an opaque key and forwards it unverified.
	ModeAPIKey
)

func (m Mode) String() string {
	switch m {
	case ModeOAuth:
		return "oauth"
	case ModeAPIKey:
		return "apikey"
	default:
		return "disabled"
	}
}

// ErrSealed is returned when configuration is attempted after Seal.
// Callers treat it as a programming error and fail fast.
var ErrSealed = errors.New("config: registry is sealed, configuration must happen before serving")

// Registry is the process-wide holder of the active auth mode. It is
// populated once during startup, sealed, and read-only thereafter, so reads
// on the request path need no locking.
type Registry struct {
	sealed atomic.Bool

	mode           Mode
	provider       Provider
	requiredScopes []string
	apiKey         APIKey

	// Resolved secret values. Unexported so they cannot leak through
	// marshalling of the registry.
	clientID      string
	clientSecret  string
	signingSecret []byte
}

// NewRegistry returns a registry in the disabled mode.
func NewRegistry() *Registry {
	return &Registry{}
}

// ConfigureOAuth activates OAuth mode. Secret references in the provider are
// resolved through src immediately; any resolution or validation failure is
// a ConfigError and the caller must not start serving.
func (r *Registry) ConfigureOAuth(src secret.Source, p Provider, requiredScopes []string) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if r.mode == ModeAPIKey {
		return &ConfigError{Field: "mode", Reason: "api key mode already configured, modes are mutually exclusive"}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	clientID, err := src.Resolve(p.ClientIDRef)
	if err != nil {
		return &ConfigError{Field: "client_id_ref", Reason: err.Error()}
	}
	clientSecret, err := src.Resolve(p.ClientSecretRef)
	if err != nil {
		return &ConfigError{Field: "client_secret_ref", Reason: err.Error()}
	}
	signingSecret, err := src.Resolve(p.SigningSecretRef)
	if err != nil {
		return &ConfigError{Field: "signing_secret_ref", Reason: err.Error()}
	}

	r.mode = ModeOAuth
	r.provider = p
	r.requiredScopes = append([]string(nil), requiredScopes...)
	r.clientID = clientID
	r.clientSecret = clientSecret
	r.signingSecret = []byte(signingSecret)
	return nil
}

// ConfigureAPIKey activates API key mode.
func (r *Registry) ConfigureAPIKey(k APIKey) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if r.mode == ModeOAuth {
		return &ConfigError{Field: "mode", Reason: "oauth mode already configured, modes are mutually exclusive"}
	}
	if err := k.Validate(); err != nil {
		return err
	}

	r.mode = ModeAPIKey
	r.apiKey = k
	return nil
}

// Seal makes the registry immutable. It is one-way.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Mode returns the active authentication mode.
func (r *Registry) Mode() Mode { return r.mode }

// Provider returns the configured provider description. Only meaningful in
// OAuth mode.
func (r *Registry) Provider() Provider { return r.provider }

// RequiredScopes returns the scopes a validated token must carry.
func (r *Registry) RequiredScopes() []string { return r.requiredScopes }

// APIKey returns the configured extraction rule. Only meaningful in API key
// mode.
func (r *Registry) APIKey() APIKey { return r.apiKey }

// ClientID returns the resolved OAuth client ID.
func (r *Registry) ClientID() string { return r.clientID }

// ClientSecret returns the resolved OAuth client secret.
func (r *Registry) ClientSecret() string { return r.clientSecret }

// SigningSecret returns the resolved token signing secret.
func (r *Registry) SigningSecret() []byte { return r.signingSecret }
