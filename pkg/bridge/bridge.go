// Package bridge assembles the authentication pieces into one HTTP surface:
// the login endpoints, the credential middleware that gates tool handlers,
// and the background upkeep that keeps the in-memory store bounded.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"

	"github.com/toolfront/mcp-auth-bridge/pkg/config"
	"github.com/toolfront/mcp-auth-bridge/pkg/credential"
	"github.com/toolfront/mcp-auth-bridge/pkg/encryption"
	"github.com/toolfront/mcp-auth-bridge/pkg/handlerutils"
	"github.com/toolfront/mcp-auth-bridge/pkg/oauth/authorize"
	"github.com/toolfront/mcp-auth-bridge/pkg/oauth/callback"
	"github.com/toolfront/mcp-auth-bridge/pkg/oauth/refresh"
	"github.com/toolfront/mcp-auth-bridge/pkg/providers"
	"github.com/toolfront/mcp-auth-bridge/pkg/ratelimit"
	"github.com/toolfront/mcp-auth-bridge/pkg/store"
	"github.com/toolfront/mcp-auth-bridge/pkg/tokens"
	"github.com/toolfront/mcp-auth-bridge/pkg/types"
)

const requestIDHeader = "X-Request-ID"

// Bridge owns the wiring between the sealed configuration, the credential
// store, the identity provider, and the HTTP handlers.
type Bridge struct {
	registry    *config.Registry
	store       store.Store
	providers   *providers.Manager
	provider    providers.Provider
	issuer      *tokens.Issuer
	validator   *tokens.Validator
	refresher   *refresh.Refresher
	rateLimiter *ratelimit.RateLimiter
	logOutput   io.Writer

	cancel context.CancelFunc
}

type Option func(*Bridge)

// WithStore substitutes the credential store. The default is the built-in
// in-memory store.
func WithStore(st store.Store) Option {
	return func(b *Bridge) { b.store = st }
}

// WithEncryptionKey enables at-rest encryption of stored provider tokens.
// The key must be 32 bytes. Ignored when WithStore is also given.
func WithEncryptionKey(key []byte) Option {
	return func(b *Bridge) {
		cipher, err := encryption.NewCipher(key)
		if err != nil {
			log.Fatalf("Invalid encryption key: %v", err)
		}
		if b.store == nil {
			b.store = store.NewMemory(store.WithCipher(cipher))
		}
	}
}

// WithLogOutput redirects the access log. The default is stdout.
func WithLogOutput(w io.Writer) Option {
	return func(b *Bridge) { b.logOutput = w }
}

// New builds a bridge from a sealed registry. Configuration problems are
// programming errors at this point and are fatal.
func New(reg *config.Registry, opts ...Option) (*Bridge, error) {
	if !reg.Sealed() {
		return nil, fmt.Errorf("registry must be sealed before the bridge starts")
	}

	b := &Bridge{
		registry:    reg,
		providers:   providers.NewManager(),
		rateLimiter: ratelimit.NewRateLimiter(15*time.Minute, 5000),
		logOutput:   os.Stdout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = store.NewMemory()
	}

	if reg.Mode() == config.ModeOAuth {
		p := reg.Provider()

		b.providers.Register(providers.NewGitHub())
		b.providers.Register(providers.NewGoogle())
		if p.Name == "custom" {
			b.providers.Register(providers.NewGeneric(p.AuthorizeURL, p.TokenURL, p.UserinfoURL))
		}

		provider, err := b.providers.Get(p.Name)
		if err != nil {
			return nil, fmt.Errorf("unknown identity provider %q: %w", p.Name, err)
		}
		b.provider = provider

		ttl := time.Duration(p.TokenExpiration) * time.Second
		b.issuer = tokens.NewIssuer(p.IssuerURL, reg.SigningSecret(), ttl)
		b.validator = tokens.NewValidator(p.IssuerURL, reg.SigningSecret(), reg.RequiredScopes())
		b.refresher = refresh.NewRefresher(b.store, provider, b.issuer, reg.ClientID(), reg.ClientSecret())
	}

	return b, nil
}

// Start launches the background upkeep. The bridge runs until Close or until
// ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.rateLimiter.PruneIdle()
			}
		}
	}()
}

// Close stops the background upkeep and releases the store.
func (b *Bridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return b.store.Close()
}

// RefreshToken re-issues an access token for a subject whose login already
// completed, renewing the provider token first when it has gone stale.
func (b *Bridge) RefreshToken(ctx context.Context, subject string) (string, *tokens.Claims, error) {
	if b.refresher == nil {
		return "", nil, fmt.Errorf("token refresh requires delegated login mode")
	}
	return b.refresher.Refresh(ctx, subject)
}

// Routes registers the login endpoints on mux. In API-key mode there is
// nothing to register beyond the health check.
func (b *Bridge) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", b.healthHandler)

	if b.registry.Mode() != config.ModeOAuth {
		return
	}

	p := b.registry.Provider()
	redirectURI := p.RedirectURI()

	authorizeHandler := authorize.NewHandler(b.store, b.provider, b.registry.ClientID(), redirectURI, p.Scopes)
	callbackHandler := callback.NewHandler(b.store, b.provider, b.issuer, b.registry.ClientID(), b.registry.ClientSecret(), redirectURI)

	mux.Handle("GET /authorize", b.withRateLimit(authorizeHandler))
	mux.Handle("GET "+p.CallbackPath, b.withRateLimit(callbackHandler))
}

// Handler returns the complete HTTP surface: the login endpoints plus next
// behind the credential middleware, wrapped in access logging.
func (b *Bridge) Handler(next http.Handler) http.Handler {
	mux := http.NewServeMux()
	b.Routes(mux)
	if next != nil {
		mux.Handle("/", b.Wrap(next))
	}
	return handlers.LoggingHandler(b.logOutput, withRequestID(mux))
}

// Wrap gates next behind the configured credential check. On success the
// request context carries the caller's credential; tool handlers read it
// with the credential package accessors and never see each other's.
func (b *Bridge) Wrap(next http.Handler) http.Handler {
	switch b.registry.Mode() {
	case config.ModeOAuth:
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := tokens.ExtractBearer(r.Header)
			if err != nil {
				handlerutils.CredentialError(w, err)
				return
			}
			claims, err := b.validator.Validate(raw)
			if err != nil {
				handlerutils.CredentialError(w, err)
				return
			}
			cred := &credential.Credential{
				Subject:   claims.Subject,
				Scopes:    claims.Scopes,
				ExpiresAt: claims.ExpiresAt,
				Claims:    claims,
			}
			next.ServeHTTP(w, r.WithContext(credential.With(r.Context(), cred)))
		})
	case config.ModeAPIKey:
		rule := b.registry.APIKey()
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := tokens.ExtractAPIKey(r.Header, rule)
			if err != nil {
				handlerutils.CredentialError(w, err)
				return
			}
			// An optional key that is absent leaves the request
			// anonymous rather than attaching an empty credential.
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(credential.With(r.Context(), &credential.Credential{APIKey: key})))
		})
	default:
		return next
	}
}

func (b *Bridge) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.rateLimiter.Allow(handlerutils.GetClientIP(r)) {
			handlerutils.JSON(w, http.StatusTooManyRequests, types.OAuthError{
				Error:            "too_many_requests",
				ErrorDescription: "Rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bridge) healthHandler(w http.ResponseWriter, _ *http.Request) {
	handlerutils.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   b.registry.Mode().String(),
	})
}

// withRequestID tags every request with a correlation id, honoring one the
// caller already set.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
