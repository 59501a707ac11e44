package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Generic is an OAuth provider described by explicit endpoint URLs. The
// named presets (github, google) are Generic instances with their endpoints
// and subject mapping filled in.
type Generic struct {
	name         string
	authorizeURL string
	tokenURL     string
	userinfoURL  string

	// subjectKeys are tried in order against the userinfo document.
	subjectKeys []string

	// offlineAccess requests a refresh token on the authorize redirect.
	offlineAccess bool

	httpClient *http.Client

	discoverOnce sync.Once
}

// GenericOption configures a Generic provider.
type GenericOption func(*Generic)

// WithHTTPClient overrides the HTTP client used for userinfo calls.
func WithHTTPClient(c *http.Client) GenericOption {
	return func(g *Generic) { g.httpClient = c }
}

// NewGeneric creates a "custom" provider from explicit endpoint URLs.
// userinfoURL may be empty; in that case the provider attempts OIDC
// discovery against the authorize URL's origin on first use, and userinfo
// enrichment is simply unavailable if discovery finds nothing.
func NewGeneric(authorizeURL, tokenURL, userinfoURL string, opts ...GenericOption) *Generic {
	g := &Generic{
		name:          "custom",
		authorizeURL:  authorizeURL,
		tokenURL:      tokenURL,
		userinfoURL:   userinfoURL,
		subjectKeys:   []string{"sub", "id", "login"},
		offlineAccess: true,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the provider name.
func (g *Generic) Name() string { return g.name }

func (g *Generic) oauthConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  g.authorizeURL,
			TokenURL: g.tokenURL,
		},
	}
}

// AuthCodeURL builds the IdP authorize URL.
func (g *Generic) AuthCodeURL(clientID, redirectURI string, scopes []string, state string) string {
	conf := g.oauthConfig(clientID, "", redirectURI, scopes)
	var opts []oauth2.AuthCodeOption
	if g.offlineAccess {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return conf.AuthCodeURL(state, opts...)
}

// Exchange trades the authorization code for IdP tokens.
func (g *Generic) Exchange(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*oauth2.Token, error) {
	tok, err := g.oauthConfig(clientID, clientSecret, redirectURI, nil).Exchange(ctx, code)
	if err != nil {
		return nil, asExchangeError(err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh IdP token.
func (g *Generic) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*oauth2.Token, error) {
	tok, err := g.oauthConfig(clientID, clientSecret, "", nil).
		TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).
		Token()
	if err != nil {
		return nil, asExchangeError(err)
	}
	return tok, nil
}

// discoverUserinfo fills in the userinfo endpoint from the IdP's OIDC
// discovery document when no explicit URL was configured. Best effort: a
// provider without discovery just has no userinfo.
func (g *Generic) discoverUserinfo(ctx context.Context) {
	g.discoverOnce.Do(func() {
		if g.userinfoURL != "" {
			return
		}
		parsed, err := url.Parse(g.authorizeURL)
		if err != nil {
			return
		}
		issuer := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
		provider, err := oidc.NewProvider(oidc.InsecureIssuerURLContext(ctx, issuer), issuer)
		if err != nil {
			return
		}
		g.userinfoURL = provider.UserInfoEndpoint()
	})
}

// UserInfo fetches the identity behind accessToken.
func (g *Generic) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	g.discoverUserinfo(ctx)
	if g.userinfoURL == "" {
		return nil, fmt.Errorf("provider %s has no userinfo endpoint", g.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ExchangeError{Status: resp.StatusCode, Detail: string(body)}
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	info := &UserInfo{
		Email: stringField(raw, "email"),
		Name:  stringField(raw, "name"),
		Raw:   raw,
	}
	for _, key := range g.subjectKeys {
		if v := stringOrNumberField(raw, key); v != "" {
			info.Subject = v
			break
		}
	}
	return info, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// stringOrNumberField handles providers that report numeric user IDs.
func stringOrNumberField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".")
	default:
		return ""
	}
}

var _ Provider = (*Generic)(nil)
