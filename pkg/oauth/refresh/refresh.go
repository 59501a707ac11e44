// Package refresh re-issues bridge access tokens for subjects whose
// provider token went stale, using the stored refresh token.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/toolfront/mcp-auth-bridge/pkg/providers"
	"github.com/toolfront/mcp-auth-bridge/pkg/store"
	"github.com/toolfront/mcp-auth-bridge/pkg/tokens"
)

type Refresher struct {
	store        store.Store
	provider     providers.Provider
	issuer       *tokens.Issuer
	clientID     string
	clientSecret string
}

// NewRefresher creates a refresher.
func NewRefresher(st store.Store, provider providers.Provider, issuer *tokens.Issuer, clientID, clientSecret string) *Refresher {
	return &Refresher{
		store:        st,
		provider:     provider,
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Refresh returns a fresh bridge access token for subject. When the stored
// provider mapping is stale it is exchanged once at the IdP; a failed
// exchange removes the stale mapping and is reported to the caller, who
// owns any retry policy.
func (rf *Refresher) Refresh(ctx context.Context, subject string) (string, *tokens.Claims, error) {
	mapping, err := rf.store.GetMapping(subject)
	if err != nil {
		return "", nil, fmt.Errorf("no provider token for subject %q: %w", subject, err)
	}

	if mapping.Stale(time.Now()) {
		if mapping.RefreshToken == "" {
			_ = rf.store.Invalidate(subject)
			return "", nil, fmt.Errorf("provider token for subject %q is stale and has no refresh token", subject)
		}

		idpToken, err := rf.provider.Refresh(ctx, mapping.RefreshToken, rf.clientID, rf.clientSecret)
		if err != nil {
			_ = rf.store.Invalidate(subject)
			return "", nil, err
		}

		refreshed := store.ProviderToken{
			AccessToken:  idpToken.AccessToken,
			RefreshToken: idpToken.RefreshToken,
			Scopes:       mapping.Scopes,
			Expiry:       idpToken.Expiry,
		}
		// Providers may omit the refresh token on renewal; keep the old one.
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = mapping.RefreshToken
		}
		if err := rf.store.PutProviderToken(subject, refreshed); err != nil {
			return "", nil, fmt.Errorf("failed to record refreshed provider token: %w", err)
		}
	}

	signed, claims, err := rf.issuer.Mint(subject, mapping.Scopes, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint access token: %w", err)
	}
	return signed, claims, nil
}
