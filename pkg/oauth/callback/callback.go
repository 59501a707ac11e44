// Package callback finishes the delegated login flow: it validates the
// anti-forgery state, exchanges the authorization code at the identity
// provider, mints the bridge's own access token, and records the provider
// token for the authenticated subject.
package callback

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/toolfront/mcp-auth-bridge/pkg/handlerutils"
	"github.com/toolfront/mcp-auth-bridge/pkg/providers"
	"github.com/toolfront/mcp-auth-bridge/pkg/store"
	"github.com/toolfront/mcp-auth-bridge/pkg/tokens"
	"github.com/toolfront/mcp-auth-bridge/pkg/types"
)

type Handler struct {
	store        store.Store
	provider     providers.Provider
	issuer       *tokens.Issuer
	clientID     string
	clientSecret string
	redirectURI  string
}

// NewHandler creates the callback handler. redirectURI must be the exact
// URI the authorize step sent to the IdP; providers reject mismatches.
func NewHandler(st store.Store, provider providers.Provider, issuer *tokens.Issuer, clientID, clientSecret, redirectURI string) *Handler {
	return &Handler{
		store:        st,
		provider:     provider,
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// The IdP reports user-denied and configuration errors back through
	// the redirect.
	if errKind := query.Get("error"); errKind != "" {
		handlerutils.OAuthError(w, http.StatusBadRequest, errKind, query.Get("error_description"))
		return
	}

	code := query.Get("code")
	if code == "" {
		handlerutils.OAuthError(w, http.StatusBadRequest, "invalid_request", "Missing authorization code")
		return
	}

	// State correlates the callback with a pending authorization started
	// by this server. Consuming it makes the state single-use; a miss is
	// either forgery or an expired login attempt.
	md, err := h.store.ConsumeCode(query.Get("state"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			handlerutils.OAuthError(w, http.StatusBadRequest, "invalid_state", "Unknown or expired state parameter")
			return
		}
		handlerutils.OAuthError(w, http.StatusInternalServerError, "server_error", "Failed to load authorization request")
		return
	}

	idpToken, err := h.provider.Exchange(r.Context(), code, h.clientID, h.clientSecret, h.redirectURI)
	if err != nil {
		log.Printf("Failed to exchange authorization code: %v", err)
		var xerr *providers.ExchangeError
		if errors.As(err, &xerr) {
			handlerutils.OAuthError(w, http.StatusBadRequest, "exchange_failed", xerr.Error())
			return
		}
		handlerutils.OAuthError(w, http.StatusBadRequest, "exchange_failed", "Failed to exchange authorization code")
		return
	}

	// Userinfo enriches the subject claim but is never load-bearing: a
	// provider without it still authenticates.
	subject := md.ClientID
	enrichment := map[string]any{}
	if info, err := h.provider.UserInfo(r.Context(), idpToken.AccessToken); err != nil {
		log.Printf("Userinfo fetch failed, continuing without enrichment: %v", err)
	} else {
		if info.Subject != "" {
			subject = info.Subject
		}
		if info.Email != "" {
			enrichment["email"] = info.Email
		}
		if info.Name != "" {
			enrichment["name"] = info.Name
		}
	}
	if subject == "" {
		handlerutils.OAuthError(w, http.StatusBadRequest, "invalid_request", "No subject could be determined for this authorization")
		return
	}

	signed, claims, err := h.issuer.Mint(subject, md.Scopes, enrichment)
	if err != nil {
		log.Printf("Failed to mint access token: %v", err)
		handlerutils.OAuthError(w, http.StatusInternalServerError, "server_error", "Failed to issue access token")
		return
	}

	if err := h.store.PutProviderToken(subject, store.ProviderToken{
		AccessToken:  idpToken.AccessToken,
		RefreshToken: idpToken.RefreshToken,
		Scopes:       md.Scopes,
		Expiry:       idpToken.Expiry,
	}); err != nil {
		log.Printf("Failed to record provider token: %v", err)
		handlerutils.OAuthError(w, http.StatusInternalServerError, "server_error", "Failed to record provider token")
		return
	}

	expiresIn := int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds())

	// A caller that named a redirect URI gets the token delivered there,
	// in the fragment so it stays out of server logs. Everyone else gets
	// a JSON body.
	if md.RedirectURI != "" {
		target, err := url.Parse(md.RedirectURI)
		if err != nil {
			handlerutils.OAuthError(w, http.StatusInternalServerError, "server_error", "Invalid redirect URL")
			return
		}
		fragment := url.Values{}
		fragment.Set("access_token", signed)
		fragment.Set("token_type", "Bearer")
		fragment.Set("expires_in", strconv.FormatInt(expiresIn, 10))
		if md.ClientState != "" {
			fragment.Set("state", md.ClientState)
		}
		target.Fragment = fragment.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}

	handlerutils.JSON(w, http.StatusOK, types.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       strings.Join(claims.Scopes, " "),
	})
}
