// Package authorize starts the delegated login flow: it builds the identity
// provider's authorize URL and redirects the caller there.
package authorize

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/toolfront/mcp-auth-bridge/pkg/encryption"
	"github.com/toolfront/mcp-auth-bridge/pkg/handlerutils"
	"github.com/toolfront/mcp-auth-bridge/pkg/providers"
	"github.com/toolfront/mcp-auth-bridge/pkg/store"
)

// StateTTL bounds how long a pending authorization may sit between the
// redirect to the IdP and the callback.
const StateTTL = 5 * time.Minute

type Handler struct {
	store         store.Store
	provider      providers.Provider
	clientID      string
	redirectURI   string
	defaultScopes []string
}

// NewHandler creates the /authorize handler. redirectURI is this server's
// own callback URI registered with the IdP; defaultScopes are requested when
// the caller names none.
func NewHandler(st store.Store, provider providers.Provider, clientID, redirectURI string, defaultScopes []string) *Handler {
	return &Handler{
		store:         st,
		provider:      provider,
		clientID:      clientID,
		redirectURI:   redirectURI,
		defaultScopes: defaultScopes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	scopes := h.defaultScopes
	if raw := params.Get("scope"); raw != "" {
		scopes = splitScopes(raw)
	}

	// Where the caller wants the minted token delivered. Optional; without
	// it the callback answers with a JSON body.
	clientRedirect := params.Get("redirect_uri")
	if clientRedirect != "" {
		u, err := url.Parse(clientRedirect)
		if err != nil || !u.IsAbs() || u.Host == "" {
			handlerutils.OAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri must be an absolute URL")
			return
		}
	}

	// The state value doubles as the single-use key of the pending
	// authorization. It must be unguessable.
	state := encryption.GenerateRandomString(32)
	md := store.CodeMetadata{
		ClientID:    params.Get("client_id"),
		RedirectURI: clientRedirect,
		ClientState: params.Get("state"),
		Scopes:      scopes,
		CreatedAt:   time.Now(),
	}
	if err := h.store.PutCode(state, md, StateTTL); err != nil {
		handlerutils.OAuthError(w, http.StatusInternalServerError, "server_error", "Failed to record authorization request")
		return
	}

	authURL := h.provider.AuthCodeURL(h.clientID, h.redirectURI, scopes, state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// splitScopes accepts both space- and comma-separated scope lists.
func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
}
