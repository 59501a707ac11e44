package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolfront/mcp-auth-bridge/pkg/config"
	"github.com/toolfront/mcp-auth-bridge/pkg/credential"
	"github.com/toolfront/mcp-auth-bridge/pkg/secret"
	"github.com/toolfront/mcp-auth-bridge/pkg/types"
)

// fakeIdP serves the three endpoints a delegated login needs: authorize is
// never actually hit in tests because the redirect stays client-side, token
// exchanges "good-code", and userinfo identifies user-a.
func fakeIdP(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "idp-access",
			"token_type":    "Bearer",
			"refresh_token": "idp-refresh",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer idp-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "user-a",
			"email": "a@example.com",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testSecrets() secret.Static {
	return secret.Static{
		"OAUTH_CLIENT_ID":     "client-123",
		"OAUTH_CLIENT_SECRET": "hunter2",
		"JWT_SECRET":          "test-signing-secret",
	}
}

func newOAuthBridge(t *testing.T, requiredScopes []string) *Bridge {
	t.Helper()
	idp := fakeIdP(t)

	reg := config.NewRegistry()
	require.NoError(t, reg.ConfigureOAuth(testSecrets(), config.Provider{
		Name:             "custom",
		ClientIDRef:      "OAUTH_CLIENT_ID",
		ClientSecretRef:  "OAUTH_CLIENT_SECRET",
		SigningSecretRef: "JWT_SECRET",
		AuthorizeURL:     idp.URL + "/authorize",
		TokenURL:         idp.URL + "/token",
		UserinfoURL:      idp.URL + "/userinfo",
		Scopes:           []string{"read:user"},
		IssuerURL:        "https://bridge.example.com",
		CallbackPath:     "/auth/callback",
		TokenExpiration:  3600,
	}, requiredScopes))
	reg.Seal()

	b, err := New(reg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// whoami echoes the credential the middleware attached.
func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := credential.FromContext(r.Context())
		if cred == nil {
			fmt.Fprint(w, "anonymous")
			return
		}
		if cred.APIKey != "" {
			fmt.Fprintf(w, "key:%s", cred.APIKey)
			return
		}
		fmt.Fprintf(w, "subject:%s", cred.Subject)
	})
}

// login drives authorize and callback against the bridge handler and
// returns the minted access token.
func login(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=good-code&state="+url.QueryEscape(state), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body types.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken
}

func TestOAuthEndToEnd(t *testing.T) {
	b := newOAuthBridge(t, []string{"read:user"})
	handler := b.Handler(whoami())

	token := login(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "subject:user-a", rec.Body.String())
}

func TestOAuthMissingCredential(t *testing.T) {
	b := newOAuthBridge(t, nil)
	handler := b.Handler(whoami())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/echo", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	var body types.OAuthError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_credential", body.Error)
}

func TestOAuthInvalidToken(t *testing.T) {
	b := newOAuthBridge(t, nil)
	handler := b.Handler(whoami())

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body types.OAuthError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_token", body.Error)
}

func TestOAuthInsufficientScope(t *testing.T) {
	b := newOAuthBridge(t, []string{"admin"})
	handler := b.Handler(whoami())

	token := login(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body types.OAuthError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_scope", body.Error)
}

func TestRefreshAfterLogin(t *testing.T) {
	b := newOAuthBridge(t, nil)
	handler := b.Handler(whoami())
	login(t, handler)

	signed, claims, err := b.RefreshToken(context.Background(), "user-a")
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.Equal(t, "user-a", claims.Subject)
}

func TestRefreshUnknownSubject(t *testing.T) {
	b := newOAuthBridge(t, nil)

	_, _, err := b.RefreshToken(context.Background(), "nobody")
	assert.Error(t, err)
}

func newAPIKeyBridge(t *testing.T, rule config.APIKey) *Bridge {
	t.Helper()
	reg := config.NewRegistry()
	require.NoError(t, reg.ConfigureAPIKey(rule))
	reg.Seal()

	b, err := New(reg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestAPIKeyRequired(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "X-API-Key", Required: true})
	handler := b.Handler(whoami())

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("X-API-Key", "sk-live-1234")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "key:sk-live-1234", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyPrefixStripped(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "Authorization", Prefix: "Bearer ", Required: true})
	handler := b.Handler(whoami())

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("Authorization", "Bearer sk-live-1234")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "key:sk-live-1234", rec.Body.String())
}

func TestAPIKeyOptionalAbsent(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "X-API-Key"})
	handler := b.Handler(whoami())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/echo", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAPIKeyModeHasNoLoginEndpoints(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "X-API-Key", Required: true})
	handler := b.Handler(whoami())

	// /authorize is not registered, so it falls through to the protected
	// surface and is rejected like any other unauthenticated request.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCredentialIsolationAcrossRequests(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "X-API-Key", Required: true})
	handler := b.Handler(whoami())

	for _, key := range []string{"key-one", "key-two"} {
		req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "key:"+key, rec.Body.String())
	}
}

func TestRequestIDAssigned(t *testing.T) {
	b := newAPIKeyBridge(t, config.APIKey{HeaderName: "X-API-Key"})
	handler := b.Handler(whoami())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/echo", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/tools/echo", nil)
	req.Header.Set("X-Request-ID", "caller-chose-this")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "caller-chose-this", rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	b := newOAuthBridge(t, nil)
	handler := b.Handler(nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "oauth", body["mode"])
}

func TestUnsealedRegistryRejected(t *testing.T) {
	_, err := New(config.NewRegistry())
	assert.Error(t, err)
}
