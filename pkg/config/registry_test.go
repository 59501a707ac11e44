package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolfront/mcp-auth-bridge/pkg/secret"
)

func testSecrets() secret.Static {
	return secret.Static{
		"OAUTH_CLIENT_ID":     "client-123",
		"OAUTH_CLIENT_SECRET": "hunter2",
		"JWT_SECRET":          "signing-secret",
	}
}

func TestConfigureOAuth(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, ModeDisabled, r.Mode())

	err := r.ConfigureOAuth(testSecrets(), validProvider(), []string{"read:user"})
	require.NoError(t, err)

	assert.Equal(t, ModeOAuth, r.Mode())
	assert.Equal(t, "client-123", r.ClientID())
	assert.Equal(t, "hunter2", r.ClientSecret())
	assert.Equal(t, []byte("signing-secret"), r.SigningSecret())
	assert.Equal(t, []string{"read:user"}, r.RequiredScopes())
}

func TestConfigureOAuthUnresolvableSecret(t *testing.T) {
	r := NewRegistry()
	p := validProvider()
	p.ClientSecretRef = "MISSING_SECRET"

	err := r.ConfigureOAuth(testSecrets(), p, nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ModeDisabled, r.Mode())
}

func TestConfigureAPIKey(t *testing.T) {
	r := NewRegistry()
	err := r.ConfigureAPIKey(APIKey{HeaderName: "Authorization", Prefix: "Bearer ", Required: true})
	require.NoError(t, err)

	assert.Equal(t, ModeAPIKey, r.Mode())
	assert.Equal(t, "Authorization", r.APIKey().HeaderName)
}

func TestModesAreMutuallyExclusive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.ConfigureOAuth(testSecrets(), validProvider(), nil))

	err := r.ConfigureAPIKey(APIKey{HeaderName: "X-API-Key"})
	require.Error(t, err)

	r2 := NewRegistry()
	require.NoError(t, r2.ConfigureAPIKey(APIKey{HeaderName: "X-API-Key"}))
	assert.Error(t, r2.ConfigureOAuth(testSecrets(), validProvider(), nil))
}

func TestSealForbidsReconfiguration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.ConfigureOAuth(testSecrets(), validProvider(), nil))

	r.Seal()
	assert.True(t, r.Sealed())

	assert.ErrorIs(t, r.ConfigureOAuth(testSecrets(), validProvider(), nil), ErrSealed)
	assert.ErrorIs(t, r.ConfigureAPIKey(APIKey{HeaderName: "X-API-Key"}), ErrSealed)

	// Sealing is one-way and idempotent.
	r.Seal()
	assert.True(t, r.Sealed())
}
