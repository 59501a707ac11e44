package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProvider() Provider {
	return Provider{
		Name:             "custom",
		ClientIDRef:      "OAUTH_CLIENT_ID",
		ClientSecretRef:  "OAUTH_CLIENT_SECRET",
		SigningSecretRef: "JWT_SECRET",
		AuthorizeURL:     "https://idp.example.com/authorize",
		TokenURL:         "https://idp.example.com/token",
		UserinfoURL:      "https://idp.example.com/userinfo",
		Scopes:           []string{"read:user"},
		IssuerURL:        "https://bridge.example.com",
		CallbackPath:     "/auth/callback",
		TokenExpiration:  3600,
	}
}

func TestProviderValidate(t *testing.T) {
	p := validProvider()
	require.NoError(t, p.Validate())
}

func TestProviderValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Provider)
	}{
		{"unknown provider", func(p *Provider) { p.Name = "gitlab" }},
		{"missing client id ref", func(p *Provider) { p.ClientIDRef = "" }},
		{"missing client secret ref", func(p *Provider) { p.ClientSecretRef = "" }},
		{"missing signing secret ref", func(p *Provider) { p.SigningSecretRef = "" }},
		{"relative authorize url", func(p *Provider) { p.AuthorizeURL = "/authorize" }},
		{"missing token url", func(p *Provider) { p.TokenURL = "" }},
		{"relative userinfo url", func(p *Provider) { p.UserinfoURL = "userinfo" }},
		{"relative issuer url", func(p *Provider) { p.IssuerURL = "bridge.example.com" }},
		{"callback path without slash", func(p *Provider) { p.CallbackPath = "auth/callback" }},
		{"zero token expiration", func(p *Provider) { p.TokenExpiration = 0 }},
		{"negative token expiration", func(p *Provider) { p.TokenExpiration = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProvider()
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestProviderPresetsSkipEndpointChecks(t *testing.T) {
	// Presets carry their own endpoints, so the URLs may stay empty.
	p := validProvider()
	p.Name = "github"
	p.AuthorizeURL = ""
	p.TokenURL = ""
	p.UserinfoURL = ""
	require.NoError(t, p.Validate())
}

func TestRedirectURI(t *testing.T) {
	p := validProvider()
	assert.Equal(t, "https://bridge.example.com/auth/callback", p.RedirectURI())

	p.IssuerURL = "https://bridge.example.com/"
	assert.Equal(t, "https://bridge.example.com/auth/callback", p.RedirectURI())
}

func TestAPIKeyValidate(t *testing.T) {
	k := APIKey{HeaderName: "X-API-Key"}
	require.NoError(t, k.Validate())

	k.HeaderName = "  "
	assert.Error(t, k.Validate())
}
