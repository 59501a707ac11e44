package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gptscript-ai/cmd"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/toolfront/mcp-auth-bridge/pkg/bridge"
	"github.com/toolfront/mcp-auth-bridge/pkg/config"
	"github.com/toolfront/mcp-auth-bridge/pkg/secret"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// RootCmd represents the base command when called without any subcommands.
// Credential values are never taken on the command line; the *_env flags
// name the environment variables that hold them.
type RootCmd struct {
	Mode string `name:"mode" env:"AUTH_MODE" usage:"Authentication mode: oauth, apikey, or disabled" default:"oauth"`

	// OAuth provider configuration
	Provider        string `name:"provider" env:"OAUTH_PROVIDER" usage:"Identity provider: github, google, or custom" default:"custom"`
	AuthorizeURL    string `name:"authorize-url" env:"OAUTH_AUTHORIZE_URL" usage:"Authorization endpoint URL (custom provider only)"`
	TokenURL        string `name:"token-url" env:"OAUTH_TOKEN_URL" usage:"Token endpoint URL (custom provider only)"`
	UserinfoURL     string `name:"userinfo-url" env:"OAUTH_USERINFO_URL" usage:"Userinfo endpoint URL (optional, discovered when omitted)"`
	ClientIDEnv     string `name:"client-id-env" env:"OAUTH_CLIENT_ID_ENV" usage:"Environment variable holding the OAuth client ID" default:"OAUTH_CLIENT_ID"`
	ClientSecretEnv string `name:"client-secret-env" env:"OAUTH_CLIENT_SECRET_ENV" usage:"Environment variable holding the OAuth client secret" default:"OAUTH_CLIENT_SECRET"`
	SigningKeyEnv   string `name:"signing-key-env" env:"JWT_SIGNING_KEY_ENV" usage:"Environment variable holding the token signing secret" default:"JWT_SIGNING_KEY"`
	Scopes          string `name:"scopes" env:"OAUTH_SCOPES" usage:"Comma-separated scopes requested from the provider"`
	RequiredScopes  string `name:"required-scopes" env:"REQUIRED_SCOPES" usage:"Comma-separated scopes a token must carry to pass validation"`
	IssuerURL       string `name:"issuer-url" env:"ISSUER_URL" usage:"Public base URL of this bridge, used as token issuer"`
	CallbackPath    string `name:"callback-path" env:"CALLBACK_PATH" usage:"Path the provider redirects back to" default:"/auth/callback"`
	TokenExpiration int    `name:"token-expiration" env:"TOKEN_EXPIRATION" usage:"Lifetime of issued tokens in seconds" default:"3600"`

	// API key configuration
	APIKeyHeader   string `name:"api-key-header" env:"API_KEY_HEADER" usage:"Header carrying the API key" default:"X-API-Key"`
	APIKeyPrefix   string `name:"api-key-prefix" env:"API_KEY_PREFIX" usage:"Prefix stripped from the header value (e.g. 'Bearer ')"`
	APIKeyRequired bool   `name:"api-key-required" env:"API_KEY_REQUIRED" usage:"Reject requests without an API key" default:"true"`

	// Security configuration
	EncryptionKey string `name:"encryption-key" env:"ENCRYPTION_KEY" usage:"Base64-encoded 32-byte AES-256 key for encrypting stored provider tokens (optional)"`

	// Server configuration
	Port string `name:"port" env:"PORT" usage:"Port to run the server on" default:"8080"`
	Host string `name:"host" env:"HOST" usage:"Host to bind the server to" default:"localhost"`

	Verbose bool `name:"verbose,v" usage:"Enable verbose logging"`
	Version bool `name:"version" usage:"Show version information"`
}

func (c *RootCmd) Run(cobraCmd *cobra.Command, args []string) error {
	if c.Version {
		fmt.Printf("MCP Auth Bridge\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Built: %s\n", buildTime)
		return nil
	}

	if c.Verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Verbose logging enabled")
	}

	registry := config.NewRegistry()
	switch c.Mode {
	case "oauth":
		provider := config.Provider{
			Name:             c.Provider,
			ClientIDRef:      c.ClientIDEnv,
			ClientSecretRef:  c.ClientSecretEnv,
			SigningSecretRef: c.SigningKeyEnv,
			AuthorizeURL:     c.AuthorizeURL,
			TokenURL:         c.TokenURL,
			UserinfoURL:      c.UserinfoURL,
			Scopes:           splitList(c.Scopes),
			IssuerURL:        c.IssuerURL,
			CallbackPath:     c.CallbackPath,
			TokenExpiration:  c.TokenExpiration,
		}
		if err := registry.ConfigureOAuth(secret.Env{}, provider, splitList(c.RequiredScopes)); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	case "apikey":
		rule := config.APIKey{
			HeaderName: c.APIKeyHeader,
			Prefix:     c.APIKeyPrefix,
			Required:   c.APIKeyRequired,
		}
		if err := registry.ConfigureAPIKey(rule); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
	case "disabled":
		log.Println("Authentication disabled, all requests pass through")
	default:
		return fmt.Errorf("invalid mode: %s", c.Mode)
	}
	registry.Seal()

	var opts []bridge.Option
	if c.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to decode encryption key: %w", err)
		}
		opts = append(opts, bridge.WithEncryptionKey(key))
	}

	b, err := bridge.New(registry, opts...)
	if err != nil {
		return fmt.Errorf("failed to create auth bridge: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Printf("Error closing bridge: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	b.Start(ctx)

	address := fmt.Sprintf("%s:%s", c.Host, c.Port)
	log.Printf("Starting auth bridge on %s", address)
	log.Printf("Mode: %s", c.Mode)
	if c.Mode == "oauth" {
		log.Printf("Identity provider: %s", c.Provider)
		log.Printf("Issuer: %s", c.IssuerURL)
	}

	srv := &http.Server{Addr: address, Handler: b.Handler(nil)}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Customizer interface implementation for additional command customization
func (c *RootCmd) Customize(cobraCmd *cobra.Command) {
	cobraCmd.Use = "mcp-auth-bridge"
	cobraCmd.Short = "Authentication bridge for multi-tool MCP servers"
	cobraCmd.Long = `MCP Auth Bridge

An authentication bridge that sits in front of a multi-tool server. It
supports two modes: delegated OAuth 2.0 login against an external identity
provider (GitHub, Google, or any provider with explicit endpoint URLs), and
opaque API key pass-through. Every request carries its own isolated
credential; concurrent callers never observe each other's.

Examples:
  # Delegated login against GitHub
  export OAUTH_CLIENT_ID="your-github-client-id"
  export OAUTH_CLIENT_SECRET="your-secret"
  export JWT_SIGNING_KEY="long-random-string"
  mcp-auth-bridge --mode=oauth --provider=github \
    --issuer-url="https://bridge.example.com" \
    --scopes="read:user"

  # Custom provider with explicit endpoints
  mcp-auth-bridge --mode=oauth --provider=custom \
    --authorize-url="https://idp.example.com/authorize" \
    --token-url="https://idp.example.com/token" \
    --issuer-url="https://bridge.example.com"

  # API key pass-through
  mcp-auth-bridge --mode=apikey --api-key-header="X-API-Key"

Configuration:
  Configuration values are loaded in this order (later values override earlier ones):
  1. Default values
  2. Environment variables
  3. Command line flags

  Secrets are never passed as flag values. The --client-id-env family of
  flags names the environment variables the secrets are read from.`

	cobraCmd.Version = version
}

// Execute is the main entry point for the CLI
func Execute() error {
	rootCmd := &RootCmd{}
	cobraCmd := cmd.Command(rootCmd)
	return cobraCmd.Execute()
}
