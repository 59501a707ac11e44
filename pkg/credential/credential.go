// Package credential carries the validated per-request credential through
// the request's context.
//
// The credential is attached by the bridge middleware before any tool
// handler runs and is discarded with the request context. Because it rides
// the context of one request, concurrent requests can never observe each
// other's credential.
package credential

import (
	"context"
	"time"

	"github.com/toolfront/mcp-auth-bridge/pkg/tokens"
)

// Credential is the validated caller identity for one request. Exactly one
// of Claims and APIKey is set, depending on the active auth mode.
type Credential struct {
	// Subject is the authenticated subject in OAuth mode, empty in API key
	// mode.
	Subject string

	// Scopes granted to the token in OAuth mode.
	Scopes []string

	// ExpiresAt is the token expiry in OAuth mode.
	ExpiresAt time.Time

	// Claims is the full verified claim set in OAuth mode.
	Claims *tokens.Claims

	// APIKey is the extracted pass-through key in API key mode.
	APIKey string
}

type credentialKey struct{}

// With attaches cred to ctx.
func With(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// FromContext returns the current request's credential, or nil when the
// request was not authenticated (auth disabled, or an optional API key was
// absent).
func FromContext(ctx context.Context) *Credential {
	cred, _ := ctx.Value(credentialKey{}).(*Credential)
	return cred
}

// Subject returns the authenticated subject, or "" when there is none.
func Subject(ctx context.Context) string {
	cred := FromContext(ctx)
	if cred == nil {
		return ""
	}
	return cred.Subject
}

// APIKey returns the pass-through API key, or "" when there is none.
func APIKey(ctx context.Context) string {
	cred := FromContext(ctx)
	if cred == nil {
		return ""
	}
	return cred.APIKey
}
