// Package store holds the bridge's short-lived authentication state:
// single-use authorization codes and per-subject provider token mappings.
//
// Store is an interface so a persistent backend can be substituted without
// touching the flow or validation logic.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an entry is absent, expired, or was already
// consumed.
var ErrNotFound = errors.New("store: not found")

// CodeMetadata is the data recorded alongside a single-use authorization
// code or anti-forgery state value.
type CodeMetadata struct {
	// ClientID identifies the client the authorization was started for.
	ClientID string

	// RedirectURI is where the client asked the result to be delivered,
	// empty when the caller wants the token in the response body.
	RedirectURI string

	// ClientState is the client's own opaque state, echoed back on delivery.
	ClientState string

	// Scopes requested for this authorization, in order.
	Scopes []string

	CreatedAt time.Time
}

// ProviderToken is the external identity provider's token material for one
// subject. RefreshToken may be empty.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string

	// Scopes granted at the original authorization, kept so a refreshed
	// internal token carries the same grant.
	Scopes []string

	// Expiry is the provider-reported expiry of AccessToken. A zero Expiry
	// means the provider did not report one and the token never goes stale.
	Expiry time.Time
}

// Stale reports whether the provider access token is past its expiry.
func (t ProviderToken) Stale(now time.Time) bool {
	return !t.Expiry.IsZero() && now.After(t.Expiry)
}

// Store is the concurrency-safe keeper of codes and provider tokens. All
// read operations treat expired entries as absent; implementations may
// reclaim memory on any schedule.
type Store interface {
	// PutCode records a single-use code with the given time to live.
	PutCode(code string, md CodeMetadata, ttl time.Duration) error

	// ConsumeCode atomically removes and returns the code's metadata.
	// Exactly one of two racing consumers wins; the other, and any consume
	// of an expired or unknown code, gets ErrNotFound.
	ConsumeCode(code string) (CodeMetadata, error)

	// PutProviderToken records the provider token mapping for subject,
	// replacing any previous mapping (last writer wins).
	PutProviderToken(subject string, tok ProviderToken) error

	// GetProviderToken returns the mapping for subject, or ErrNotFound if
	// absent or past its recorded expiry.
	GetProviderToken(subject string) (ProviderToken, error)

	// GetMapping returns the mapping for subject regardless of staleness.
	// Token refresh needs the stored refresh token after the access token
	// has expired; everything else should use GetProviderToken.
	GetMapping(subject string) (ProviderToken, error)

	// Invalidate removes the provider token mapping for subject.
	Invalidate(subject string) error

	// Close releases any background resources.
	Close() error
}
