// Package tokens mints and validates the bridge's own signed access tokens.
//
// Issued tokens are stateless: validity is determined by signature and claim
// checks alone, no store lookup required.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// maxEnrichmentClaims bounds how many userinfo claims may be merged
	// into an issued token, so token size stays bounded.
	maxEnrichmentClaims = 8
	// maxEnrichmentValueLen bounds the length of a merged string value.
	maxEnrichmentValueLen = 256
)

// Claims is the verified claim set of an issued access token.
type Claims struct {
	Issuer    string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Scopes    []string

	// Extra holds the remaining verified claims, including any userinfo
	// enrichment merged at mint time.
	Extra map[string]any
}

// Issuer mints HMAC-SHA256 signed tokens carrying iss, sub, iat, exp
// and scp.
type Issuer struct {
	issuerURL string
	secret    []byte
	ttl       time.Duration
}

// NewIssuer creates an issuer. issuerURL becomes the iss claim; ttl is the
// lifetime of every minted token.
func NewIssuer(issuerURL string, secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{issuerURL: issuerURL, secret: secret, ttl: ttl}
}

// Mint signs a token for subject with the granted scopes. enrichment is an
// optional map of primitive userinfo values merged into the claim set; it is
// bounded in size and can never shadow the registered claims.
func (i *Issuer) Mint(subject string, scopes []string, enrichment map[string]any) (string, *Claims, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("subject is required")
	}

	now := time.Now()
	expires := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"iss": i.issuerURL,
		"sub": subject,
		"iat": now.Unix(),
		"exp": expires.Unix(),
		"scp": strings.Join(scopes, " "),
	}

	extra := make(map[string]any)
	merged := 0
	for key, value := range enrichment {
		if merged >= maxEnrichmentClaims {
			break
		}
		if _, reserved := claims[key]; reserved {
			continue
		}
		if !isPrimitive(value) {
			continue
		}
		if s, ok := value.(string); ok && len(s) > maxEnrichmentValueLen {
			value = s[:maxEnrichmentValueLen]
		}
		claims[key] = value
		extra[key] = value
		merged++
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, &Claims{
		Issuer:    i.issuerURL,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: expires,
		Scopes:    append([]string(nil), scopes...),
		Extra:     extra,
	}, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// Validator verifies issued tokens with no network or store access: it
// checks the signature, expiry, issuer, and the required-scope set.
type Validator struct {
	issuerURL      string
	secret         []byte
	requiredScopes []string
	parser         *jwt.Parser
}

// NewValidator creates a validator. requiredScopes may be nil to skip the
// scope check.
func NewValidator(issuerURL string, secret []byte, requiredScopes []string) *Validator {
	return &Validator{
		issuerURL:      issuerURL,
		secret:         secret,
		requiredScopes: requiredScopes,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuerURL),
			jwt.WithExpirationRequired(),
		),
	}
}

// Validate verifies tokenString and returns its claims.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingCredential
	}

	mapClaims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, mapClaims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if missing := missingScopes(claims.Scopes, v.requiredScopes); len(missing) > 0 {
		return nil, fmt.Errorf("%w: token lacks %s", ErrInsufficientScope, strings.Join(missing, " "))
	}
	return claims, nil
}

func claimsFromMap(mapClaims jwt.MapClaims) (*Claims, error) {
	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	issuer, err := mapClaims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("missing iss claim")
	}

	claims := &Claims{
		Issuer:  issuer,
		Subject: subject,
		Scopes:  parseScopeClaim(mapClaims["scp"]),
		Extra:   make(map[string]any),
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	for key, value := range mapClaims {
		switch key {
		case "iss", "sub", "iat", "exp", "scp":
		default:
			claims.Extra[key] = value
		}
	}
	return claims, nil
}

// parseScopeClaim accepts both encodings of scp: a space-joined string or a
// JSON array of strings.
func parseScopeClaim(raw any) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		scopes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
		return scopes
	default:
		return nil
	}
}

func missingScopes(granted, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
