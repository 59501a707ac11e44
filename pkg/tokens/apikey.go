package tokens

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/toolfront/mcp-auth-bridge/pkg/config"
)

// ExtractAPIKey pulls the pass-through API key out of the request headers
// according to the configured rule. The value itself is never verified here;
// verification, if any, happens at the upstream API the key is forwarded to.
//
// When the header is absent and the rule marks it required, the error is
// ErrMissingCredential. When it is absent and optional, both return values
// are zero.
func ExtractAPIKey(h http.Header, rule config.APIKey) (string, error) {
	value := h.Get(rule.HeaderName)
	if value == "" {
		if rule.Required {
			return "", fmt.Errorf("%w: header %s not present", ErrMissingCredential, rule.HeaderName)
		}
		return "", nil
	}
	if rule.Prefix != "" {
		value = strings.TrimPrefix(value, rule.Prefix)
	}
	return value, nil
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header. A missing header is ErrMissingCredential; a present but malformed
// one is ErrInvalidToken.
func ExtractBearer(h http.Header) (string, error) {
	value := h.Get("Authorization")
	if value == "" {
		return "", fmt.Errorf("%w: no Authorization header", ErrMissingCredential)
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: expected 'Bearer TOKEN'", ErrInvalidToken)
	}
	return parts[1], nil
}
